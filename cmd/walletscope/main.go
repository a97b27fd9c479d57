package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "walletscope",
		Usage: "Ethereum wallet dashboard backend CLI",
		Description: `A command-line tool for the walletscope service.

Use this CLI to drive the server's wallet session, query the transactions proxy,
scan recent blocks for an address, and follow session events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			sessionCommands(),
			txCommands(),
			scanCommand(),
			{
				Name:  "nats",
				Usage: "NATS session event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "walletscope server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Ethereum JSON-RPC URL for local chain reads",
				EnvVars: []string{"ETH_RPC_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log debug output to stderr",
			},
		},
	}
}

// cliLogger logs errors only unless --verbose is set.
func cliLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelError
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
