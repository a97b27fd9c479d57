package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/walletscope/client"
	"github.com/brojonat/walletscope/service/dashboard"
	"github.com/brojonat/walletscope/service/ethereum"
	"github.com/brojonat/walletscope/service/etherscan"
	"github.com/brojonat/walletscope/service/wallet"
	"github.com/urfave/cli/v2"
)

func sessionCommands() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Wallet session commands",
		Subcommands: []*cli.Command{
			sessionGetCommand(),
			sessionConnectCommand(),
			sessionDisconnectCommand(),
			sessionWatchCommand(),
		},
	}
}

func sessionGetCommand() *cli.Command {
	return &cli.Command{
		Name:    "get",
		Aliases: []string{"show"},
		Usage:   "Show the server's current session",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))
			sess, err := cl.Session(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			return printSession(c.App.Writer, *sess, c.Bool("json"))
		},
	}
}

func sessionConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Ask the server to request account access from its wallet provider",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))
			sess, err := cl.Connect(c.Context)
			if err != nil {
				return fmt.Errorf("failed to connect wallet: %w", err)
			}
			if !c.Bool("json") {
				fmt.Fprintf(c.App.Writer, "✓ Wallet connected\n")
			}
			return printSession(c.App.Writer, *sess, c.Bool("json"))
		},
	}
}

func sessionDisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Clear the server's session",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))
			sess, err := cl.Disconnect(c.Context)
			if err != nil {
				return fmt.Errorf("failed to disconnect wallet: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, sess)
			}
			fmt.Fprintf(c.App.Writer, "✓ Wallet disconnected\n")
			return nil
		},
	}
}

func sessionWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run a connector locally and print every session change",
		Description: `Mounts a wallet connector against a wallet provider JSON-RPC endpoint and an
Ethereum node, restores any already-authorized account, and prints the session
each time it changes. Account changes resync, an empty account list logs out,
and a chain change remounts the connector.

Example:
  walletscope --rpc-url https://eth.example/KEY session watch --provider-url http://localhost:8545`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "provider-url",
				Usage:    "Wallet provider JSON-RPC URL",
				EnvVars:  []string{"WALLET_PROVIDER_URL"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often to poll the provider for account and chain changes",
				Value: 2 * time.Second,
			},
			&cli.IntFlag{
				Name:  "window",
				Usage: "Number of recent blocks to scan when no indexer is configured",
				Value: wallet.DefaultRecentBlockWindow,
			},
			&cli.StringFlag{
				Name:    "etherscan-key",
				Usage:   "Etherscan API key; enables the indexing API",
				EnvVars: []string{"ETHERSCAN_API_KEY"},
			},
			&cli.BoolFlag{
				Name:  "connect",
				Usage: "Request account access on start instead of only restoring",
			},
		},
		Action: func(c *cli.Context) error {
			rpcURL := c.String("rpc-url")
			if rpcURL == "" {
				return fmt.Errorf("rpc-url is required (set ETH_RPC_URL env var or use --rpc-url)")
			}
			logger := cliLogger(c)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			ethClient, err := ethereum.Dial(ctx, rpcURL)
			if err != nil {
				return err
			}
			defer ethClient.Close()
			chain := ethereum.NewChainReader(ethClient, "cli", nil, logger)

			rpcClient, err := ethereum.DialProvider(ctx, c.String("provider-url"))
			if err != nil {
				return err
			}
			defer rpcClient.Close()
			provider := ethereum.NewProvider(rpcClient, c.Duration("poll-interval"), "cli", nil, logger)
			go provider.Watch(ctx)

			var indexer wallet.Indexer
			if key := c.String("etherscan-key"); key != "" {
				indexer = etherscan.NewClient("", key, nil, nil, logger)
			}

			host := dashboard.New(nil, logger)
			fetcher := wallet.NewFetcher(chain, c.Int("window"), nil, logger)
			connector := wallet.NewConnector(provider, chain, indexer, fetcher, host, nil, nil, logger)
			host.Attach(connector)

			updates := make(chan wallet.Session, 16)
			sub := connector.State().Subscribe(updates)
			defer sub.Unsubscribe()

			done := make(chan error, 1)
			go func() { done <- host.Run(ctx) }()

			if c.Bool("connect") {
				go func() {
					if _, err := connector.Connect(ctx); err != nil {
						fmt.Fprintf(c.App.ErrWriter, "connect: %v\n", err)
					}
				}()
			}

			return watchSessions(ctx, c, updates, done)
		},
	}
}

// watchSessions prints sessions until ctx is done or the run loop exits.
func watchSessions(ctx context.Context, c *cli.Context, updates <-chan wallet.Session, done <-chan error) error {
	for {
		select {
		case sess := <-updates:
			if err := printSession(c.App.Writer, sess, c.Bool("json")); err != nil {
				return err
			}
		case err := <-done:
			return err
		case <-ctx.Done():
			return <-done
		}
	}
}
