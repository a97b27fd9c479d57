package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/walletscope/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams session events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to session events",
		Description: `Subscribe to real-time session events published to NATS JetStream.

Events are published to the subjects sessions.updated, sessions.login and
sessions.reload. Only events published after the subscription starts are shown.

Example:
  walletscope nats subscribe --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Connection name reported to NATS",
				Value: "walletscope-cli",
			},
		},
		Action: func(c *cli.Context) error {
			logger := cliLogger(c)

			sub, err := natspkg.NewSubscriber(c.String("nats-url"), c.String("consumer-name"), logger)
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			events, err := sub.Events(ctx)
			if err != nil {
				return err
			}

			if !c.Bool("json") {
				fmt.Fprintf(c.App.ErrWriter, "📡 Subscribed to %s (Ctrl+C to stop)\n\n", natspkg.StreamSubjects)
			}
			return printEvents(c, events)
		},
	}
}

func printEvents(c *cli.Context, events <-chan *natspkg.SessionEvent) error {
	for event := range events {
		if c.Bool("json") {
			if err := printJSON(c.App.Writer, event); err != nil {
				return err
			}
			continue
		}

		fmt.Fprintf(c.App.Writer, "[%s] %s\n", event.PublishedAt.Format(time.RFC3339), event.Kind)
		if event.Session != nil {
			if err := printSession(c.App.Writer, *event.Session, false); err != nil {
				return err
			}
		}
	}
	return nil
}
