// Package dashboard hosts a wallet connector on the server. Navigation
// signals become published events, session changes are relayed to NATS, and
// a chain change triggers a full reload of the connector.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	natspkg "github.com/brojonat/walletscope/service/nats"
	"github.com/brojonat/walletscope/service/wallet"
)

const (
	publishTimeout = 5 * time.Second

	// outboxSize bounds the events waiting to be published. Events raised
	// while the outbox is full are dropped.
	outboxSize = 64
)

// Dashboard implements wallet.Host for a server-side connector.
type Dashboard struct {
	publisher natspkg.Publisher // nil disables publishing
	logger    *slog.Logger

	reload chan struct{}
	outbox chan *natspkg.SessionEvent

	mu        sync.Mutex
	connector *wallet.Connector
	logins    int
	reloads   int
}

// New creates a dashboard host. publisher may be nil.
func New(publisher natspkg.Publisher, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		publisher: publisher,
		logger:    logger,
		reload:    make(chan struct{}, 1),
		outbox:    make(chan *natspkg.SessionEvent, outboxSize),
	}
}

// Attach sets the connector this dashboard hosts. The connector is built with
// the dashboard as its host, so the two are wired in two steps.
func (d *Dashboard) Attach(c *wallet.Connector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connector = c
}

// NavigateToLogin publishes a login signal.
func (d *Dashboard) NavigateToLogin() {
	d.mu.Lock()
	d.logins++
	d.mu.Unlock()

	d.logger.Info("navigating to login")
	d.publish(natspkg.NewSessionEvent(natspkg.EventNavigateLogin, nil))
}

// Reload schedules a full reload on the Run loop and publishes a reload
// signal. Calls made while a reload is pending coalesce into it.
func (d *Dashboard) Reload() {
	d.mu.Lock()
	d.reloads++
	d.mu.Unlock()

	select {
	case d.reload <- struct{}{}:
	default:
	}
	d.publish(natspkg.NewSessionEvent(natspkg.EventReload, nil))
}

// Counts reports how many login and reload signals have been raised.
func (d *Dashboard) Counts() (logins, reloads int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logins, d.reloads
}

// Run mounts the connector, relays session changes to the publisher and
// performs reloads until ctx is cancelled. It unmounts before returning.
// Events are published from their own goroutine, so a slow or unreachable
// NATS server never holds up session writes.
func (d *Dashboard) Run(ctx context.Context) error {
	d.mu.Lock()
	c := d.connector
	d.mu.Unlock()
	if c == nil {
		return errors.New("dashboard has no connector attached")
	}

	var wg sync.WaitGroup
	relayCtx, stopRelay := context.WithCancel(ctx)
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.relay(relayCtx, c.State())
	}()
	go func() {
		defer wg.Done()
		d.drain(relayCtx)
	}()
	defer func() {
		stopRelay()
		wg.Wait()
	}()

	if err := c.Mount(ctx); err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "dashboard mounted")

	for {
		select {
		case <-ctx.Done():
			c.Unmount()
			d.logger.Info("dashboard unmounted")
			return nil
		case <-d.reload:
			d.logger.InfoContext(ctx, "reloading dashboard after chain change")
			c.Unmount()
			c.Reset()
			if err := c.Mount(ctx); err != nil {
				return err
			}
		}
	}
}

// relay queues every committed session for publishing until ctx is done.
func (d *Dashboard) relay(ctx context.Context, state *wallet.State) {
	updates := make(chan wallet.Session, 16)
	sub := state.Subscribe(updates)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				d.logger.Error("session subscription failed", "error", err)
			}
			return
		case sess := <-updates:
			d.publish(natspkg.NewSessionEvent(natspkg.EventSessionUpdated, &sess))
		}
	}
}

// publish queues event for the drain goroutine without blocking.
func (d *Dashboard) publish(event *natspkg.SessionEvent) {
	if d.publisher == nil {
		return
	}
	select {
	case d.outbox <- event:
	default:
		d.logger.Warn("session event outbox full, dropping event", "kind", event.Kind)
	}
}

// drain publishes queued events in order until ctx is done.
func (d *Dashboard) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.outbox:
			d.send(event)
		}
	}
}

func (d *Dashboard) send(event *natspkg.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.publisher.PublishSessionEvent(ctx, event); err != nil {
		d.logger.Warn("failed to publish session event",
			"kind", event.Kind,
			"error", err,
		)
	}
}
