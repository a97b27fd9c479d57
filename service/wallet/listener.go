package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brojonat/walletscope/service/metrics"
	"github.com/ethereum/go-ethereum/event"
)

// ListenerState is the subscription state of a Listener.
type ListenerState int

const (
	Unsubscribed ListenerState = iota
	Subscribed
)

func (s ListenerState) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// syncer is the part of the connector the listener drives.
type syncer interface {
	Sync(ctx context.Context, address string) error
	Disconnect()
}

// Listener reacts to provider notifications for the lifetime of a mount.
// Events are handled one at a time in arrival order.
type Listener struct {
	provider Provider
	syncer   syncer
	host     Host
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	state  ListenerState
	sub    event.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates an unsubscribed listener.
func NewListener(provider Provider, s syncer, host Host, m *metrics.Metrics, logger *slog.Logger) *Listener {
	return &Listener{
		provider: provider,
		syncer:   s,
		host:     host,
		metrics:  m,
		logger:   logger,
	}
}

// State returns the current subscription state.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start subscribes to provider events and handles them until Stop is called,
// ctx is cancelled, or the subscription fails.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Subscribed {
		return fmt.Errorf("listener already subscribed")
	}

	events := make(chan ProviderEvent, 16)
	sub := l.provider.SubscribeEvents(events)
	loopCtx, cancel := context.WithCancel(ctx)

	l.sub = sub
	l.cancel = cancel
	l.done = make(chan struct{})
	l.state = Subscribed

	go l.loop(loopCtx, cancel, sub, events, l.done)

	l.logger.DebugContext(ctx, "listener subscribed to provider events")
	return nil
}

// Stop unsubscribes and waits for the event loop to exit. It is safe to call
// after the loop already ended on a subscription error.
// It must not be called from within an event handler.
func (l *Listener) Stop() {
	l.mu.Lock()
	sub, cancel, done := l.sub, l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	if done != nil {
		<-done
	}
}

func (l *Listener) loop(ctx context.Context, cancel context.CancelFunc, sub event.Subscription, events <-chan ProviderEvent, done chan struct{}) {
	defer close(done)
	defer l.markUnsubscribed(sub)
	defer cancel()
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-events:
			l.handle(ctx, ev)
		case err := <-sub.Err():
			if err != nil {
				l.logger.WarnContext(ctx, "provider subscription failed", "error", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) markUnsubscribed(sub event.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == sub {
		l.sub = nil
		l.state = Unsubscribed
	}
	l.logger.Debug("listener unsubscribed from provider events")
}

func (l *Listener) handle(ctx context.Context, ev ProviderEvent) {
	if l.metrics != nil {
		l.metrics.RecordProviderEvent(ev.Kind.String())
	}

	switch ev.Kind {
	case AccountsChanged:
		if len(ev.Accounts) == 0 {
			l.logger.InfoContext(ctx, "accounts cleared by provider")
			l.syncer.Disconnect()
			return
		}
		l.logger.InfoContext(ctx, "account changed", "address", ev.Accounts[0])
		if err := l.syncer.Sync(ctx, ev.Accounts[0]); err != nil {
			l.logger.WarnContext(ctx, "sync after account change is degraded", "error", err)
		}

	case ChainChanged:
		// Balances, blocks and indexer results are chain specific, so the
		// whole view is rebuilt instead of patched.
		l.logger.InfoContext(ctx, "chain changed, requesting reload", "chain_id", ev.ChainID)
		if l.host != nil {
			l.host.Reload()
		}

	default:
		l.logger.WarnContext(ctx, "ignoring unknown provider event", "kind", int(ev.Kind))
	}
}
