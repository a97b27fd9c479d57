package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	natspkg "github.com/brojonat/walletscope/service/nats"
	"github.com/brojonat/walletscope/service/wallet"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0xABCdef0000000000000000000000000000000001"

type fakeProvider struct {
	mu         sync.Mutex
	authorized []string
	feed       event.Feed
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return f.Accounts(ctx)
}

func (f *fakeProvider) Accounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, nil
}

func (f *fakeProvider) ChainID(ctx context.Context) (string, error) { return "1", nil }

func (f *fakeProvider) SubscribeEvents(ch chan<- wallet.ProviderEvent) event.Subscription {
	return f.feed.Subscribe(ch)
}

func (f *fakeProvider) setAuthorized(accounts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized = accounts
}

type fakeChain struct{}

func (fakeChain) ChainID(ctx context.Context) (string, error) { return "1", nil }

func (fakeChain) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), nil
}

func (fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }

func (fakeChain) BlockWithTransactions(ctx context.Context, number uint64) (*wallet.Block, error) {
	return &wallet.Block{Number: number}, nil
}

func newTestDashboard(provider wallet.Provider, pub natspkg.Publisher) (*Dashboard, *wallet.Connector) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(pub, logger)
	chain := fakeChain{}
	fetcher := wallet.NewFetcher(chain, 1, nil, logger)
	c := wallet.NewConnector(provider, chain, nil, fetcher, d, nil, nil, logger)
	d.Attach(c)
	return d, c
}

func runDashboard(t *testing.T, d *Dashboard) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("dashboard did not stop")
		}
	})
	return cancel
}

func TestRun_RequiresConnector(t *testing.T) {
	d := New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, d.Run(context.Background()))
}

func TestRun_RestoresAndPublishesSession(t *testing.T) {
	provider := &fakeProvider{authorized: []string{addr}}
	pub := natspkg.NewMockPublisher()
	d, c := newTestDashboard(provider, pub)

	runDashboard(t, d)

	require.Eventually(t, func() bool {
		return c.Session().Balance == "1.0"
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		events := pub.GetPublishedEventsOfKind(natspkg.EventSessionUpdated)
		if len(events) == 0 {
			return false
		}
		last := events[len(events)-1]
		return last.Session != nil && last.Session.Address == addr && last.Session.Balance == "1.0"
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnect_PublishesLogin(t *testing.T) {
	provider := &fakeProvider{authorized: []string{addr}}
	pub := natspkg.NewMockPublisher()
	d, c := newTestDashboard(provider, pub)
	runDashboard(t, d)

	require.Eventually(t, func() bool { return c.Session().Connected() }, time.Second, 5*time.Millisecond)
	c.Disconnect()

	logins, _ := d.Counts()
	assert.Equal(t, 1, logins)
	require.Eventually(t, func() bool {
		return len(pub.GetPublishedEventsOfKind(natspkg.EventNavigateLogin)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestChainChanged_RemountsConnector(t *testing.T) {
	provider := &fakeProvider{authorized: []string{addr}}
	pub := natspkg.NewMockPublisher()
	d, c := newTestDashboard(provider, pub)
	runDashboard(t, d)

	require.Eventually(t, func() bool { return c.Session().Connected() }, time.Second, 5*time.Millisecond)

	// After the reload only the now-authorized account is restored.
	other := "0x00000000000000000000000000000000000000bb"
	provider.setAuthorized([]string{other})
	provider.feed.Send(wallet.ProviderEvent{Kind: wallet.ChainChanged, ChainID: "5"})

	require.Eventually(t, func() bool {
		return c.Session().Address == other
	}, time.Second, 5*time.Millisecond)

	_, reloads := d.Counts()
	assert.Equal(t, 1, reloads)
	require.Eventually(t, func() bool {
		return len(pub.GetPublishedEventsOfKind(natspkg.EventReload)) == 1
	}, time.Second, 5*time.Millisecond)

	// The remounted listener still receives events.
	require.Eventually(t, func() bool {
		return provider.feed.Send(wallet.ProviderEvent{Kind: wallet.AccountsChanged, Accounts: []string{}}) == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !c.Session().Connected() }, time.Second, 5*time.Millisecond)
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	provider := &fakeProvider{}
	pub := natspkg.NewMockPublisher()
	pub.SetPublishError(errors.New("nats down"))
	d, c := newTestDashboard(provider, pub)
	runDashboard(t, d)

	c.Disconnect()

	logins, _ := d.Counts()
	assert.Equal(t, 1, logins)
	assert.Empty(t, pub.GetPublishedEvents())
}

func TestNilPublisher(t *testing.T) {
	d, c := newTestDashboard(&fakeProvider{}, nil)
	runDashboard(t, d)

	c.Disconnect()
	d.Reload()

	logins, reloads := d.Counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, reloads)
}

// stalledPublisher blocks every publish until release is closed.
type stalledPublisher struct {
	release chan struct{}

	mu       sync.Mutex
	attempts int
}

func (p *stalledPublisher) PublishSessionEvent(ctx context.Context, event *natspkg.SessionEvent) error {
	p.mu.Lock()
	p.attempts++
	p.mu.Unlock()
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *stalledPublisher) Close() error { return nil }

func (p *stalledPublisher) attempted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func TestStalledPublisherDoesNotBlockSessionWrites(t *testing.T) {
	pub := &stalledPublisher{release: make(chan struct{})}
	d, c := newTestDashboard(nil, pub)
	runDashboard(t, d)
	defer close(pub.release)

	// Far more commits than the relay buffer and the outbox hold together.
	synced := make(chan struct{})
	go func() {
		defer close(synced)
		for i := 0; i < 4*outboxSize; i++ {
			c.Sync(context.Background(), addr)
		}
	}()

	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("session writes blocked on the publisher")
	}
	assert.Equal(t, "1.0", c.Session().Balance)
	require.Eventually(t, func() bool { return pub.attempted() == 1 }, time.Second, 5*time.Millisecond)
}
