package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
	"github.com/brojonat/walletscope/service/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCCaller is the JSON-RPC surface the provider needs; *rpc.Client satisfies it.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Provider is a wallet provider reached over JSON-RPC, such as a wallet bridge
// or a signer exposing eth_requestAccounts. It implements wallet.Provider.
//
// JSON-RPC has no push notifications for account or chain changes, so Watch
// polls eth_accounts and eth_chainId and emits an event whenever either
// differs from the previous poll.
type Provider struct {
	rpc      RPCCaller
	interval time.Duration
	endpoint string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	feed     event.Feed

	mu       sync.Mutex
	accounts []string
	chainID  string
	seeded   bool
}

// DialProvider connects to a wallet provider JSON-RPC endpoint.
func DialProvider(ctx context.Context, url string) (*rpc.Client, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet provider: %w", err)
	}
	return client, nil
}

// NewProvider creates a provider polling for changes every interval.
// If metrics is nil, no metrics will be recorded.
func NewProvider(caller RPCCaller, interval time.Duration, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Provider {
	return &Provider{
		rpc:      caller,
		interval: interval,
		endpoint: endpoint,
		metrics:  m,
		logger:   logger,
	}
}

// RequestAccounts asks the wallet for account access.
// Provider errors are returned unwrapped so their JSON-RPC code survives.
func (p *Provider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Accounts returns the accounts already authorized for this client.
func (p *Provider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ChainID returns the provider's chain id in decimal.
func (p *Provider) ChainID(ctx context.Context) (string, error) {
	var id hexutil.Big
	if err := p.call(ctx, &id, "eth_chainId"); err != nil {
		return "", err
	}
	return id.ToInt().String(), nil
}

// SubscribeEvents registers ch for account and chain change events.
func (p *Provider) SubscribeEvents(ch chan<- wallet.ProviderEvent) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Watch polls the provider until ctx is cancelled. The first successful poll
// only records the baseline; later polls emit events for differences.
func (p *Provider) Watch(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll reads accounts and chain id once and emits events for changes.
// A failed read skips the round without disturbing the baseline.
func (p *Provider) poll(ctx context.Context) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to poll provider accounts", "error", err)
		return
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to poll provider chain id", "error", err)
		return
	}

	p.mu.Lock()
	seeded := p.seeded
	accountsChanged := seeded && !sameAccounts(p.accounts, accounts)
	chainChanged := seeded && p.chainID != chainID
	p.accounts = accounts
	p.chainID = chainID
	p.seeded = true
	p.mu.Unlock()

	if chainChanged {
		p.logger.InfoContext(ctx, "provider chain changed", "chain_id", chainID)
		p.feed.Send(wallet.ProviderEvent{Kind: wallet.ChainChanged, ChainID: chainID})
	}
	if accountsChanged {
		p.logger.InfoContext(ctx, "provider accounts changed", "count", len(accounts))
		p.feed.Send(wallet.ProviderEvent{Kind: wallet.AccountsChanged, Accounts: slices.Clone(accounts)})
	}
}

func (p *Provider) call(ctx context.Context, result interface{}, method string) error {
	start := time.Now()
	err := p.rpc.CallContext(ctx, result, method)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordRPCCall(method, status, p.endpoint, time.Since(start).Seconds())
	}
	return err
}

// sameAccounts compares account lists in order, ignoring hex case.
func sameAccounts(a, b []string) bool {
	return slices.EqualFunc(a, b, strings.EqualFold)
}
