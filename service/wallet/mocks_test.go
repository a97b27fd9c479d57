package wallet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// mockProvider implements Provider for testing.
// It's behavior-focused: we set what it should return and push events by hand.
type mockProvider struct {
	mu          sync.Mutex
	requested   []string
	requestErr  error
	authorized  []string
	accountsErr error
	chainID     string
	feed        event.Feed
}

func (m *mockProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requestErr != nil {
		return nil, m.requestErr
	}
	return m.requested, nil
}

func (m *mockProvider) Accounts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountsErr != nil {
		return nil, m.accountsErr
	}
	return m.authorized, nil
}

func (m *mockProvider) ChainID(ctx context.Context) (string, error) {
	if m.chainID == "" {
		return "1", nil
	}
	return m.chainID, nil
}

func (m *mockProvider) SubscribeEvents(ch chan<- ProviderEvent) event.Subscription {
	return m.feed.Subscribe(ch)
}

func (m *mockProvider) emit(ev ProviderEvent) int {
	return m.feed.Send(ev)
}

// mockChain implements ChainReader for testing.
type mockChain struct {
	mu         sync.Mutex
	chainID    string // "1" when empty
	chainErr   error
	balances   map[string]*big.Int
	balanceErr error
	head       uint64
	headErr    error
	blocks     map[uint64]*Block
	blockErrs  map[uint64]error
	// gate, when set, blocks BalanceAt for the given address until closed.
	gate map[string]chan struct{}
}

func newMockChain() *mockChain {
	return &mockChain{
		balances:  make(map[string]*big.Int),
		blocks:    make(map[uint64]*Block),
		blockErrs: make(map[uint64]error),
		gate:      make(map[string]chan struct{}),
	}
}

func (m *mockChain) ChainID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chainErr != nil {
		return "", m.chainErr
	}
	if m.chainID == "" {
		return "1", nil
	}
	return m.chainID, nil
}

func (m *mockChain) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	m.mu.Lock()
	gate := m.gate[address]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	if b, ok := m.balances[address]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (m *mockChain) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head, m.headErr
}

func (m *mockChain) BlockWithTransactions(ctx context.Context, number uint64) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.blockErrs[number]; err != nil {
		return nil, err
	}
	if b, ok := m.blocks[number]; ok {
		return b, nil
	}
	return &Block{Number: number, Timestamp: time.Unix(int64(number)*12, 0).UTC()}, nil
}

// mockIndexer implements Indexer for testing.
type mockIndexer struct {
	mu        sync.Mutex
	byAddress map[string][]TxRecord
	err       error
	calls     int
	chainIDs  []string
}

func (m *mockIndexer) Transactions(ctx context.Context, address, chainID string) ([]TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.chainIDs = append(m.chainIDs, chainID)
	if m.err != nil {
		return nil, m.err
	}
	return m.byAddress[address], nil
}

// recordingHost counts navigation signals.
type recordingHost struct {
	mu      sync.Mutex
	logins  int
	reloads int
}

func (h *recordingHost) NavigateToLogin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logins++
}

func (h *recordingHost) Reload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads++
}

func (h *recordingHost) counts() (logins, reloads int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logins, h.reloads
}

// rpcError mimics a JSON-RPC error with a code, like go-ethereum's rpc.Error.
type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func strPtr(s string) *string {
	return &s
}

func txTo(hash, from, to string, wei int64) RawTransaction {
	return RawTransaction{Hash: hash, From: from, To: strPtr(to), Value: big.NewInt(wei)}
}

func hashFor(block uint64, i int) string {
	return fmt.Sprintf("0x%064x", block*100+uint64(i))
}
