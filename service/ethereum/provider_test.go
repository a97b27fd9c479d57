package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/walletscope/service/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC answers JSON-RPC calls from a method table, decoding the canned
// JSON into result the way the rpc client does.
type fakeRPC struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeRPC) set(method, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = raw
}

func (f *fakeRPC) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeRPC) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if err := f.errs[method]; err != nil {
		return err
	}
	raw, ok := f.responses[method]
	if !ok {
		return errors.New("method not found")
	}
	return json.Unmarshal([]byte(raw), result)
}

// codedErr mimics rpc.jsonError, which exposes ErrorCode.
type codedErr struct{ code int }

func (e codedErr) Error() string  { return "User rejected the request." }
func (e codedErr) ErrorCode() int { return e.code }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProvider_RequestAccounts(t *testing.T) {
	rpc := newFakeRPC()
	rpc.set("eth_requestAccounts", `["0xABCdef0000000000000000000000000000000001"]`)
	p := NewProvider(rpc, time.Second, "test", nil, testLogger())

	accounts, err := p.RequestAccounts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"0xABCdef0000000000000000000000000000000001"}, accounts)
}

func TestProvider_RequestAccountsKeepsErrorCode(t *testing.T) {
	rpc := newFakeRPC()
	rpc.fail("eth_requestAccounts", codedErr{code: wallet.UserRejectedCode})
	p := NewProvider(rpc, time.Second, "test", nil, testLogger())

	_, err := p.RequestAccounts(context.Background())

	var coded interface{ ErrorCode() int }
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, wallet.UserRejectedCode, coded.ErrorCode())
}

func TestProvider_ChainIDIsDecimal(t *testing.T) {
	rpc := newFakeRPC()
	rpc.set("eth_chainId", `"0xaa36a7"`)
	p := NewProvider(rpc, time.Second, "test", nil, testLogger())

	id, err := p.ChainID(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "11155111", id)
}

func TestProvider_PollEmitsOnlyAfterBaseline(t *testing.T) {
	rpc := newFakeRPC()
	rpc.set("eth_accounts", `["0xaaa"]`)
	rpc.set("eth_chainId", `"0x1"`)
	p := NewProvider(rpc, time.Second, "test", nil, testLogger())

	events := make(chan wallet.ProviderEvent, 4)
	sub := p.SubscribeEvents(events)
	defer sub.Unsubscribe()

	ctx := context.Background()
	p.poll(ctx)
	assert.Empty(t, events)

	// Case-only changes are not account changes.
	rpc.set("eth_accounts", `["0xAAA"]`)
	p.poll(ctx)
	assert.Empty(t, events)

	rpc.set("eth_accounts", `["0xbbb","0xaaa"]`)
	p.poll(ctx)
	require.Len(t, events, 1)
	ev := <-events
	assert.Equal(t, wallet.AccountsChanged, ev.Kind)
	assert.Equal(t, []string{"0xbbb", "0xaaa"}, ev.Accounts)

	rpc.set("eth_chainId", `"0x89"`)
	p.poll(ctx)
	require.Len(t, events, 1)
	ev = <-events
	assert.Equal(t, wallet.ChainChanged, ev.Kind)
	assert.Equal(t, "137", ev.ChainID)
}

func TestProvider_PollEmitsEmptyAccounts(t *testing.T) {
	rpc := newFakeRPC()
	rpc.set("eth_accounts", `["0xaaa"]`)
	rpc.set("eth_chainId", `"0x1"`)
	p := NewProvider(rpc, time.Second, "test", nil, testLogger())

	events := make(chan wallet.ProviderEvent, 4)
	sub := p.SubscribeEvents(events)
	defer sub.Unsubscribe()

	p.poll(context.Background())
	rpc.set("eth_accounts", `[]`)
	p.poll(context.Background())

	require.Len(t, events, 1)
	ev := <-events
	assert.Equal(t, wallet.AccountsChanged, ev.Kind)
	assert.Empty(t, ev.Accounts)
}

func TestProvider_PollFailureKeepsBaseline(t *testing.T) {
	rpc := newFakeRPC()
	rpc.set("eth_accounts", `["0xaaa"]`)
	rpc.set("eth_chainId", `"0x1"`)
	p := NewProvider(rpc, time.Second, "test", nil, testLogger())

	events := make(chan wallet.ProviderEvent, 4)
	sub := p.SubscribeEvents(events)
	defer sub.Unsubscribe()

	p.poll(context.Background())
	rpc.fail("eth_chainId", errors.New("timeout"))
	rpc.set("eth_accounts", `["0xbbb"]`)
	p.poll(context.Background())
	assert.Empty(t, events)

	rpc.fail("eth_chainId", nil)
	p.poll(context.Background())
	require.Len(t, events, 1)
}

func TestProvider_WatchStopsOnCancel(t *testing.T) {
	rpc := newFakeRPC()
	rpc.set("eth_accounts", `[]`)
	rpc.set("eth_chainId", `"0x1"`)
	p := NewProvider(rpc, 10*time.Millisecond, "test", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	require.Eventually(t, func() bool {
		rpc.mu.Lock()
		defer rpc.mu.Unlock()
		return len(rpc.calls) >= 4
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}
