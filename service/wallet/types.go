package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// Session is the in-memory record of the connected wallet.
// An empty Address means no wallet is connected.
//
// A Balance that was read always carries a fractional part ("0.0" for an
// empty account, "1.5"). The bare "0" means no balance is known: the session
// is disconnected, still syncing, or Degraded.
type Session struct {
	Address      string     `json:"address"`
	ChainID      string     `json:"chainId,omitempty"`
	Balance      string     `json:"balance"` // ether-denominated decimal, "0" when unknown
	Transactions []TxRecord `json:"transactions"`
	Degraded     bool       `json:"degraded,omitempty"` // set when chain data could not be read after connecting
	Warning      string     `json:"warning,omitempty"`  // recent-activity scan warning, if any
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Connected reports whether the session holds an address.
func (s Session) Connected() bool {
	return s.Address != ""
}

// emptySession returns the cleared session every reset starts from.
func emptySession() Session {
	return Session{
		Balance:      "0",
		Transactions: []TxRecord{},
		UpdatedAt:    time.Now().UTC(),
	}
}

// TxRecord is a transaction touching the session's address.
type TxRecord struct {
	Hash           string     `json:"hash"`
	From           string     `json:"from"`
	To             *string    `json:"to"` // nil for contract creation
	ValueEther     string     `json:"valueEther"`
	BlockNumber    uint64     `json:"blockNumber,omitempty"`
	BlockTimestamp *time.Time `json:"blockTimestamp,omitempty"`
}

// EventKind identifies a provider notification.
type EventKind int

const (
	AccountsChanged EventKind = iota
	ChainChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	default:
		return "unknown"
	}
}

// ProviderEvent is a notification emitted by the wallet provider.
type ProviderEvent struct {
	Kind     EventKind
	Accounts []string // set for AccountsChanged
	ChainID  string   // set for ChainChanged
}

// Block is a block with its full transaction bodies.
type Block struct {
	Number       uint64
	Timestamp    time.Time
	Transactions []RawTransaction
}

// RawTransaction is a transaction as read from a block, sender already recovered.
type RawTransaction struct {
	Hash  string
	From  string
	To    *string
	Value *big.Int
}

// Provider is the wallet provider the connector consumes: account access plus
// account/chain change notifications.
type Provider interface {
	// RequestAccounts asks the wallet for account access (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns the already-authorized accounts without prompting (eth_accounts).
	Accounts(ctx context.Context) ([]string, error)

	// ChainID returns the provider's current chain id as a decimal string.
	ChainID(ctx context.Context) (string, error)

	// SubscribeEvents registers ch for provider events. Unsubscribe on the
	// returned handle removes the registration.
	SubscribeEvents(ch chan<- ProviderEvent) event.Subscription
}

// ChainReader is the read-only chain surface used by sync and the fetcher.
type ChainReader interface {
	// ChainID returns the chain id of the node being read, as a decimal string.
	ChainID(ctx context.Context) (string, error)
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockWithTransactions(ctx context.Context, number uint64) (*Block, error)
}

// Indexer is a transaction-indexing API. When configured it is the primary
// source of a session's transactions.
type Indexer interface {
	Transactions(ctx context.Context, address, chainID string) ([]TxRecord, error)
}

// Host receives navigation signals from the connector and listener.
type Host interface {
	// NavigateToLogin is called once per session teardown.
	NavigateToLogin()

	// Reload asks the host for a full reload: unmount, clear, remount.
	Reload()
}
