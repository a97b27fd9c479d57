package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
)

// Connector owns the wallet session: it connects, disconnects and
// synchronizes balance and transactions for the active address.
type Connector struct {
	provider Provider // nil when no wallet provider is injected
	chain    ChainReader
	indexer  Indexer // optional
	fetcher  *Fetcher
	host     Host
	state    *State
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	listener *Listener
}

// NewConnector creates a connector writing into state.
// provider may be nil, in which case Connect fails with ErrProviderUnavailable.
// indexer may be nil, in which case transactions come from the fetcher alone.
// If metrics is nil, no metrics will be recorded.
func NewConnector(
	provider Provider,
	chain ChainReader,
	indexer Indexer,
	fetcher *Fetcher,
	host Host,
	state *State,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Connector {
	if state == nil {
		state = NewState()
	}
	return &Connector{
		provider: provider,
		chain:    chain,
		indexer:  indexer,
		fetcher:  fetcher,
		host:     host,
		state:    state,
		metrics:  m,
		logger:   logger,
	}
}

// State returns the session handle readers should use.
func (c *Connector) State() *State {
	return c.state
}

// Session returns a snapshot of the current session.
func (c *Connector) Session() Session {
	return c.state.Snapshot()
}

// Mount subscribes the event listener and restores an already-authorized
// session, if the provider reports one. Without a provider Mount is a no-op.
// A failing sync during restore is logged; Mount itself only fails when the
// listener cannot subscribe.
func (c *Connector) Mount(ctx context.Context) error {
	if c.provider == nil {
		c.logger.InfoContext(ctx, "no wallet provider configured, skipping mount")
		return nil
	}

	c.mu.Lock()
	if c.listener != nil {
		c.mu.Unlock()
		return fmt.Errorf("connector already mounted")
	}
	listener := NewListener(c.provider, c, c.host, c.metrics, c.logger)
	if err := listener.Start(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start listener: %w", err)
	}
	c.listener = listener
	c.mu.Unlock()

	accounts, err := c.provider.Accounts(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to check authorized accounts", "error", err)
		return nil
	}
	if len(accounts) == 0 {
		c.logger.DebugContext(ctx, "no authorized session to restore")
		return nil
	}

	c.logger.InfoContext(ctx, "restoring authorized session", "address", accounts[0])
	if err := c.Sync(ctx, accounts[0]); err != nil {
		c.logger.WarnContext(ctx, "restored session is degraded", "error", err)
	}
	return nil
}

// Unmount stops the event listener. The session is left as is.
func (c *Connector) Unmount() {
	c.mu.Lock()
	listener := c.listener
	c.listener = nil
	c.mu.Unlock()

	if listener != nil {
		listener.Stop()
	}
}

// Connect requests account access and synchronizes the first account.
// On failure the session is cleared and one of ErrProviderUnavailable,
// ErrUserRejected or *ProviderError is returned. A successful connection
// whose data reads fail returns the session with a *DataFetchError.
func (c *Connector) Connect(ctx context.Context) (Session, error) {
	if c.provider == nil {
		c.clear()
		c.recordConnect("unavailable")
		return c.state.Snapshot(), ErrProviderUnavailable
	}

	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		c.clear()
		classified := classifyProviderError(err)
		if errors.Is(classified, ErrUserRejected) {
			c.recordConnect("rejected")
			c.logger.InfoContext(ctx, "user rejected account access")
		} else {
			c.recordConnect("error")
			c.logger.ErrorContext(ctx, "failed to request accounts", "error", err)
		}
		return c.state.Snapshot(), classified
	}
	if len(accounts) == 0 {
		c.clear()
		c.recordConnect("error")
		return c.state.Snapshot(), &ProviderError{Err: errors.New("provider returned no accounts")}
	}

	c.recordConnect("success")
	c.logger.InfoContext(ctx, "wallet connected", "address", accounts[0])

	syncErr := c.Sync(ctx, accounts[0])
	return c.state.Snapshot(), syncErr
}

// Disconnect clears the session and tells the host to show the login view.
// Provider-level authorization is left untouched.
func (c *Connector) Disconnect() {
	c.clear()
	c.logger.Info("wallet disconnected")
	if c.host != nil {
		c.host.NavigateToLogin()
	}
}

// Reset clears the session without notifying the host. Any in-flight sync
// is superseded.
func (c *Connector) Reset() {
	c.clear()
}

// Sync replaces the session with fresh data for address. State is reset to
// the bare address first, so nothing from a previous address survives.
//
// The provider's chain must match the chain the reader is connected to. A
// mismatch (ErrChainMismatch) or a failed chain id or balance read returns a
// *DataFetchError and leaves the session connected but degraded, with no
// balance and no transactions. Transaction reads never fail the sync: indexer
// errors fall back to the fetcher, and fetcher errors yield an empty list.
//
// Concurrent syncs resolve last-write-wins: results of a sync superseded by a
// later Sync, Disconnect or failed Connect are discarded.
func (c *Connector) Sync(ctx context.Context, address string) error {
	start := time.Now()
	token := c.state.begin()

	sess := emptySession()
	sess.Address = address
	c.state.commit(token, sess)

	if c.provider != nil {
		if chainID, err := c.provider.ChainID(ctx); err != nil {
			c.logger.WarnContext(ctx, "failed to read chain id", "error", err)
		} else {
			sess.ChainID = chainID
		}
	}

	if sess.ChainID != "" {
		nodeChainID, err := c.chain.ChainID(ctx)
		if err != nil {
			return c.degrade(ctx, token, sess, "chain_id", err, start)
		}
		if nodeChainID != sess.ChainID {
			err := fmt.Errorf("%w: provider on %s, node on %s", ErrChainMismatch, sess.ChainID, nodeChainID)
			return c.degrade(ctx, token, sess, "chain_id", err, start)
		}
	}

	balance, err := c.chain.BalanceAt(ctx, address)
	if err != nil {
		return c.degrade(ctx, token, sess, "balance", err, start)
	}
	sess.Balance = FormatEther(balance)

	txns, warning := c.transactions(ctx, address, sess.ChainID)
	sess.Transactions = txns
	sess.Warning = warning
	sess.UpdatedAt = time.Now().UTC()

	c.finishSync(ctx, token, sess, "success", start)
	return nil
}

// transactions reads from the indexer when configured, otherwise (or on
// indexer failure) from a recent-block scan.
func (c *Connector) transactions(ctx context.Context, address, chainID string) ([]TxRecord, string) {
	if c.indexer != nil {
		txns, err := c.indexer.Transactions(ctx, address, chainID)
		if err == nil {
			if txns == nil {
				txns = []TxRecord{}
			}
			if c.metrics != nil {
				c.metrics.RecordTransactionsFetched("indexer", len(txns))
			}
			return txns, ""
		}
		c.logger.WarnContext(ctx, "indexer failed, falling back to block scan",
			"address", address,
			"error", err,
		)
	}

	if c.fetcher == nil {
		return []TxRecord{}, ""
	}
	activity := c.fetcher.Recent(ctx, address)
	return activity.Transactions, activity.Warning
}

// degrade commits sess as connected without chain data and returns the
// non-fatal read error.
func (c *Connector) degrade(ctx context.Context, token uint64, sess Session, op string, err error, start time.Time) error {
	c.logger.WarnContext(ctx, "chain read failed, session degraded",
		"address", sess.Address,
		"op", op,
		"error", err,
	)
	sess.Degraded = true
	sess.UpdatedAt = time.Now().UTC()
	c.finishSync(ctx, token, sess, "degraded", start)
	return &DataFetchError{Address: sess.Address, Op: op, Err: err}
}

func (c *Connector) finishSync(ctx context.Context, token uint64, sess Session, status string, start time.Time) {
	if !c.state.commit(token, sess) {
		status = "superseded"
		c.logger.DebugContext(ctx, "discarding superseded sync", "address", sess.Address)
	} else {
		c.logger.InfoContext(ctx, "session synchronized",
			"address", sess.Address,
			"balance", sess.Balance,
			"transactions", len(sess.Transactions),
			"degraded", sess.Degraded,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordSync(status, time.Since(start).Seconds())
	}
}

// clear resets the session to empty, superseding any in-flight sync.
func (c *Connector) clear() {
	token := c.state.begin()
	c.state.commit(token, emptySession())
}

func (c *Connector) recordConnect(result string) {
	if c.metrics != nil {
		c.metrics.RecordConnectAttempt(result)
	}
}
