package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
	"github.com/brojonat/walletscope/service/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient is the subset of go-ethereum's ethclient.Client we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type EthClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// ChainReader reads balances and blocks from an Ethereum node.
// It implements wallet.ChainReader.
type ChainReader struct {
	client   EthClient
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
	metrics  *metrics.Metrics
	logger   *slog.Logger

	chainMu sync.Mutex
	chainID *big.Int
	signer  types.Signer
}

var _ wallet.ChainReader = (*ChainReader)(nil)

// Dial connects to an Ethereum JSON-RPC endpoint.
// For hosted endpoints that require API keys, include the key in the URL:
// - Alchemy: https://eth-mainnet.g.alchemy.com/v2/YOUR-KEY
// - Infura: https://mainnet.infura.io/v3/YOUR-KEY
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum rpc: %w", err)
	}
	return client, nil
}

// NewChainReader creates a chain reader over client.
// The endpoint parameter is used for metrics labeling.
// If metrics is nil, no metrics will be recorded.
func NewChainReader(client EthClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *ChainReader {
	return &ChainReader{
		client:   client,
		endpoint: endpoint,
		metrics:  m,
		logger:   logger,
	}
}

// BalanceAt returns the latest balance of address in wei.
func (c *ChainReader) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	start := time.Now()
	balance, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	c.record("eth_getBalance", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// BlockNumber returns the current head block number.
func (c *ChainReader) BlockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	n, err := c.client.BlockNumber(ctx)
	c.record("eth_blockNumber", err, start)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// BlockWithTransactions fetches block number with full transaction bodies and
// recovers each sender.
func (c *ChainReader) BlockWithTransactions(ctx context.Context, number uint64) (*wallet.Block, error) {
	signer, err := c.chainSigner(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	block, err := c.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	c.record("eth_getBlockByNumber", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}

	txns, err := convertTransactions(block.Transactions(), signer)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", number, err)
	}

	return &wallet.Block{
		Number:       block.NumberU64(),
		Timestamp:    time.Unix(int64(block.Time()), 0).UTC(),
		Transactions: txns,
	}, nil
}

// ChainID returns the node's chain id as a decimal string.
func (c *ChainReader) ChainID(ctx context.Context) (string, error) {
	id, err := c.nodeChainID(ctx)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// chainSigner returns the signer for the node's chain.
func (c *ChainReader) chainSigner(ctx context.Context) (types.Signer, error) {
	id, err := c.nodeChainID(ctx)
	if err != nil {
		return nil, err
	}

	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.signer == nil {
		c.signer = types.LatestSignerForChainID(id)
	}
	return c.signer, nil
}

// nodeChainID looks the chain id up once. A reader is bound to a single RPC
// endpoint, whose chain does not change; a wallet provider switching chains
// is caught by comparing against this value.
func (c *ChainReader) nodeChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()

	if c.chainID != nil {
		return c.chainID, nil
	}

	start := time.Now()
	chainID, err := c.client.ChainID(ctx)
	c.record("eth_chainId", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	c.chainID = chainID
	c.logger.DebugContext(ctx, "resolved node chain id", "chain_id", chainID.String())
	return c.chainID, nil
}

func (c *ChainReader) record(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// convertTransactions maps block transactions onto the wallet domain,
// recovering senders with signer.
func convertTransactions(txs types.Transactions, signer types.Signer) ([]wallet.RawTransaction, error) {
	out := make([]wallet.RawTransaction, 0, len(txs))
	for _, tx := range txs {
		from, err := types.Sender(signer, tx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover sender of %s: %w", tx.Hash().Hex(), err)
		}

		var to *string
		if addr := tx.To(); addr != nil {
			s := addr.Hex()
			to = &s
		}

		out = append(out, wallet.RawTransaction{
			Hash:  tx.Hash().Hex(),
			From:  from.Hex(),
			To:    to,
			Value: tx.Value(),
		})
	}
	return out, nil
}
