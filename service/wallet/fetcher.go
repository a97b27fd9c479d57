package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultRecentBlockWindow is how many of the newest blocks a scan covers.
const DefaultRecentBlockWindow = 10

// Activity is the outcome of a recent-activity scan. Transactions is never
// nil; Warning is set when the scan gave up and returned nothing.
type Activity struct {
	Transactions []TxRecord
	HeadBlock    uint64
	Warning      string
}

// Fetcher finds transactions touching an address in the most recent blocks.
// It is a bounded, best-effort scan used when no indexing API is available:
// results are never a complete history.
type Fetcher struct {
	chain   ChainReader
	window  int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFetcher creates a fetcher scanning window blocks back from the head.
// A window below 1 falls back to DefaultRecentBlockWindow.
// If metrics is nil, no metrics will be recorded.
func NewFetcher(chain ChainReader, window int, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	if window < 1 {
		window = DefaultRecentBlockWindow
	}
	return &Fetcher{
		chain:   chain,
		window:  window,
		metrics: m,
		logger:  logger,
	}
}

// Recent scans blocks head, head-1, ... head-(window-1) and returns every
// transaction whose sender or recipient is address, newest block first.
//
// A failure reading the head or any block in the window yields an empty
// result with a warning rather than an error.
func (f *Fetcher) Recent(ctx context.Context, address string) Activity {
	start := time.Now()

	head, err := f.chain.BlockNumber(ctx)
	if err != nil {
		return f.degrade(ctx, address, "block_number", fmt.Errorf("failed to get block number: %w", err))
	}

	count := uint64(f.window)
	if head+1 < count {
		count = head + 1
	}

	blocks := make([]*Block, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := uint64(0); i < count; i++ {
		number := head - i
		g.Go(func() error {
			block, err := f.chain.BlockWithTransactions(gctx, number)
			if err != nil {
				return fmt.Errorf("failed to get block %d: %w", number, err)
			}
			blocks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return f.degrade(ctx, address, "block", err)
	}

	matches := make([]TxRecord, 0)
	for _, block := range blocks {
		if block == nil {
			continue
		}
		ts := block.Timestamp
		for _, tx := range block.Transactions {
			if !touches(tx, address) {
				continue
			}
			matches = append(matches, TxRecord{
				Hash:           tx.Hash,
				From:           tx.From,
				To:             tx.To,
				ValueEther:     FormatEther(tx.Value),
				BlockNumber:    block.Number,
				BlockTimestamp: &ts,
			})
		}
	}

	if f.metrics != nil {
		f.metrics.RecordBlocksScanned(int(count), time.Since(start).Seconds())
		f.metrics.RecordTransactionsFetched("block_scan", len(matches))
	}

	f.logger.DebugContext(ctx, "scanned recent blocks",
		"address", address,
		"head", head,
		"blocks", count,
		"matches", len(matches),
	)

	return Activity{Transactions: matches, HeadBlock: head}
}

func (f *Fetcher) degrade(ctx context.Context, address, reason string, err error) Activity {
	f.logger.WarnContext(ctx, "recent activity scan failed, returning no transactions",
		"address", address,
		"error", err,
	)
	if f.metrics != nil {
		f.metrics.RecordScanWarning(reason)
	}
	return Activity{
		Transactions: []TxRecord{},
		Warning:      err.Error(),
	}
}

func touches(tx RawTransaction, address string) bool {
	if strings.EqualFold(tx.From, address) {
		return true
	}
	return tx.To != nil && strings.EqualFold(*tx.To, address)
}
