// Package etherscan is a client for the Etherscan v2 account API, the
// indexing service behind the transactions proxy.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
	"github.com/brojonat/walletscope/service/wallet"
)

// DefaultBaseURL is the Etherscan v2 multichain endpoint.
const DefaultBaseURL = "https://api.etherscan.io/v2/api"

// DefaultPageSize bounds how many transactions a single lookup returns.
const DefaultPageSize = 50

// Client queries the Etherscan txlist action. It implements wallet.Indexer.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates an Etherscan client.
// If httpClient is nil a client with a 15s timeout is used.
// If metrics is nil, no metrics will be recorded.
func NewClient(baseURL, apiKey string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		pageSize:   DefaultPageSize,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// envelope is the common Etherscan response wrapper. Result is an array on
// success and a string message on failure.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type txResponse struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	IsError         string `json:"isError"`
}

// ErrMissingChainID is returned when Transactions is called without a chain id.
var ErrMissingChainID = errors.New("chain id is required")

// Transactions returns the normal transactions of address on chainID,
// newest first. chainID must be set; there is no default chain.
func (c *Client) Transactions(ctx context.Context, address, chainID string) ([]wallet.TxRecord, error) {
	start := time.Now()
	records, err := c.transactions(ctx, address, chainID)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordIndexerRequest(status, time.Since(start).Seconds())
	}
	return records, err
}

func (c *Client) transactions(ctx context.Context, address, chainID string) ([]wallet.TxRecord, error) {
	if chainID == "" {
		return nil, ErrMissingChainID
	}

	q := url.Values{}
	q.Set("chainid", chainID)
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "latest")
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(c.pageSize))
	q.Set("sort", "desc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("etherscan request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read etherscan response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode etherscan response: %w", err)
	}

	if env.Status != "1" {
		// An address without history is reported as a failure with an empty array.
		if strings.EqualFold(env.Message, "No transactions found") {
			return []wallet.TxRecord{}, nil
		}
		var detail string
		if err := json.Unmarshal(env.Result, &detail); err != nil || detail == "" {
			detail = env.Message
		}
		return nil, fmt.Errorf("etherscan error: %s", detail)
	}

	var raw []txResponse
	if err := json.Unmarshal(env.Result, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode etherscan transactions: %w", err)
	}

	records := make([]wallet.TxRecord, 0, len(raw))
	for _, r := range raw {
		rec, err := toRecord(r)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping malformed etherscan transaction",
				"hash", r.Hash,
				"error", err,
			)
			continue
		}
		records = append(records, rec)
	}

	c.logger.DebugContext(ctx, "fetched transactions from etherscan",
		"address", address,
		"chain_id", chainID,
		"count", len(records),
	)
	return records, nil
}

func toRecord(r txResponse) (wallet.TxRecord, error) {
	wei, ok := wallet.ParseWei(r.Value)
	if !ok {
		return wallet.TxRecord{}, fmt.Errorf("invalid value %q", r.Value)
	}
	blockNumber, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return wallet.TxRecord{}, fmt.Errorf("invalid block number %q: %w", r.BlockNumber, err)
	}

	rec := wallet.TxRecord{
		Hash:        r.Hash,
		From:        r.From,
		ValueEther:  wallet.FormatEther(wei),
		BlockNumber: blockNumber,
	}
	if r.To != "" {
		to := r.To
		rec.To = &to
	}
	if secs, err := strconv.ParseInt(r.TimeStamp, 10, 64); err == nil {
		ts := time.Unix(secs, 0).UTC()
		rec.BlockTimestamp = &ts
	}
	return rec, nil
}
