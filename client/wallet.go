// Package client is the HTTP client for the walletscope server: the
// transactions proxy and the session endpoints.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/walletscope/service/wallet"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the walletscope service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new walletscope client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Transactions fetches the transactions of address on chainID through the
// server's proxy. It satisfies wallet.Indexer, so a connector can use a
// remote walletscope server as its indexing API.
func (c *Client) Transactions(ctx context.Context, address, chainID string) ([]wallet.TxRecord, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("chainId", chainID)

	var response struct {
		Result []wallet.TxRecord `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/transactions?"+q.Encode(), &response); err != nil {
		return nil, err
	}
	if response.Result == nil {
		response.Result = []wallet.TxRecord{}
	}

	c.logger.Debug("transactions fetched", "address", address, "chain_id", chainID, "count", len(response.Result))
	return response.Result, nil
}

// Session returns the server's current session.
func (c *Client) Session(ctx context.Context) (*wallet.Session, error) {
	var sess wallet.Session
	if err := c.do(ctx, http.MethodGet, "/api/session", &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Connect asks the server to request account access from its wallet provider.
func (c *Client) Connect(ctx context.Context) (*wallet.Session, error) {
	var sess wallet.Session
	if err := c.do(ctx, http.MethodPost, "/api/session/connect", &sess); err != nil {
		return nil, err
	}
	c.logger.Debug("session connected", "address", sess.Address)
	return &sess, nil
}

// Disconnect clears the server's session.
func (c *Client) Disconnect(ctx context.Context) (*wallet.Session, error) {
	var sess wallet.Session
	if err := c.do(ctx, http.MethodPost, "/api/session/disconnect", &sess); err != nil {
		return nil, err
	}
	c.logger.Debug("session disconnected")
	return &sess, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse extracts the error message from an error response.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
