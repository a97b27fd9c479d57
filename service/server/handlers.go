package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"unicode"

	"github.com/brojonat/walletscope/service/wallet"
	"github.com/ethereum/go-ethereum/common"
)

const maxAddressLength = 100 // hex addresses are 42 chars, give buffer

// transactionsResponse is the proxy envelope: result on success, error otherwise.
type transactionsResponse struct {
	Result []wallet.TxRecord `json:"result"`
}

// handleTransactions proxies the indexing API.
// GET /api/transactions?address={address}&chainId={chainId}
func handleTransactions(indexer wallet.Indexer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		chainID := r.URL.Query().Get("chainId")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateChainID(chainID); err != nil {
			logger.Debug("invalid chain id", "chain_id", chainID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if indexer == nil {
			writeError(w, "transactions indexer not configured", http.StatusServiceUnavailable)
			return
		}

		txns, err := indexer.Transactions(r.Context(), address, chainID)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to fetch transactions",
				"address", address,
				"chain_id", chainID,
				"error", err,
			)
			writeError(w, "failed to fetch transactions", http.StatusBadGateway)
			return
		}
		if txns == nil {
			txns = []wallet.TxRecord{}
		}

		logger.Debug("transactions proxied", "address", address, "chain_id", chainID, "count", len(txns))
		writeJSON(w, transactionsResponse{Result: txns}, http.StatusOK)
	})
}

// handleGetSession returns the current session snapshot.
// GET /api/session
func handleGetSession(sessions SessionService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sessions.Session(), http.StatusOK)
	})
}

// handleConnect requests account access from the wallet provider.
// POST /api/session/connect
//
// A connected session whose balance read failed is still a successful
// connection: it is returned with 200 and degraded set.
func handleConnect(sessions SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessions.Connect(r.Context())

		var fetchErr *wallet.DataFetchError
		var providerErr *wallet.ProviderError
		switch {
		case err == nil:
		case errors.As(err, &fetchErr):
			logger.WarnContext(r.Context(), "connected with degraded session", "error", err)
		case errors.Is(err, wallet.ErrProviderUnavailable):
			writeError(w, err.Error(), http.StatusServiceUnavailable)
			return
		case errors.Is(err, wallet.ErrUserRejected):
			writeError(w, "user rejected the connection request", http.StatusForbidden)
			return
		case errors.As(err, &providerErr):
			writeError(w, err.Error(), http.StatusBadGateway)
			return
		default:
			logger.ErrorContext(r.Context(), "connect failed", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, sess, http.StatusOK)
	})
}

// handleDisconnect clears the session.
// POST /api/session/disconnect
func handleDisconnect(sessions SessionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions.Disconnect()
		logger.InfoContext(r.Context(), "session disconnected via api")
		writeJSON(w, sessions.Session(), http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a hex account address.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !common.IsHexAddress(address) {
		return errorf("invalid address format: must be a 20-byte hex address")
	}

	return nil
}

// validateChainID validates a decimal EIP-155 chain id.
func validateChainID(chainID string) error {
	if chainID == "" {
		return errorf("chainId is required")
	}

	id, err := strconv.ParseUint(chainID, 10, 64)
	if err != nil || id == 0 {
		return errorf("invalid chainId: must be a positive decimal integer")
	}

	return nil
}

func errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
