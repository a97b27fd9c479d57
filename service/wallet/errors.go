package wallet

import (
	"errors"
	"fmt"
)

// UserRejectedCode is the EIP-1193 error code for a request the user denied.
const UserRejectedCode = 4001

var (
	// ErrProviderUnavailable is returned when no wallet provider is configured.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrUserRejected is returned when the user denies account access.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrChainMismatch is returned when the provider and the chain reader are
	// on different chains.
	ErrChainMismatch = errors.New("provider and node are on different chains")
)

// ProviderError is any provider-reported failure other than a user rejection.
type ProviderError struct {
	Code int // 0 when the provider did not report a code
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error (code %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// DataFetchError reports a failed read after a successful connection.
// It is non-fatal: the session stays connected in a degraded state.
type DataFetchError struct {
	Address string
	Op      string
	Err     error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s for %s: %v", e.Op, e.Address, e.Err)
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}

// codedError matches JSON-RPC errors that carry a numeric code,
// such as go-ethereum's rpc.Error.
type codedError interface {
	ErrorCode() int
}

// classifyProviderError maps a raw provider error onto the connect taxonomy.
func classifyProviderError(err error) error {
	var coded codedError
	if errors.As(err, &coded) {
		if coded.ErrorCode() == UserRejectedCode {
			return fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		return &ProviderError{Code: coded.ErrorCode(), Err: err}
	}
	return &ProviderError{Err: err}
}
