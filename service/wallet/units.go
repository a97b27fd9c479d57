package wallet

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// FormatEther renders a wei amount in ether, always with a fractional part
// ("1.0", "0.5", "12.000001").
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}
	s := decimal.NewFromBigInt(wei, -etherDecimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ParseWei parses a base-10 wei string as returned by indexing APIs.
func ParseWei(s string) (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(s), 10)
}
