package game

import (
	"fmt"
	"math/big"
	"strings"
)

// RewardDecimals is the fixed-point precision of token amounts. All amounts
// in the engine are integers scaled by 10^18, matching the on-chain token.
const RewardDecimals = 18

var amountUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(RewardDecimals), nil)

// ParseTokenAmount converts a decimal token string such as "0.01" into its
// 18-decimal fixed-point integer representation.
func ParseTokenAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty token amount")
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole = s[:i]
		frac = s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > RewardDecimals {
		return nil, fmt.Errorf("token amount %q has more than %d fractional digits", s, RewardDecimals)
	}

	wholeInt, ok := new(big.Int).SetString(whole, 10)
	if !ok || wholeInt.Sign() < 0 {
		return nil, fmt.Errorf("invalid token amount %q", s)
	}

	amount := new(big.Int).Mul(wholeInt, amountUnit)
	if frac != "" {
		fracInt, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, fmt.Errorf("invalid token amount %q", s)
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(RewardDecimals-len(frac))), nil)
		amount.Add(amount, fracInt.Mul(fracInt, scale))
	}

	return amount, nil
}

// FormatTokenAmount renders a fixed-point amount back into a decimal token
// string, trimming trailing zeros from the fractional part.
func FormatTokenAmount(a *big.Int) string {
	if a == nil {
		return "0"
	}

	quo, rem := new(big.Int).QuoRem(a, amountUnit, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}

	frac := fmt.Sprintf("%018s", rem.String())
	frac = strings.TrimRight(frac, "0")
	return quo.String() + "." + frac
}
