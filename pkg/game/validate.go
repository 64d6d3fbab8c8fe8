package game

import "fmt"

// ValidateAddress checks that an address looks like a wallet address:
// 0x followed by 40 hex digits.
func ValidateAddress(address string) error {
	if len(address) != 42 || address[0] != '0' || (address[1] != 'x' && address[1] != 'X') {
		return fmt.Errorf("invalid player address %q", address)
	}
	for _, c := range address[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return fmt.Errorf("invalid player address %q", address)
		}
	}
	return nil
}

// ValidateCountryCode checks for a 2-letter uppercase country code.
func ValidateCountryCode(code string) error {
	if len(code) != 2 {
		return fmt.Errorf("invalid country code %q", code)
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return fmt.Errorf("invalid country code %q", code)
		}
	}
	return nil
}
