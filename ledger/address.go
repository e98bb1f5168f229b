package ledger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s is a strict 0x-prefixed 40-hex-digit address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(strings.TrimSpace(s))
}

// ParseAddress canonicalizes an address string. Two case variants of the same
// address parse to equal values.
func ParseAddress(s string) (common.Address, error) {
	trimmed := strings.TrimSpace(s)
	if !addressPattern.MatchString(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(trimmed), nil
}
