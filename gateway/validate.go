package gateway

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"unicode/utf8"
)

const (
	minNameLen    = 2
	maxNameLen    = 50
	maxBioLen     = 500
	maxCaptionLen = 1000
)

var amountPattern = regexp.MustCompile(`^\d+$`)

// parseAmount parses a base-unit integer string. Decimal points, signs, and
// exponents are rejected so amounts never round.
func parseAmount(raw string, requirePositive bool) (*big.Int, error) {
	if raw == "" {
		if requirePositive {
			return nil, errors.New("amount required")
		}
		return big.NewInt(0), nil
	}
	if !amountPattern.MatchString(raw) {
		return nil, fmt.Errorf("amount %q must be a non-negative integer in base units", raw)
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a valid integer", raw)
	}
	if requirePositive && amount.Sign() <= 0 {
		return nil, errors.New("amount must be greater than zero")
	}
	return amount, nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return fmt.Errorf("name must be between %d and %d characters", minNameLen, maxNameLen)
	}
	return nil
}

func validateBio(bio string) error {
	if utf8.RuneCountInString(bio) > maxBioLen {
		return fmt.Errorf("bio must be at most %d characters", maxBioLen)
	}
	return nil
}

func validateCaption(caption string) error {
	if utf8.RuneCountInString(caption) > maxCaptionLen {
		return fmt.Errorf("caption must be at most %d characters", maxCaptionLen)
	}
	return nil
}
