package pinning

import (
	"regexp"
	"strings"
)

// DefaultGatewayBase resolves a content identifier to a public HTTP URL.
const DefaultGatewayBase = "https://gateway.pinata.cloud/ipfs/"

var (
	// CIDv0: Qm followed by 44 base58 characters.
	cidV0Pattern = regexp.MustCompile(`^Qm[1-9A-HJ-NP-Za-km-z]{44}$`)
	// CIDv1: base32 (b...) or base58 (z...).
	cidV1Pattern = regexp.MustCompile(`^(b[a-z2-7]{58}|z[1-9A-HJ-NP-Za-km-z]{48,})$`)
)

// ValidCID reports whether s is a well-formed CIDv0 or CIDv1.
func ValidCID(s string) bool {
	trimmed := strings.TrimSpace(s)
	return cidV0Pattern.MatchString(trimmed) || cidV1Pattern.MatchString(trimmed)
}

// NormalizeCID strips an ipfs:// scheme or /ipfs/ path prefix.
func NormalizeCID(s string) string {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "ipfs://")
	if idx := strings.Index(trimmed, "/ipfs/"); idx >= 0 {
		trimmed = trimmed[idx+len("/ipfs/"):]
	}
	return trimmed
}

// GatewayURL returns the public gateway URL for a content identifier.
func GatewayURL(cid string) string {
	normalized := NormalizeCID(cid)
	if normalized == "" {
		return ""
	}
	return DefaultGatewayBase + normalized
}
