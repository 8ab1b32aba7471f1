package articles

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeContent collapses all runs of Unicode whitespace to single
// spaces and trims the ends. Fingerprinting normalized text keeps the
// hash stable across whitespace-only and indentation differences, which
// would otherwise cause spurious version churn on re-crawls.
//
// Extraction upstream already strips markup noise (scripts, styles,
// navigation) during the HTML to markdown conversion, so non-semantic
// markup differences do not reach this function.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// Fingerprint returns the hex-encoded SHA-256 of the normalized
// content. Identical content always fingerprints identically.
func Fingerprint(content string) string {
	h := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(h[:])
}
