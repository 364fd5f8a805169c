package review

import (
	"crypto/md5" //nolint:gosec // dedup fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
)

// dedupBodyPrefixLen bounds how much of the body feeds the dedup key so
// minor tail edits do not create duplicate rows.
const dedupBodyPrefixLen = 64

// DedupKey fingerprints a review for idempotent counting and storage.
// The key covers the product link, reviewer, date and a bounded body
// prefix, measured in runes so multi-byte text truncates cleanly.
func DedupKey(productLink, reviewer, reviewDate, body string) string {
	runes := []rune(body)
	if len(runes) > dedupBodyPrefixLen {
		runes = runes[:dedupBodyPrefixLen]
	}
	payload := fmt.Sprintf("%s|%s|%s|%s", productLink, reviewer, reviewDate, string(runes))
	sum := md5.Sum([]byte(payload)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
