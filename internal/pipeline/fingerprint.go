package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint identifies one transformation input: the exact payload
// bytes, the mapping rule version, and the organization whose
// organization-specific rules shaped the output. Any change to payload
// or rules produces a new fingerprint, so stale cache entries are
// unreachable rather than invalidated.
func Fingerprint(payload []byte, ruleVersion, organizationID string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte("\n"))
	h.Write([]byte(ruleVersion))
	h.Write([]byte("\n"))
	h.Write([]byte(organizationID))
	return hex.EncodeToString(h.Sum(nil))
}
