// Package prompt digests system/user prompt content so the Audit Sink can
// correlate trading sessions with the exact prompt that produced them
// without embedding the full prompt text in structured logs.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex-encoded sha256 sum of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
