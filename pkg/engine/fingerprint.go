package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/verascope-ai/verascope/pkg/models"
)

// CanonicalInput serializes a conversation in RFC 8785 canonical form.
// Two inputs fingerprint identically iff this serialization is
// byte-identical, so the transform must stay stable across releases.
func CanonicalInput(messages []models.ChatMessage) (string, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("marshal conversation: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize conversation: %w", err)
	}
	return string(canonical), nil
}

// Fingerprint returns the SHA-256 hex digest of s.
func Fingerprint(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// ShortFingerprint truncates a fingerprint for display.
func ShortFingerprint(fp string) string {
	if len(fp) <= 16 {
		return fp
	}
	return fp[:16] + "..."
}
