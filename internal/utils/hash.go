package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IdentityHash derives the 32-byte on-ledger identity hash from a
// phone number. The raw number never reaches the ledger: every caller
// must hash with the same versioned salt, which makes the salt part
// of the API contract rather than an implementation detail.
func IdentityHash(phone, salt, version string) string {
	normalized := NormalizePhone(phone)
	h := sha256.New()
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write([]byte(salt))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizePhone strips spaces, dashes and a leading plus so that
// equivalent spellings hash identically.
func NormalizePhone(phone string) string {
	var builder strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// SignPayload generates an HMAC-SHA256 signature for an outbound
// settlement payload.
func SignPayload(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
