package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// githubPrefix is accepted in front of the hex digest ("sha256=<hex>").
const githubPrefix = "sha256="

// VerifySignature reports whether signature is the lowercase hex
// HMAC-SHA256 of body keyed with secret.
//
// body must be the exact bytes received: re-encoding a parsed payload can
// change whitespace or key order and break verification. The comparison is
// constant-time. An empty secret or signature never verifies.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	expected := Sign(secret, body)
	actual := strings.TrimPrefix(signature, githubPrefix)

	return hmac.Equal([]byte(expected), []byte(actual))
}

// Sign computes the lowercase hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
