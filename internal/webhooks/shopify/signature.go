package shopifywebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ValidSignature verifies a webhook body against the platform's HMAC
// header. The digest is computed over the raw body bytes exactly as
// received; any re-serialization of the payload breaks verification.
func ValidSignature(body []byte, secret, headerValue string) bool {
	if secret == "" || headerValue == "" {
		return false
	}

	expected, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
