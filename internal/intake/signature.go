package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// headers carried by inbound platform webhooks.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// VerifySignature checks the hex HMAC-SHA256 of the raw request body
// against the shared secret. Comparison is constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// Sign computes the signature VerifySignature expects. Tests and local
// tooling use it to forge platform requests.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
