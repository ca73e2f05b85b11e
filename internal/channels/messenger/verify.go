package messenger

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// VerificationMismatch is the body returned when the verify token is wrong.
const VerificationMismatch = "Verification token mismatch"

// VerifyResult is the outcome of a webhook subscription handshake.
type VerifyResult struct {
	Status int
	Body   string
}

// OK reports whether the handshake succeeded.
func (r VerifyResult) OK() bool {
	return r.Status == http.StatusOK
}

// Verify checks the hub.verify_token sent by the platform against the
// configured token. A match echoes challenge verbatim. An empty configured
// token never matches.
func Verify(queryToken, configuredToken, challenge string) VerifyResult {
	if configuredToken != "" && subtle.ConstantTimeCompare([]byte(queryToken), []byte(configuredToken)) == 1 {
		return VerifyResult{Status: http.StatusOK, Body: challenge}
	}
	return VerifyResult{Status: http.StatusForbidden, Body: VerificationMismatch}
}

// VerifySignature verifies the X-Hub-Signature-256 header ("sha256=<hex>").
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sigHex)))
}
