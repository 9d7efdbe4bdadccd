package inbound

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"
)

// SignatureHeader is the header carrying the body HMAC.
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// VerifySignature checks the sha256 HMAC over the raw body against the
// header value in constant time.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook secret not configured")
	}
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "signature header missing")
	}
	provided := strings.TrimPrefix(header, signaturePrefix)
	if provided == header {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed signature header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "signature mismatch")
	}
	return nil
}

// Sign computes the header value for a body, used by tests and by the
// remote simulator tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
