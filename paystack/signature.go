package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/phillip/membership-portal-go/apperrors"
)

const SignatureHeader = "X-Paystack-Signature"

// SignatureVerifier checks webhook authenticity against the shared secret.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Verify compares the hex HMAC-SHA512 of body with signature. body must be the exact
// bytes read off the wire. It fails closed when the secret or signature is missing.
func (v *SignatureVerifier) Verify(body []byte, signature string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", apperrors.ErrSignatureInvalid)
	}
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", apperrors.ErrSignatureInvalid, SignatureHeader)
	}

	expected := sign(v.secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", apperrors.ErrSignatureInvalid)
	}
	return nil
}

// Sign returns the signature the gateway would send for body.
func Sign(secret string, body []byte) string {
	return sign([]byte(secret), body)
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
