package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrInvalidSignature = errors.New("payment: invalid signature")

// Signer computes the gateway callback signature: hex HMAC-SHA256 over
// "intent:reference" with the shared secret.
type Signer struct{ secret []byte }

func NewSigner(secret string) Signer { return Signer{secret: []byte(secret)} }

func (s Signer) Sign(intent, reference string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(intent))
	h.Write([]byte{':'})
	h.Write([]byte(reference))
	return hex.EncodeToString(h.Sum(nil))
}

func (s Signer) Verify(intent, reference, signature string) error {
	if len(s.secret) == 0 || intent == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected := s.Sign(intent, reference)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}
