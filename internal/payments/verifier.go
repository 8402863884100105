package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSignatureMismatch is returned when the gateway signature does not
// authenticate the (order, payment) pair. Operations gated on verification
// must fail entirely on this error.
var ErrSignatureMismatch = errors.New("payment signature mismatch")

// Verifier checks payment-gateway signatures. The gateway signs
// "orderID|paymentID" with HMAC-SHA256 over a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns nil iff signature authenticates the order/payment pair.
func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
