package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNoSecret is returned when a Verifier is constructed without a secret.
// The caller must treat this as a fatal configuration error, not a
// verification failure.
var ErrNoSecret = errors.New("signature: empty secret")

// Verifier checks payment-gateway signatures. The gateway signs the string
// "<gatewayOrderID>|<gatewayPaymentID>" with HMAC-SHA256 under the shared
// key secret and hex-encodes the digest.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier. The secret must be non-empty.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: secret}, nil
}

// Expected returns the hex-encoded signature for the given reference pair.
func (v *Verifier) Expected(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the claimed signature matches the expected one for
// the reference pair. The comparison is constant-time.
func (v *Verifier) Verify(gatewayOrderID, gatewayPaymentID, claimed string) bool {
	expected := v.Expected(gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(claimed))
}
