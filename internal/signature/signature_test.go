package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(nil)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = NewVerifier([]byte{})
	assert.ErrorIs(t, err, ErrNoSecret)

	v, err := NewVerifier([]byte("s3cret"))
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestVerifyKnownVector(t *testing.T) {
	v, err := NewVerifier([]byte("test_key_secret"))
	require.NoError(t, err)

	valid := sign("test_key_secret", "order_abc|pay_xyz")

	assert.True(t, v.Verify("order_abc", "pay_xyz", valid))
	assert.Equal(t, valid, v.Expected("order_abc", "pay_xyz"))
}

func TestVerifyRejectsWrongInputs(t *testing.T) {
	v, err := NewVerifier([]byte("test_key_secret"))
	require.NoError(t, err)

	valid := sign("test_key_secret", "order_abc|pay_xyz")

	assert.False(t, v.Verify("order_abc", "pay_other", valid))
	assert.False(t, v.Verify("order_other", "pay_xyz", valid))
	assert.False(t, v.Verify("order_abc", "pay_xyz", ""))

	wrongKey := sign("another_secret", "order_abc|pay_xyz")
	assert.False(t, v.Verify("order_abc", "pay_xyz", wrongKey))
}

func TestVerifyRejectsEveryByteFlip(t *testing.T) {
	v, err := NewVerifier([]byte("test_key_secret"))
	require.NoError(t, err)

	valid := sign("test_key_secret", "order_abc|pay_xyz")

	for i := 0; i < len(valid); i++ {
		mutated := []byte(valid)
		mutated[i] ^= 0x01
		assert.False(t, v.Verify("order_abc", "pay_xyz", string(mutated)),
			"byte flip at index %d must fail verification", i)
	}
}
