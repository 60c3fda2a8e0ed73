package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"subscription.updated"}`)
	secret := "whsec_test"

	sig := Sign(payload, secret)
	assert.True(t, VerifySignature(payload, sig, secret))

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, sig, "whsec_other"))
	})

	t.Run("tampered payload", func(t *testing.T) {
		assert.False(t, VerifySignature([]byte(`{"id":"evt_2"}`), sig, secret))
	})

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, "", secret))
	})
}
