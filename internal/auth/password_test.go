package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher(MinBcryptCost)

	first, err := h.Hash("Abcdef1")
	require.NoError(t, err)
	second, err := h.Hash("Abcdef1")
	require.NoError(t, err)

	assert.NotEqual(t, "Abcdef1", first)
	assert.NotEqual(t, first, second, "salted hashes must differ")
	assert.True(t, h.Verify("Abcdef1", first))
	assert.True(t, h.Verify("Abcdef1", second))
	assert.False(t, h.Verify("abcdef1", first))
	assert.False(t, h.Verify("", first))
}

func TestPasswordHasher_VerifyMalformedHash(t *testing.T) {
	h := NewPasswordHasher(MinBcryptCost)

	assert.False(t, h.Verify("Abcdef1", ""))
	assert.False(t, h.Verify("Abcdef1", "not-a-bcrypt-hash"))
}

func TestNewPasswordHasher_EnforcesMinimumCost(t *testing.T) {
	h := NewPasswordHasher(4)
	assert.Equal(t, MinBcryptCost, h.cost)
}
