package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHmacSHA256(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		result := HmacSHA256("secret", "data")
		assert.Len(t, result, 64)
	})

	t.Run("same inputs produce same result", func(t *testing.T) {
		result1 := HmacSHA256("secret", "data")
		result2 := HmacSHA256("secret", "data")
		assert.Equal(t, result1, result2)
	})

	t.Run("different secret produces different result", func(t *testing.T) {
		assert.NotEqual(t, HmacSHA256("secret-1", "data"), HmacSHA256("secret-2", "data"))
	})
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "abd"))
	assert.False(t, ConstantTimeEqual("abc", "abcd"))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "******", MaskToken("abc"))
	assert.Equal(t, "ExponentPushToken"[:6]+"...", MaskToken("ExponentPushToken[xyz]"))
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("6f1c2b4e-8a7d-4c3b-9e2f-1a2b3c4d5e6f"))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.False(t, IsValidUUID("6F1C2B4E-8A7D-4C3B-9E2F-1A2B3C4D5E6F"))
}

func TestIsValidEnum(t *testing.T) {
	values := []string{"ringing", "active"}
	assert.True(t, IsValidEnum("active", values))
	assert.True(t, IsValidEnum("", values))
	assert.False(t, IsValidEnum("paused", values))
}
