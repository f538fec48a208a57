package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	require.NotEqual(t, "secret1", hash)
	require.True(t, CheckPassword("secret1", hash))
	require.False(t, CheckPassword("secret2", hash))
}

func TestStrongEnough(t *testing.T) {
	require.False(t, StrongEnough("12345"))
	require.True(t, StrongEnough("123456"))
}
