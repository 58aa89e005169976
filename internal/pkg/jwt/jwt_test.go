package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := New("secret", time.Hour)

	token, err := svc.GenerateToken("plumber-7", true)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "plumber-7", claims.Subject)
	assert.True(t, claims.Admin)
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	token, err := New("other", time.Hour).GenerateToken("plumber-7", false)
	require.NoError(t, err)
	_, err = New("secret", time.Hour).ValidateToken(token)
	assert.Error(t, err)

	expired, err := New("secret", -time.Minute).GenerateToken("plumber-7", false)
	require.NoError(t, err)
	_, err = New("secret", time.Hour).ValidateToken(expired)
	assert.Error(t, err)
}

func TestGenerateRequiresSubject(t *testing.T) {
	_, err := New("secret", time.Hour).GenerateToken("", false)
	assert.Error(t, err)
}
