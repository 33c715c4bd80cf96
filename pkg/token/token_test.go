package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer([]byte("secret"), time.Hour)

	signed, expires, err := issuer.Issue("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewIssuer([]byte("secret"), time.Hour)
	other := NewIssuer([]byte("other"), time.Hour)

	signed, _, err := other.Issue("user-1")
	require.NoError(t, err)
	_, err = issuer.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	signed, _, err = issuer.Issue("user-1")
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	issuer := NewIssuer(nil, time.Hour)

	signed, _, err := issuer.Issue("user-1")
	require.NoError(t, err)
	claims, err := issuer.Parse(signed)
	require.NoError(t, err)

	issuer.Revoke(claims)
	_, err = issuer.Parse(signed)
	assert.ErrorIs(t, err, ErrRevokedToken)

	fresh, _, err := issuer.Issue("user-1")
	require.NoError(t, err)
	_, err = issuer.Parse(fresh)
	assert.NoError(t, err)
}
