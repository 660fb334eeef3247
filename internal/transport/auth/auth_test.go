package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenVerifyRoundTrips(t *testing.T) {
	i, err := NewIssuer()
	require.NoError(t, err)

	tok, err := i.Issue("alice")
	require.NoError(t, err)
	assert.NoError(t, i.Verify(tok, "alice"))
}

func TestVerifyRejectsWrongUser(t *testing.T) {
	i, err := NewIssuer()
	require.NoError(t, err)

	tok, err := i.Issue("alice")
	require.NoError(t, err)
	assert.Error(t, i.Verify(tok, "bob"))
}

func TestVerifyRejectsTokenFromDifferentIssuer(t *testing.T) {
	i1, err := NewIssuer()
	require.NoError(t, err)
	i2, err := NewIssuer()
	require.NoError(t, err)

	tok, err := i1.Issue("alice")
	require.NoError(t, err)
	assert.Error(t, i2.Verify(tok, "alice"))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	i, err := NewIssuer()
	require.NoError(t, err)
	assert.Error(t, i.Verify("not-a-jwt", "alice"))
}
