package security

import (
	"testing"

	"github.com/hdds-team/hdds-sub002/internal/hddserr"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateIdentityToken(t *testing.T) {
	v, err := NewValidator(Config{RequireAuthentication: true, SigningKey: []byte("test-signing-key")})
	require.NoError(t, err)

	token, err := v.IssueIdentityToken("participant-A")
	require.NoError(t, err)

	subject, err := v.ValidateIdentityToken(token)
	require.NoError(t, err)
	require.Equal(t, "participant-A", subject)
}

func TestValidateRejectsMissingToken(t *testing.T) {
	v, err := NewValidator(Config{SigningKey: []byte("k")})
	require.NoError(t, err)
	_, err = v.ValidateIdentityToken(nil)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.AuthenticationFailed))
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer, err := NewValidator(Config{SigningKey: []byte("key-one")})
	require.NoError(t, err)
	token, err := issuer.IssueIdentityToken("participant-B")
	require.NoError(t, err)

	verifier, err := NewValidator(Config{SigningKey: []byte("key-two")})
	require.NoError(t, err)
	_, err = verifier.ValidateIdentityToken(token)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.AuthenticationFailed))
}

func TestNewValidatorRequiresSigningKeyWhenAuthRequired(t *testing.T) {
	_, err := NewValidator(Config{RequireAuthentication: true})
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.Config))
}
