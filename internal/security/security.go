// Package security implements the narrow validator-hook surface named
// in spec §1/§4.5: identity-token issuance and verification for SPDP
// peer authentication. X.509 chain validation, key exchange, and
// DDS-Security cryptographic transforms are out of scope (spec §1) —
// this package only decides whether a peer's announcement carries an
// identity the participant accepts.
package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hdds-team/hdds-sub002/internal/hddserr"
)

// Config carries the fields of config.SecurityConfig that the HMAC
// identity-token path uses. The CaCertPem/IdentityCertPem/PrivateKeyPem
// fields of that block are not part of Config: X.509 validation itself
// is a plug-in concern (spec §1 "Out of scope"); only the HMAC
// identity-token path is implemented here.
type Config struct {
	RequireAuthentication bool
	EnableRevocation      bool
	SigningKey            []byte
	TokenTTL              time.Duration
}

// Validator is the hook surface spec §4.5 describes: "If a security
// validator is installed and authentication is required, an SPDP DATA
// lacking a valid identity token is rejected before the peer is
// inserted into the database."
type Validator interface {
	// IssueIdentityToken produces a token this participant attaches to
	// its own SPDP announcements.
	IssueIdentityToken(participantName string) ([]byte, error)
	// ValidateIdentityToken checks a peer-supplied token, returning the
	// claimed subject on success.
	ValidateIdentityToken(token []byte) (subject string, err error)
}

// jwtValidator is the default Validator: HS256 JWTs signed with a
// shared key, grounded on the teacher's golang-jwt/v5 usage pattern
// (internal/auth's JWTAuthenticator) but adapted from HTTP session
// auth to a one-shot identity-token check.
type jwtValidator struct {
	cfg Config
}

// NewValidator builds the default JWT-based Validator. Returns nil and a
// Config error if authentication is required but no signing key was
// configured.
func NewValidator(cfg Config) (Validator, error) {
	if cfg.RequireAuthentication && len(cfg.SigningKey) == 0 {
		return nil, hddserr.Wrap(hddserr.Config, "security: require_authentication is set but no signing key was configured")
	}
	return &jwtValidator{cfg: cfg}, nil
}

type identityClaims struct {
	jwt.RegisteredClaims
}

func (v *jwtValidator) IssueIdentityToken(participantName string) ([]byte, error) {
	if len(v.cfg.SigningKey) == 0 {
		return nil, hddserr.Wrap(hddserr.Unsupported, "security: no signing key configured, cannot issue identity token")
	}
	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttlOrDefault(v.cfg.TokenTTL))),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.cfg.SigningKey)
	if err != nil {
		return nil, hddserr.Wrap(hddserr.AuthenticationFailed, "security: failed to sign identity token: %v", err)
	}
	return []byte(signed), nil
}

func (v *jwtValidator) ValidateIdentityToken(token []byte) (string, error) {
	if len(token) == 0 {
		return "", hddserr.Wrap(hddserr.AuthenticationFailed, "security: peer presented no identity token")
	}
	parsed, err := jwt.ParseWithClaims(string(token), &identityClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, hddserr.Wrap(hddserr.AuthenticationFailed, "security: unexpected signing method %s", t.Method.Alg())
		}
		return v.cfg.SigningKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", hddserr.Wrap(hddserr.AuthenticationFailed, "security: identity token rejected: %v", err)
	}
	claims, ok := parsed.Claims.(*identityClaims)
	if !ok {
		return "", hddserr.Wrap(hddserr.AuthenticationFailed, "security: identity token carried unexpected claims type")
	}
	return claims.Subject, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return ttl
}
