package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrMissingCredential is returned when a protected call carries no token.
var ErrMissingCredential = errors.New("missing credential")

// AdminAuthorizer guards operator commands with a static token, an HS256
// token carrying role=admin, or both. With neither configured it is open.
type AdminAuthorizer struct {
	staticToken []byte
	verifier    *HMACTokenVerifier
}

// NewAdminAuthorizer builds an authorizer; an empty token and secret yield an open authorizer.
func NewAdminAuthorizer(token, secret string) (*AdminAuthorizer, error) {
	authorizer := &AdminAuthorizer{}
	if token = strings.TrimSpace(token); token != "" {
		authorizer.staticToken = []byte(token)
	}
	if strings.TrimSpace(secret) != "" {
		verifier, err := NewHMACTokenVerifier(secret, 2*time.Second)
		if err != nil {
			return nil, err
		}
		authorizer.verifier = verifier
	}
	return authorizer, nil
}

// Open reports whether admin commands are accepted without a credential.
func (a *AdminAuthorizer) Open() bool {
	return a == nil || (len(a.staticToken) == 0 && a.verifier == nil)
}

// Verifier exposes the HS256 verifier, or nil when no secret is configured.
func (a *AdminAuthorizer) Verifier() *HMACTokenVerifier {
	if a == nil {
		return nil
	}
	return a.verifier
}

// Authorize checks credential against the configured mechanisms.
func (a *AdminAuthorizer) Authorize(credential string) error {
	if a.Open() {
		return nil
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrMissingCredential
	}
	//1.- The static token is compared in constant time before trying the JWT path.
	if len(a.staticToken) > 0 && subtle.ConstantTimeCompare([]byte(credential), a.staticToken) == 1 {
		return nil
	}
	if a.verifier == nil {
		return ErrInvalidToken
	}
	claims, err := a.verifier.Verify(credential)
	if err != nil {
		return err
	}
	if !claims.HasRole(RoleAdmin) {
		return ErrForbidden
	}
	return nil
}

// CredentialFromRequest extracts a bearer token, the X-Admin-Token header or the token query parameter.
func CredentialFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
	}
	if token := strings.TrimSpace(r.Header.Get("X-Admin-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
