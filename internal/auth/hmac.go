package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrForbidden is returned when a valid token lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// RoleAdmin grants access to operator commands.
const RoleAdmin = "admin"

const signingAlgorithm = "HS256"

// TokenClaims captures the JWT payload used for admin access.
type TokenClaims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Audience  string
}

// HasRole reports whether the claims carry role.
func (c *TokenClaims) HasRole(role string) bool {
	return c != nil && strings.EqualFold(strings.TrimSpace(c.Role), role)
}

// tokenHeader and tokenBody are the wire layout shared by Issue and Verify.
type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ,omitempty"`
}

type tokenBody struct {
	Subject  string `json:"sub"`
	Role     string `json:"role,omitempty"`
	Expires  int64  `json:"exp"`
	Issued   int64  `json:"iat,omitempty"`
	Audience string `json:"aud,omitempty"`
}

func (b tokenBody) claims() *TokenClaims {
	return &TokenClaims{
		Subject:   b.Subject,
		Role:      b.Role,
		ExpiresAt: time.Unix(b.Expires, 0),
		IssuedAt:  time.Unix(b.Issued, 0),
		Audience:  b.Audience,
	}
}

// HMACTokenVerifier validates and issues compact JWT-style tokens signed with HS256.
type HMACTokenVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewHMACTokenVerifier constructs a verifier for the supplied shared secret and clock skew allowance.
func NewHMACTokenVerifier(secret string, leeway time.Duration) (*HMACTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	return &HMACTokenVerifier{secret: []byte(secret), now: time.Now, leeway: max(leeway, 0)}, nil
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *HMACTokenVerifier) WithClock(clock func() time.Time) {
	if clock != nil {
		v.now = clock
	}
}

// Verify checks the signature and expiry of token and returns its claims.
func (v *HMACTokenVerifier) Verify(token string) (*TokenClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	//1.- Authenticate the signing input before trusting any decoded field.
	signingInput, signature, ok := splitToken(strings.TrimSpace(token))
	if !ok {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(signature, v.sign(signingInput)) {
		return nil, ErrInvalidToken
	}

	headerSegment, bodySegment, _ := strings.Cut(signingInput, ".")
	var header tokenHeader
	if err := decodeJSONSegment(headerSegment, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != signingAlgorithm {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}
	var body tokenBody
	if err := decodeJSONSegment(bodySegment, &body); err != nil {
		return nil, ErrInvalidToken
	}

	//2.- A subject and an expiry are mandatory; the leeway absorbs clock skew.
	if strings.TrimSpace(body.Subject) == "" || body.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	claims := body.claims()
	if claims.ExpiresAt.Add(v.leeway).Before(v.now()) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// Issue mints an HS256 token for subject and role that expires after ttl.
func (v *HMACTokenVerifier) Issue(subject, role string, ttl time.Duration) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", errors.New("verifier not initialised")
	}
	if strings.TrimSpace(subject) == "" || ttl <= 0 {
		return "", fmt.Errorf("%w: subject and positive ttl required", ErrInvalidToken)
	}
	now := v.now()
	header, err := encodeJSONSegment(tokenHeader{Algorithm: signingAlgorithm, Type: "JWT"})
	if err != nil {
		return "", err
	}
	body, err := encodeJSONSegment(tokenBody{Subject: subject, Role: role, Expires: now.Add(ttl).Unix(), Issued: now.Unix()})
	if err != nil {
		return "", err
	}
	signingInput := header + "." + body
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(v.sign(signingInput)), nil
}

func (v *HMACTokenVerifier) sign(signingInput string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}

// splitToken separates "header.body" from the decoded signature.
func splitToken(token string) (string, []byte, bool) {
	if strings.Count(token, ".") != 2 {
		return "", nil, false
	}
	cut := strings.LastIndexByte(token, '.')
	signature, err := base64.RawURLEncoding.DecodeString(token[cut+1:])
	if err != nil || len(signature) == 0 {
		return "", nil, false
	}
	return token[:cut], signature, true
}

func decodeJSONSegment(segment string, out any) error {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func encodeJSONSegment(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
