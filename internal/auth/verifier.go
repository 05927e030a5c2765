// Package auth verifies identity provider tokens and attaches the
// authenticated principal to the request context. Verification is purely
// local: the provider's signing key is pinned in configuration, so no
// request ever waits on an outbound call to the provider.
package auth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/replydeck/replydeck/internal/tenancy"
)

// Verifier verifies ES256 tokens issued by the identity provider.
type Verifier struct {
	publicKey *ecdsa.PublicKey
	issuer    string
}

// NewVerifier creates a verifier for tokens signed with the given
// PEM-encoded ECDSA public key and carrying the given issuer.
func NewVerifier(publicKeyPEM, issuer string) (*Verifier, error) {
	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity provider key: %w", err)
	}
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}

	return &Verifier{
		publicKey: publicKey,
		issuer:    issuer,
	}, nil
}

// VerifyToken checks the token's signature, issuer and expiry and extracts
// the principal. The "sub" claim is the external principal ID; the optional
// "org" claim is the external organization ID.
func (v *Verifier) VerifyToken(tokenString string) (tenancy.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return tenancy.Principal{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return tenancy.Principal{}, errors.New("invalid claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return tenancy.Principal{}, errors.New("missing sub claim")
	}

	// org is optional; standalone users carry no organization
	org, _ := claims["org"].(string)

	return tenancy.Principal{
		ID:    sub,
		OrgID: org,
	}, nil
}

// extractBearerToken extracts the token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}

// ParsePublicKeyPEM parses a PEM-encoded ECDSA public key.
func ParsePublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}

	return ecdsaPub, nil
}
