package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/replydeck/replydeck/internal/tenancy"
)

const testIssuer = "https://id.replydeck.test"

func generateECKeyPair(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyDER,
	})
	require.NotNil(t, publicKeyPEM)

	return privateKey, string(publicKeyPEM)
}

func createSignedToken(t *testing.T, privateKey *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tokenStr, err := token.SignedString(privateKey)
	require.NoError(t, err)
	return tokenStr
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testIssuer,
		"sub": "principal-1",
		"org": "org-9",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func TestNewVerifier(t *testing.T) {
	_, publicKeyPEM := generateECKeyPair(t)

	t.Run("valid configuration", func(t *testing.T) {
		v, err := NewVerifier(publicKeyPEM, testIssuer)
		require.NoError(t, err)
		require.NotNil(t, v)
	})

	t.Run("invalid PEM", func(t *testing.T) {
		v, err := NewVerifier("invalid pem", testIssuer)
		require.Error(t, err)
		require.Nil(t, v)
	})

	t.Run("missing issuer", func(t *testing.T) {
		v, err := NewVerifier(publicKeyPEM, "")
		require.Error(t, err)
		require.Nil(t, v)
	})
}

func TestVerifier_VerifyToken(t *testing.T) {
	privateKey, publicKeyPEM := generateECKeyPair(t)

	verifier, err := NewVerifier(publicKeyPEM, testIssuer)
	require.NoError(t, err)

	t.Run("valid token with organization", func(t *testing.T) {
		tokenStr := createSignedToken(t, privateKey, validClaims())

		principal, err := verifier.VerifyToken(tokenStr)
		require.NoError(t, err)
		require.Equal(t, "principal-1", principal.ID)
		require.Equal(t, "org-9", principal.OrgID)
	})

	t.Run("valid token without organization", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "org")
		tokenStr := createSignedToken(t, privateKey, claims)

		principal, err := verifier.VerifyToken(tokenStr)
		require.NoError(t, err)
		require.Equal(t, "principal-1", principal.ID)
		require.Empty(t, principal.OrgID)
	})

	t.Run("missing sub claim", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "sub")
		tokenStr := createSignedToken(t, privateKey, claims)

		_, err := verifier.VerifyToken(tokenStr)
		require.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		tokenStr := createSignedToken(t, privateKey, claims)

		_, err := verifier.VerifyToken(tokenStr)
		require.Error(t, err)
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "exp")
		tokenStr := createSignedToken(t, privateKey, claims)

		_, err := verifier.VerifyToken(tokenStr)
		require.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := validClaims()
		claims["iss"] = "https://rogue.example.com"
		tokenStr := createSignedToken(t, privateKey, claims)

		_, err := verifier.VerifyToken(tokenStr)
		require.Error(t, err)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		otherKey, _ := generateECKeyPair(t)
		tokenStr := createSignedToken(t, otherKey, validClaims())

		_, err := verifier.VerifyToken(tokenStr)
		require.Error(t, err)
	})

	t.Run("wrong signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
		tokenStr, err := token.SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		_, err = verifier.VerifyToken(tokenStr)
		require.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := verifier.VerifyToken("not.a.token")
		require.Error(t, err)
	})
}

func TestVerifier_Middleware(t *testing.T) {
	privateKey, publicKeyPEM := generateECKeyPair(t)

	verifier, err := NewVerifier(publicKeyPEM, testIssuer)
	require.NoError(t, err)

	var captured *tenancy.Principal
	handler := verifier.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid bearer token", func(t *testing.T) {
		captured = nil
		tokenStr := createSignedToken(t, privateKey, validClaims())

		req := httptest.NewRequest(http.MethodGet, "/v1/scope", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, captured)
		require.Equal(t, "principal-1", captured.ID)
		require.Equal(t, "org-9", captured.OrgID)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		captured = nil
		req := httptest.NewRequest(http.MethodGet, "/v1/scope", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Nil(t, captured)
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		captured = nil
		req := httptest.NewRequest(http.MethodGet, "/v1/scope", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Nil(t, captured)
	})

	t.Run("invalid token", func(t *testing.T) {
		captured = nil
		req := httptest.NewRequest(http.MethodGet, "/v1/scope", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Nil(t, captured)
	})
}

func TestPrincipalFromContext(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		principal := PrincipalFromContext(context.Background())
		require.Nil(t, principal)
	})

	t.Run("context with principal", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), tenancy.Principal{ID: "principal-1", OrgID: "org-9"})

		principal := PrincipalFromContext(ctx)
		require.NotNil(t, principal)
		require.Equal(t, "principal-1", principal.ID)
		require.Equal(t, "org-9", principal.OrgID)
	})
}
