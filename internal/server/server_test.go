package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/replydeck/replydeck/internal/auth"
	"github.com/replydeck/replydeck/internal/logger"
	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/secrets"
	"github.com/replydeck/replydeck/internal/store"
	memorystore "github.com/replydeck/replydeck/internal/store/memory"
)

const testIssuer = "https://id.replydeck.test"

type testEnv struct {
	server     *httptest.Server
	privateKey *ecdsa.PrivateKey
	verifier   *auth.Verifier
	workspaces *memorystore.WorkspaceStore
	accounts   *memorystore.AccountStore
	mailboxes  *memorystore.MailboxStore
	codec      *secrets.Codec
}

func newTestEnv(t *testing.T, passphrase string) *testEnv {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyDER})

	verifier, err := auth.NewVerifier(string(publicKeyPEM), testIssuer)
	require.NoError(t, err)

	env := &testEnv{
		privateKey: privateKey,
		verifier:   verifier,
		workspaces: memorystore.NewWorkspaceStore(),
		accounts:   memorystore.NewAccountStore(),
		mailboxes:  memorystore.NewMailboxStore(),
		codec:      secrets.NewCodec(secrets.Config{Passphrase: passphrase}),
	}

	srv := NewServer(env.workspaces, env.accounts, env.mailboxes, env.codec, verifier)
	env.server = httptest.NewServer(srv.Handler(logger.Setup(false)))
	t.Cleanup(env.server.Close)

	return env
}

func (e *testEnv) token(t *testing.T, sub, org string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss": testIssuer,
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	if org != "" {
		claims["org"] = org
	}

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(e.privateKey)
	require.NoError(t, err)
	return tokenStr
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	return doRequest(t, e.server.URL, method, path, token, body)
}

func doRequest(t *testing.T, baseURL, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, payload
}

func decodeInto[T any](t *testing.T, payload []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(payload, &out))
	return out
}

func TestWorkspaceMailboxWorkflow(t *testing.T) {
	env := newTestEnv(t, "test-passphrase")

	ownerToken := env.token(t, "p-owner", "org-9")

	// 1. Health check needs no auth
	status, payload := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, string(payload))

	// 2. Provision a workspace for the organization principal
	status, payload = env.do(t, http.MethodPost, "/v1/setup", ownerToken, map[string]string{
		"workspace_name": "Acme Support",
	})
	require.Equal(t, http.StatusCreated, status)
	setup := decodeInto[setupResponse](t, payload)
	require.True(t, setup.Created)
	require.Equal(t, models.ScopeWorkspace, setup.Scope.Kind)
	require.NotEmpty(t, setup.Scope.WorkspaceID)
	workspaceID := setup.Scope.WorkspaceID

	// 3. Setup again is idempotent and returns the same workspace
	status, payload = env.do(t, http.MethodPost, "/v1/setup", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	setup = decodeInto[setupResponse](t, payload)
	require.False(t, setup.Created)
	require.Equal(t, workspaceID, setup.Scope.WorkspaceID)

	// 4. The resolved scope is visible on /v1/scope
	status, payload = env.do(t, http.MethodGet, "/v1/scope", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	scope := decodeInto[scopeResponse](t, payload)
	require.Equal(t, models.ScopeWorkspace, scope.Kind)
	require.Equal(t, workspaceID, scope.WorkspaceID)

	// 5. Connect a Gmail mailbox with a refresh token
	status, payload = env.do(t, http.MethodPost, "/v1/mailboxes", ownerToken, map[string]any{
		"provider":      "gmail",
		"address":       "support@acme.test",
		"display_name":  "Acme Support",
		"refresh_token": "1//refresh-token-secret",
	})
	require.Equal(t, http.StatusCreated, status)
	created := decodeInto[mailboxResponse](t, payload)
	require.Equal(t, "gmail", created.Provider)
	require.True(t, created.HasCredentials)
	mailboxID := created.MailboxID

	// 6. The stored refresh token is encrypted, not plaintext
	storedMailbox, err := env.mailboxes.Get(context.Background(),
		models.WorkspaceScope(uuid.MustParse(workspaceID)), uuid.MustParse(mailboxID))
	require.NoError(t, err)
	require.NotContains(t, storedMailbox.RefreshToken, "refresh-token-secret")
	require.Equal(t, secrets.FormatEncrypted, secrets.Classify(storedMailbox.RefreshToken))

	// 7. Listing shows the mailbox
	status, payload = env.do(t, http.MethodGet, "/v1/mailboxes", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeInto[struct {
		Mailboxes []mailboxResponse `json:"mailboxes"`
	}](t, payload)
	require.Len(t, list.Mailboxes, 1)
	require.Equal(t, mailboxID, list.Mailboxes[0].MailboxID)

	// 8. Credentials round-trip back to the plaintext refresh token
	status, payload = env.do(t, http.MethodGet, "/v1/mailboxes/"+mailboxID+"/credentials", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	creds := decodeInto[credentialsResponse](t, payload)
	require.NotNil(t, creds.OAuth)
	require.Equal(t, "1//refresh-token-secret", creds.OAuth.RefreshToken)
	require.Nil(t, creds.SMTP)

	// 9. A teammate in the same organization resolves the same workspace
	teammateToken := env.token(t, "p-teammate", "org-9")
	status, payload = env.do(t, http.MethodGet, "/v1/scope", teammateToken, nil)
	require.Equal(t, http.StatusOK, status)
	scope = decodeInto[scopeResponse](t, payload)
	require.Equal(t, workspaceID, scope.WorkspaceID)

	// 10. A different organization cannot see the mailbox
	strangerToken := env.token(t, "p-stranger", "org-77")
	status, _ = env.do(t, http.MethodPost, "/v1/setup", strangerToken, map[string]string{
		"workspace_name": "Rival Corp",
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodGet, "/v1/mailboxes/"+mailboxID, strangerToken, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, payload = env.do(t, http.MethodGet, "/v1/mailboxes", strangerToken, nil)
	require.Equal(t, http.StatusOK, status)
	list = decodeInto[struct {
		Mailboxes []mailboxResponse `json:"mailboxes"`
	}](t, payload)
	require.Empty(t, list.Mailboxes)

	// 11. The owner deletes the mailbox
	status, _ = env.do(t, http.MethodDelete, "/v1/mailboxes/"+mailboxID, ownerToken, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = env.do(t, http.MethodGet, "/v1/mailboxes/"+mailboxID, ownerToken, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestAccountMailboxWorkflow(t *testing.T) {
	env := newTestEnv(t, "test-passphrase")

	soloToken := env.token(t, "p-solo", "")

	// 1. A standalone principal provisions an account
	status, payload := env.do(t, http.MethodPost, "/v1/setup", soloToken, map[string]string{
		"email": "solo@example.test",
	})
	require.Equal(t, http.StatusCreated, status)
	setup := decodeInto[setupResponse](t, payload)
	require.True(t, setup.Created)
	require.Equal(t, models.ScopeAccount, setup.Scope.Kind)
	require.NotEmpty(t, setup.Scope.AccountID)

	// 2. Connect an SMTP mailbox with a password
	status, payload = env.do(t, http.MethodPost, "/v1/mailboxes", soloToken, map[string]any{
		"provider":      "smtp",
		"address":       "solo@example.test",
		"smtp_host":     "mail.example.test",
		"smtp_port":     465,
		"smtp_password": "hunter2",
	})
	require.Equal(t, http.StatusCreated, status)
	created := decodeInto[mailboxResponse](t, payload)
	require.True(t, created.HasCredentials)
	require.NotNil(t, created.SMTPPort)
	require.Equal(t, int32(465), *created.SMTPPort)
	require.NotNil(t, created.SMTPUsername)
	require.Equal(t, "solo@example.test", *created.SMTPUsername)

	// 3. Credentials carry the SMTP settings and the decrypted password
	status, payload = env.do(t, http.MethodGet, "/v1/mailboxes/"+created.MailboxID+"/credentials", soloToken, nil)
	require.Equal(t, http.StatusOK, status)
	creds := decodeInto[credentialsResponse](t, payload)
	require.Nil(t, creds.OAuth)
	require.NotNil(t, creds.SMTP)
	require.Equal(t, "mail.example.test", creds.SMTP.Host)
	require.Equal(t, int32(465), creds.SMTP.Port)
	require.NotNil(t, creds.SMTP.Password)
	require.Equal(t, "hunter2", *creds.SMTP.Password)

	// 4. A mailbox without a stored password reports null credentials
	status, payload = env.do(t, http.MethodPost, "/v1/mailboxes", soloToken, map[string]any{
		"provider":  "smtp",
		"address":   "other@example.test",
		"smtp_host": "mail.example.test",
	})
	require.Equal(t, http.StatusCreated, status)
	bare := decodeInto[mailboxResponse](t, payload)
	require.False(t, bare.HasCredentials)
	require.NotNil(t, bare.SMTPPort)
	require.Equal(t, int32(587), *bare.SMTPPort)

	status, payload = env.do(t, http.MethodGet, "/v1/mailboxes/"+bare.MailboxID+"/credentials", soloToken, nil)
	require.Equal(t, http.StatusOK, status)
	creds = decodeInto[credentialsResponse](t, payload)
	require.NotNil(t, creds.SMTP)
	require.Nil(t, creds.SMTP.Password)
}

func TestLegacyStoredFormats(t *testing.T) {
	env := newTestEnv(t, "test-passphrase")

	token := env.token(t, "p-legacy", "org-legacy")
	status, payload := env.do(t, http.MethodPost, "/v1/setup", token, map[string]string{
		"workspace_name": "Legacy Corp",
	})
	require.Equal(t, http.StatusCreated, status)
	setup := decodeInto[setupResponse](t, payload)
	scope := models.WorkspaceScope(uuid.MustParse(setup.Scope.WorkspaceID))

	// Rows written by earlier releases carry hex envelopes, bare base64 or
	// raw plaintext; the decode path must still materialize all of them.
	seed := func(address, storedToken string) string {
		t.Helper()
		mailboxID, err := uuid.NewV7()
		require.NoError(t, err)
		now := time.Now()
		mailbox := &models.Mailbox{
			MailboxID:    mailboxID,
			Provider:     models.ProviderGmail,
			Address:      address,
			RefreshToken: storedToken,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, env.mailboxes.Create(context.Background(), scope, mailbox))
		return mailboxID.String()
	}

	tests := []struct {
		name     string
		stored   string
		expected string
	}{
		{name: "base64", stored: "c2VjcmV0MQ==", expected: "secret1"},
		{name: "plaintext fallback", stored: "raw-legacy-token", expected: "raw-legacy-token"},
		{name: "hex envelope", stored: "\\x6332566a636d56304d673d3d", expected: "secret2"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailboxID := seed(fmt.Sprintf("legacy%d@acme.test", i), tt.stored)

			status, payload := env.do(t, http.MethodGet, "/v1/mailboxes/"+mailboxID+"/credentials", token, nil)
			require.Equal(t, http.StatusOK, status)
			creds := decodeInto[credentialsResponse](t, payload)
			require.NotNil(t, creds.OAuth)
			require.Equal(t, tt.expected, creds.OAuth.RefreshToken)
		})
	}

	t.Run("empty marker yields null", func(t *testing.T) {
		mailboxID := seed("legacy-empty@acme.test", "\\x")

		status, payload := env.do(t, http.MethodGet, "/v1/mailboxes/"+mailboxID+"/credentials", token, nil)
		require.Equal(t, http.StatusOK, status)
		creds := decodeInto[credentialsResponse](t, payload)
		require.Nil(t, creds.OAuth)
	})
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, "test-passphrase")

	t.Run("missing token", func(t *testing.T) {
		status, _ := env.do(t, http.MethodGet, "/v1/scope", "", nil)
		require.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("no tenant scope", func(t *testing.T) {
		status, payload := env.do(t, http.MethodGet, "/v1/scope", env.token(t, "p-nobody", ""), nil)
		require.Equal(t, http.StatusForbidden, status)
		resp := decodeInto[errorResponse](t, payload)
		require.Equal(t, codeNoTenant, resp.Code)
	})

	token := env.token(t, "p-owner", "org-9")
	status, _ := env.do(t, http.MethodPost, "/v1/setup", token, map[string]string{"workspace_name": "Acme"})
	require.Equal(t, http.StatusCreated, status)

	t.Run("invalid provider", func(t *testing.T) {
		status, payload := env.do(t, http.MethodPost, "/v1/mailboxes", token, map[string]any{
			"provider": "imap",
			"address":  "imap@acme.test",
		})
		require.Equal(t, http.StatusBadRequest, status)
		resp := decodeInto[errorResponse](t, payload)
		require.Equal(t, codeInvalidArgument, resp.Code)
	})

	t.Run("smtp without host", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/v1/mailboxes", token, map[string]any{
			"provider": "smtp",
			"address":  "smtp@acme.test",
		})
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("invalid mailbox id", func(t *testing.T) {
		status, _ := env.do(t, http.MethodGet, "/v1/mailboxes/not-a-uuid", token, nil)
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown mailbox id", func(t *testing.T) {
		status, payload := env.do(t, http.MethodGet, "/v1/mailboxes/"+uuid.New().String(), token, nil)
		require.Equal(t, http.StatusNotFound, status)
		resp := decodeInto[errorResponse](t, payload)
		require.Equal(t, codeNotFound, resp.Code)
	})

	t.Run("duplicate address", func(t *testing.T) {
		body := map[string]any{
			"provider": "gmail",
			"address":  "dup@acme.test",
		}
		status, _ := env.do(t, http.MethodPost, "/v1/mailboxes", token, body)
		require.Equal(t, http.StatusCreated, status)

		status, payload := env.do(t, http.MethodPost, "/v1/mailboxes", token, body)
		require.Equal(t, http.StatusConflict, status)
		resp := decodeInto[errorResponse](t, payload)
		require.Equal(t, codeAlreadyExists, resp.Code)
	})
}

func TestScopeLookupFailure(t *testing.T) {
	env := newTestEnv(t, "test-passphrase")

	// Swap in a workspace store that fails every lookup
	failing := &failingWorkspaceStore{err: fmt.Errorf("connection refused")}
	srv := NewServer(failing, env.accounts, env.mailboxes, env.codec, env.verifier)
	failServer := httptest.NewServer(srv.Handler(logger.Setup(false)))
	defer failServer.Close()

	status, payload := doRequest(t, failServer.URL, http.MethodGet, "/v1/scope",
		env.token(t, "p-owner", "org-9"), nil)

	require.Equal(t, http.StatusServiceUnavailable, status)
	resp := decodeInto[errorResponse](t, payload)
	require.Equal(t, codeRetryable, resp.Code)
}

// The server command refuses to start without a passphrase, so a keyless
// codec only exists when the server is constructed programmatically. The
// codec-level guard still has to surface cleanly rather than panic.
func TestEncodeWithoutPassphrase(t *testing.T) {
	env := newTestEnv(t, "")

	token := env.token(t, "p-owner", "org-9")
	status, _ := env.do(t, http.MethodPost, "/v1/setup", token, map[string]string{"workspace_name": "Acme"})
	require.Equal(t, http.StatusCreated, status)

	status, payload := env.do(t, http.MethodPost, "/v1/mailboxes", token, map[string]any{
		"provider":      "gmail",
		"address":       "support@acme.test",
		"refresh_token": "1//refresh-token-secret",
	})
	require.Equal(t, http.StatusInternalServerError, status)
	resp := decodeInto[errorResponse](t, payload)
	require.Equal(t, codeKeyUnavailable, resp.Code)
}

type failingWorkspaceStore struct {
	err error
}

var _ store.WorkspaceStore = (*failingWorkspaceStore)(nil)

func (s *failingWorkspaceStore) Create(ctx context.Context, workspace *models.Workspace) error {
	return s.err
}

func (s *failingWorkspaceStore) Get(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error) {
	return nil, s.err
}

func (s *failingWorkspaceStore) GetByExternalOrgID(ctx context.Context, externalOrgID string) (*models.Workspace, error) {
	return nil, s.err
}
