package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"

	httpmiddleware "github.com/replydeck/replydeck/internal/http"
	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/secrets"
	"github.com/replydeck/replydeck/internal/telemetry"
)

type createMailboxRequest struct {
	Provider    string `json:"provider"`
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`

	// OAuth providers
	RefreshToken string `json:"refresh_token"`

	// SMTP provider
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int32  `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
}

type mailboxResponse struct {
	MailboxID      string    `json:"mailbox_id"`
	Provider       string    `json:"provider"`
	Address        string    `json:"address"`
	DisplayName    string    `json:"display_name,omitempty"`
	SMTPHost       *string   `json:"smtp_host,omitempty"`
	SMTPPort       *int32    `json:"smtp_port,omitempty"`
	SMTPUsername   *string   `json:"smtp_username,omitempty"`
	HasCredentials bool      `json:"has_credentials"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func mailboxPayload(m *models.Mailbox) mailboxResponse {
	stored := m.RefreshToken
	if m.Provider == models.ProviderSMTP {
		stored = m.SMTPPassword
	}

	return mailboxResponse{
		MailboxID:      m.MailboxID.String(),
		Provider:       m.Provider,
		Address:        m.Address,
		DisplayName:    m.DisplayName,
		SMTPHost:       m.SMTPHost,
		SMTPPort:       m.SMTPPort,
		SMTPUsername:   m.SMTPUsername,
		HasCredentials: secrets.Classify(stored) != secrets.FormatEmpty,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type smtpCredentials struct {
	Host     string  `json:"host"`
	Port     int32   `json:"port"`
	Username string  `json:"username"`
	Password *string `json:"password"`
}

type credentialsResponse struct {
	MailboxID string           `json:"mailbox_id"`
	Provider  string           `json:"provider"`
	Address   string           `json:"address"`
	OAuth     *oauth2.Token    `json:"oauth,omitempty"`
	SMTP      *smtpCredentials `json:"smtp,omitempty"`
}

// encodeSecret encrypts a plaintext secret for storage, counting the encode.
func (s *Server) encodeSecret(ctx context.Context, plaintext string) (string, error) {
	encoded, err := s.codec.Encode(plaintext)
	if err != nil {
		return "", err
	}
	telemetry.GetMetrics().SecretsEncodeTotal.Add(ctx, 1)
	return encoded, nil
}

// recordDecode counts a decode by stored format and flags plaintext
// fallbacks so operators can steer the encryption migration.
func recordDecode(ctx context.Context, column, stored string) {
	format := secrets.Classify(stored)
	telemetry.GetMetrics().SecretsDecodeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", string(format)),
	))
	if format == secrets.FormatPlaintext {
		log.Warn().
			Str("column", column).
			Str("fingerprint", secrets.Fingerprint(stored)).
			Msg("Secret served from plaintext fallback")
	}
}

// handleCreateMailbox connects a mailbox to the caller's tenant. Plaintext
// secrets in the request are encrypted before they reach the store.
func (s *Server) handleCreateMailbox(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(w, r)
	if !ok {
		return
	}

	var req createMailboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "invalid request body")
		return
	}

	if !models.ValidProvider(req.Provider) {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "provider must be one of gmail, outlook, smtp")
		return
	}
	if req.Address == "" || !strings.Contains(req.Address, "@") {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "a valid address is required")
		return
	}
	if req.Provider == models.ProviderSMTP && req.SMTPHost == "" {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "smtp_host is required for smtp mailboxes")
		return
	}

	mailboxID, err := uuid.NewV7()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate mailbox ID")
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to generate mailbox ID")
		return
	}

	now := time.Now()
	mailbox := &models.Mailbox{
		MailboxID:   mailboxID,
		Provider:    req.Provider,
		Address:     req.Address,
		DisplayName: req.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch req.Provider {
	case models.ProviderSMTP:
		host := req.SMTPHost
		port := req.SMTPPort
		if port == 0 {
			port = 587
		}
		username := req.SMTPUsername
		if username == "" {
			username = req.Address
		}
		mailbox.SMTPHost = &host
		mailbox.SMTPPort = &port
		mailbox.SMTPUsername = &username

		if req.SMTPPassword != "" {
			mailbox.SMTPPassword, err = s.encodeSecret(r.Context(), req.SMTPPassword)
			if err != nil {
				respondStoreError(w, err)
				return
			}
		}
	default:
		if req.RefreshToken != "" {
			mailbox.RefreshToken, err = s.encodeSecret(r.Context(), req.RefreshToken)
			if err != nil {
				respondStoreError(w, err)
				return
			}
		}
	}

	if err := s.mailboxes.Create(r.Context(), scope, mailbox); err != nil {
		respondStoreError(w, err)
		return
	}

	telemetry.GetMetrics().MailboxesCreatedTotal.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("provider", mailbox.Provider),
	))

	log.Info().
		Str("mailbox_id", mailbox.MailboxID.String()).
		Str("provider", mailbox.Provider).
		Str("scope", scope.String()).
		Msg("Created mailbox")

	respondJSON(w, http.StatusCreated, mailboxPayload(mailbox))
}

// handleListMailboxes lists the caller's mailboxes, newest first.
func (s *Server) handleListMailboxes(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(w, r)
	if !ok {
		return
	}

	mailboxes, err := s.mailboxes.List(r.Context(), scope)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	payload := make([]mailboxResponse, 0, len(mailboxes))
	for _, m := range mailboxes {
		payload = append(payload, mailboxPayload(m))
	}

	respondJSON(w, http.StatusOK, map[string]any{"mailboxes": payload})
}

func (s *Server) handleGetMailbox(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(w, r)
	if !ok {
		return
	}

	mailboxID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "invalid mailbox id")
		return
	}

	mailbox, err := s.mailboxes.Get(r.Context(), scope, mailboxID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, mailboxPayload(mailbox))
}

func (s *Server) handleDeleteMailbox(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(w, r)
	if !ok {
		return
	}

	mailboxID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "invalid mailbox id")
		return
	}

	if err := s.mailboxes.Delete(r.Context(), scope, mailboxID); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().
		Str("mailbox_id", mailboxID.String()).
		Str("scope", scope.String()).
		Msg("Deleted mailbox")

	w.WriteHeader(http.StatusNoContent)
}

// handleGetCredentials materializes a mailbox's sending credentials. OAuth
// mailboxes yield a refresh token, SMTP mailboxes the host settings and
// password. A secret that cannot be decoded comes back null rather than
// failing the whole read.
func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(w, r)
	if !ok {
		return
	}

	mailboxID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "invalid mailbox id")
		return
	}

	mailbox, err := s.mailboxes.Get(r.Context(), scope, mailboxID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	resp := credentialsResponse{
		MailboxID: mailbox.MailboxID.String(),
		Provider:  mailbox.Provider,
		Address:   mailbox.Address,
	}

	stored := mailbox.RefreshToken
	if mailbox.UsesOAuth() {
		recordDecode(r.Context(), "refresh_token", mailbox.RefreshToken)

		refreshToken, present, err := s.codec.Decode(mailbox.RefreshToken)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if present {
			resp.OAuth = &oauth2.Token{
				TokenType:    "Bearer",
				RefreshToken: refreshToken,
			}
		}
	} else {
		stored = mailbox.SMTPPassword
		recordDecode(r.Context(), "smtp_password", mailbox.SMTPPassword)

		password, present, err := s.codec.Decode(mailbox.SMTPPassword)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		smtp := &smtpCredentials{Username: mailbox.Address}
		if mailbox.SMTPHost != nil {
			smtp.Host = *mailbox.SMTPHost
		}
		if mailbox.SMTPPort != nil {
			smtp.Port = *mailbox.SMTPPort
		}
		if mailbox.SMTPUsername != nil {
			smtp.Username = *mailbox.SMTPUsername
		}
		if present {
			// An absent password stays null so callers can tell it apart
			// from an empty one
			smtp.Password = &password
		}
		resp.SMTP = smtp
	}

	telemetry.GetMetrics().CredentialReadsTotal.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("provider", mailbox.Provider),
	))

	// Audit with the stored fingerprint, never the plaintext
	log.Info().
		Str("mailbox_id", mailbox.MailboxID.String()).
		Str("scope", scope.String()).
		Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).
		Str("fingerprint", secrets.Fingerprint(stored)).
		Msg("Credentials read")

	respondJSON(w, http.StatusOK, resp)
}
