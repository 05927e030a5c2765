package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/replydeck/replydeck/internal/auth"
	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
	"github.com/replydeck/replydeck/internal/telemetry"
	"github.com/replydeck/replydeck/internal/tenancy"
)

type scopeResponse struct {
	Kind        string `json:"kind"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
}

func scopePayload(scope models.Scope) scopeResponse {
	resp := scopeResponse{Kind: scope.Kind}
	switch scope.Kind {
	case models.ScopeWorkspace:
		resp.WorkspaceID = scope.WorkspaceID.String()
	case models.ScopeAccount:
		resp.AccountID = scope.AccountID.String()
	}
	return resp
}

type setupRequest struct {
	WorkspaceName string `json:"workspace_name"`
	Email         string `json:"email"`
}

type setupResponse struct {
	Scope   scopeResponse `json:"scope"`
	Created bool          `json:"created"`
}

// resolveScope resolves the caller's tenant scope and records the outcome.
func (s *Server) resolveScope(ctx context.Context, principal tenancy.Principal) (models.Scope, error) {
	started := time.Now()
	scope, err := s.resolver.Resolve(ctx, principal)

	outcome := scope.Kind
	switch {
	case errors.Is(err, tenancy.ErrScopeNotFound):
		outcome = "not_found"
	case errors.Is(err, tenancy.ErrScopeLookupFailed):
		outcome = "lookup_failed"
	case err != nil:
		outcome = "error"
	}

	m := telemetry.GetMetrics()
	m.ScopeResolveTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.ScopeResolveDuration.Record(ctx, time.Since(started).Seconds()*1000)

	return scope, err
}

// scopeFromRequest resolves the caller's scope, writing the error response
// and returning false when it cannot.
func (s *Server) scopeFromRequest(w http.ResponseWriter, r *http.Request) (models.Scope, bool) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, codeUnauthenticated, "not authenticated")
		return models.Scope{}, false
	}

	scope, err := s.resolveScope(r.Context(), *principal)
	if err != nil {
		respondResolveError(w, err)
		return models.Scope{}, false
	}

	return scope, true
}

// handleGetScope returns the caller's resolved tenant scope.
func (s *Server) handleGetScope(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, scopePayload(scope))
}

// handleSetup provisions a tenant for the caller. Principals carrying an
// organization get a workspace, standalone principals get an account.
// Setup is idempotent: an already provisioned caller gets their current
// scope back instead of a duplicate tenant.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, codeUnauthenticated, "not authenticated")
		return
	}

	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "invalid request body")
		return
	}

	scope, err := s.resolveScope(r.Context(), *principal)
	if err == nil {
		respondJSON(w, http.StatusOK, setupResponse{Scope: scopePayload(scope), Created: false})
		return
	}
	if !errors.Is(err, tenancy.ErrScopeNotFound) {
		respondResolveError(w, err)
		return
	}

	if principal.OrgID != "" {
		s.provisionWorkspace(w, r, *principal, req)
		return
	}

	s.provisionAccount(w, r, *principal, req)
}

func (s *Server) provisionWorkspace(w http.ResponseWriter, r *http.Request, principal tenancy.Principal, req setupRequest) {
	if req.WorkspaceName == "" {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "workspace_name is required")
		return
	}

	workspaceID, err := uuid.NewV7()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate workspace ID")
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to generate workspace ID")
		return
	}

	now := time.Now()
	orgID := principal.OrgID
	workspace := &models.Workspace{
		WorkspaceID:   workspaceID,
		Name:          req.WorkspaceName,
		ExternalOrgID: &orgID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.workspaces.Create(r.Context(), workspace)
	if errors.Is(err, store.ErrWorkspaceAlreadyExists) {
		// Lost a provisioning race; the winner's workspace covers this
		// caller too
		scope, rerr := s.resolveScope(r.Context(), principal)
		if rerr != nil {
			respondResolveError(w, rerr)
			return
		}
		respondJSON(w, http.StatusOK, setupResponse{Scope: scopePayload(scope), Created: false})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to create workspace")
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to create workspace")
		return
	}

	log.Info().
		Str("workspace_id", workspaceID.String()).
		Str("external_org_id", principal.OrgID).
		Msg("Provisioned workspace")

	respondJSON(w, http.StatusCreated, setupResponse{
		Scope:   scopePayload(models.WorkspaceScope(workspaceID)),
		Created: true,
	})
}

func (s *Server) provisionAccount(w http.ResponseWriter, r *http.Request, principal tenancy.Principal, req setupRequest) {
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, codeInvalidArgument, "a valid email is required")
		return
	}

	accountID, err := uuid.NewV7()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate account ID")
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to generate account ID")
		return
	}

	now := time.Now()
	account := &models.Account{
		AccountID:           accountID,
		Email:               req.Email,
		ExternalPrincipalID: principal.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.accounts.Create(r.Context(), account)
	if errors.Is(err, store.ErrAccountAlreadyExists) {
		scope, rerr := s.resolveScope(r.Context(), principal)
		if rerr != nil {
			respondResolveError(w, rerr)
			return
		}
		respondJSON(w, http.StatusOK, setupResponse{Scope: scopePayload(scope), Created: false})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to create account")
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to create account")
		return
	}

	log.Info().
		Str("account_id", accountID.String()).
		Msg("Provisioned account")

	respondJSON(w, http.StatusCreated, setupResponse{
		Scope:   scopePayload(models.AccountScope(accountID)),
		Created: true,
	})
}
