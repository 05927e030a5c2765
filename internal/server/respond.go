package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/replydeck/replydeck/internal/secrets"
	"github.com/replydeck/replydeck/internal/store"
	"github.com/replydeck/replydeck/internal/tenancy"
)

// Machine-readable error codes returned in the "code" field.
const (
	codeUnauthenticated = "unauthenticated"
	codeNoTenant        = "no_tenant"
	codeRetryable       = "retryable"
	codeKeyUnavailable  = "key_unavailable"
	codeNotFound        = "not_found"
	codeAlreadyExists   = "already_exists"
	codeInvalidArgument = "invalid_argument"
	codeInternal        = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondResolveError maps scope resolution failures onto HTTP statuses.
// ScopeNotFound is the caller's problem (no tenant yet, 403); lookup
// failures are ours and retryable (503).
func respondResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenancy.ErrScopeNotFound):
		respondError(w, http.StatusForbidden, codeNoTenant, "no tenant scope for principal, call /v1/setup first")
	case errors.Is(err, tenancy.ErrScopeLookupFailed):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, codeRetryable, "scope lookup failed, retry the request")
	case errors.Is(err, tenancy.ErrInvalidPrincipal):
		respondError(w, http.StatusUnauthorized, codeUnauthenticated, "not authenticated")
	default:
		log.Error().Err(err).Msg("Failed to resolve scope")
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to resolve scope")
	}
}

// respondStoreError maps store failures onto HTTP statuses for the
// mailbox routes.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrMailboxNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "mailbox not found")
	case errors.Is(err, store.ErrMailboxAlreadyExists):
		respondError(w, http.StatusConflict, codeAlreadyExists, "mailbox with this address already exists")
	case errors.Is(err, store.ErrInvalidScope):
		respondError(w, http.StatusForbidden, codeNoTenant, "no tenant scope for principal")
	case errors.Is(err, secrets.ErrKeyUnavailable):
		respondError(w, http.StatusInternalServerError, codeKeyUnavailable, "secrets key is not configured")
	default:
		log.Error().Err(err).Msg("Store operation failed")
		respondError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
