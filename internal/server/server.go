package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/replydeck/replydeck/internal/auth"
	httpmiddleware "github.com/replydeck/replydeck/internal/http"
	"github.com/replydeck/replydeck/internal/logger"
	"github.com/replydeck/replydeck/internal/secrets"
	"github.com/replydeck/replydeck/internal/store"
	"github.com/replydeck/replydeck/internal/tenancy"
)

// Server wires the tenant API over the stores, the scope resolver and the
// secret codec. Every /v1 route requires a verified bearer token and every
// data access goes through the caller's resolved scope.
type Server struct {
	workspaces store.WorkspaceStore
	accounts   store.AccountStore
	mailboxes  store.MailboxStore
	resolver   *tenancy.Resolver
	codec      *secrets.Codec
	verifier   *auth.Verifier
}

// NewServer creates a new server over the given stores.
func NewServer(
	workspaces store.WorkspaceStore,
	accounts store.AccountStore,
	mailboxes store.MailboxStore,
	codec *secrets.Codec,
	verifier *auth.Verifier,
) *Server {
	return &Server{
		workspaces: workspaces,
		accounts:   accounts,
		mailboxes:  mailboxes,
		resolver:   tenancy.NewResolver(workspaces, accounts),
		codec:      codec,
		verifier:   verifier,
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/setup", s.handleSetup)
	api.HandleFunc("GET /v1/scope", s.handleGetScope)
	api.HandleFunc("POST /v1/mailboxes", s.handleCreateMailbox)
	api.HandleFunc("GET /v1/mailboxes", s.handleListMailboxes)
	api.HandleFunc("GET /v1/mailboxes/{id}", s.handleGetMailbox)
	api.HandleFunc("DELETE /v1/mailboxes/{id}", s.handleDeleteMailbox)
	api.HandleFunc("GET /v1/mailboxes/{id}/credentials", s.handleGetCredentials)

	// Every API route requires a verified bearer token
	mux.Handle("/v1/", s.verifier.Middleware()(api))

	handler := httpmiddleware.ClientIPMiddleware()(mux)
	return logger.HTTPRequests(log)(handler)
}
