// Package tenancy resolves authenticated principals to data scopes.
//
// Every request runs inside exactly one scope: a workspace (team tenant) or
// a user account (solo tenant), never both. Any code that queries
// tenant-owned tables must apply the scope as a row filter (workspace_id =
// scope.WorkspaceID or user_id = scope.AccountID); the scoped store
// interfaces exist so that contract holds structurally rather than by
// convention. Scopes are resolved fresh on every request and never cached,
// so membership changes take effect on the caller's next request.
package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
)

// Sentinel errors for scope resolution
var (
	// ErrInvalidPrincipal means the principal is missing its subject ID and
	// can never resolve to a scope.
	ErrInvalidPrincipal = errors.New("invalid principal")

	// ErrScopeNotFound means neither a workspace nor an account mapping
	// exists for the principal. The tenant must be provisioned first;
	// retrying the same request will not help.
	ErrScopeNotFound = errors.New("no tenant scope for principal")

	// ErrScopeLookupFailed means a mapping lookup failed for operational
	// reasons (connectivity, timeout). The request is safe to retry.
	ErrScopeLookupFailed = errors.New("scope lookup failed")
)

// Principal is the authenticated caller as carried by a verified identity
// token.
type Principal struct {
	ID    string // Subject ID issued by the identity provider
	OrgID string // Organization ID claim, empty when the token carries none
}

// Resolver maps principals to data scopes using the workspace and account
// directories.
type Resolver struct {
	workspaces store.WorkspaceStore
	accounts   store.AccountStore
}

// NewResolver creates a resolver over the given stores.
func NewResolver(workspaces store.WorkspaceStore, accounts store.AccountStore) *Resolver {
	return &Resolver{
		workspaces: workspaces,
		accounts:   accounts,
	}
}

// Resolve maps a principal to its data scope. A workspace mapping through
// the principal's organization always wins over an account mapping, so a
// user who joined a team sees team data even if they once registered a
// standalone account with the same login. A missing workspace mapping falls
// through to the account lookup; only when both mappings are absent does
// Resolve return ErrScopeNotFound. Infrastructure failures (including
// context cancellation) surface as ErrScopeLookupFailed and must never be
// mistaken for a missing tenant.
func (r *Resolver) Resolve(ctx context.Context, principal Principal) (models.Scope, error) {
	if principal.ID == "" {
		return models.Scope{}, fmt.Errorf("%w: empty principal id", ErrInvalidPrincipal)
	}

	if principal.OrgID != "" {
		workspace, err := r.workspaces.GetByExternalOrgID(ctx, principal.OrgID)
		switch {
		case err == nil:
			scope := models.WorkspaceScope(workspace.WorkspaceID)
			log.Debug().
				Str("principal_id", principal.ID).
				Str("scope", scope.String()).
				Msg("Resolved workspace scope")
			return scope, nil
		case !errors.Is(err, store.ErrWorkspaceNotFound):
			return models.Scope{}, fmt.Errorf("%w: workspace by org %s: %w", ErrScopeLookupFailed, principal.OrgID, err)
		}
		// no workspace carries this org, fall through to the account lookup
	}

	account, err := r.accounts.GetByExternalPrincipalID(ctx, principal.ID)
	switch {
	case err == nil:
		scope := models.AccountScope(account.AccountID)
		log.Debug().
			Str("principal_id", principal.ID).
			Str("scope", scope.String()).
			Msg("Resolved account scope")
		return scope, nil
	case errors.Is(err, store.ErrAccountNotFound):
		return models.Scope{}, ErrScopeNotFound
	default:
		return models.Scope{}, fmt.Errorf("%w: account by principal %s: %w", ErrScopeLookupFailed, principal.ID, err)
	}
}
