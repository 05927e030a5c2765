package models

import (
	"github.com/google/uuid"
)

// ScopeKind identifies which tenant dimension a scope filters on.
const (
	ScopeWorkspace = "workspace" // Team tenant, rows filtered by workspace_id
	ScopeAccount   = "account"   // Solo tenant, rows filtered by user_id
)

// Scope is the data boundary for one authenticated request. Exactly one of
// WorkspaceID or AccountID is set, selected by Kind. Every store operation
// that touches tenant-owned rows takes a Scope and applies it as a filter;
// nothing tenant-owned may be read or written without one.
type Scope struct {
	Kind        string    // "workspace" or "account"
	WorkspaceID uuid.UUID // Set when Kind == ScopeWorkspace
	AccountID   uuid.UUID // Set when Kind == ScopeAccount
}

// WorkspaceScope returns a scope covering a single workspace.
func WorkspaceScope(workspaceID uuid.UUID) Scope {
	return Scope{Kind: ScopeWorkspace, WorkspaceID: workspaceID}
}

// AccountScope returns a scope covering a single user account.
func AccountScope(accountID uuid.UUID) Scope {
	return Scope{Kind: ScopeAccount, AccountID: accountID}
}

// String renders the scope for audit logs (e.g., "workspace/0192...").
func (s Scope) String() string {
	switch s.Kind {
	case ScopeWorkspace:
		return "workspace/" + s.WorkspaceID.String()
	case ScopeAccount:
		return "account/" + s.AccountID.String()
	}
	return "invalid"
}

// Covers reports whether the given mailbox belongs to this scope. Store
// implementations use it (or the equivalent SQL predicate) to filter rows.
func (s Scope) Covers(m *Mailbox) bool {
	switch s.Kind {
	case ScopeWorkspace:
		return m.WorkspaceID != nil && *m.WorkspaceID == s.WorkspaceID
	case ScopeAccount:
		return m.UserID != nil && *m.UserID == s.AccountID
	}
	return false
}
