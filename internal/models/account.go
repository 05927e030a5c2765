package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a standalone user tenant: a solo operator who signed up
// without an organization. Accounts own their mailboxes directly rather than
// through a workspace.
type Account struct {
	AccountID           uuid.UUID // UUIDv7
	Email               string    // Primary email address
	ExternalPrincipalID string    // Subject ID from the identity provider, unique
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
