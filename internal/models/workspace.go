package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace represents a team tenant in the system. Every mailbox, thread
// and reply owned by a team hangs off its workspace. Workspaces created
// through the dashboard carry the external organization ID issued by the
// identity provider; internally-provisioned workspaces may not.
type Workspace struct {
	WorkspaceID   uuid.UUID // UUIDv7
	Name          string    // Display name (e.g., "Acme Support")
	ExternalOrgID *string   // Organization ID from the identity provider, unique when set
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
