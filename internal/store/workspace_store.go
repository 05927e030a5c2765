package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/replydeck/replydeck/internal/models"
)

// Sentinel errors for workspace store operations
var (
	ErrWorkspaceNotFound      = errors.New("workspace not found")
	ErrWorkspaceAlreadyExists = errors.New("workspace already exists")
)

// WorkspaceStore defines the interface for workspace storage operations.
// Workspaces are team tenants; the scope resolver maps an authenticated
// principal's external organization ID to a workspace through this store.
type WorkspaceStore interface {
	// Create creates a new workspace in the store.
	// Returns ErrWorkspaceAlreadyExists if a workspace with the same ID or
	// the same external organization ID already exists.
	Create(ctx context.Context, workspace *models.Workspace) error

	// Get retrieves a workspace by ID.
	// Returns ErrWorkspaceNotFound if the workspace doesn't exist.
	Get(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error)

	// GetByExternalOrgID retrieves the workspace mapped to an identity
	// provider organization ID. This is the scope resolver's primary lookup.
	// Returns ErrWorkspaceNotFound if no workspace carries the mapping.
	GetByExternalOrgID(ctx context.Context, externalOrgID string) (*models.Workspace, error)
}
