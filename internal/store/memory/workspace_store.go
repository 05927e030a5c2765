package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
)

// WorkspaceStore implements store.WorkspaceStore using in-memory storage.
// This implementation is for testing and local development - data is lost
// on restart.
type WorkspaceStore struct {
	mu sync.RWMutex

	workspaces    map[uuid.UUID]*models.Workspace // workspace_id -> Workspace
	byExternalOrg map[string]uuid.UUID            // external_org_id -> workspace_id
}

// NewWorkspaceStore creates a new in-memory workspace store.
func NewWorkspaceStore() *WorkspaceStore {
	return &WorkspaceStore{
		workspaces:    make(map[uuid.UUID]*models.Workspace),
		byExternalOrg: make(map[string]uuid.UUID),
	}
}

// Create creates a new workspace in memory.
func (s *WorkspaceStore) Create(ctx context.Context, workspace *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workspaces[workspace.WorkspaceID]; exists {
		return store.ErrWorkspaceAlreadyExists
	}

	if workspace.ExternalOrgID != nil {
		if _, exists := s.byExternalOrg[*workspace.ExternalOrgID]; exists {
			return store.ErrWorkspaceAlreadyExists
		}
	}

	// Clone to avoid external modifications
	clone := *workspace
	s.workspaces[workspace.WorkspaceID] = &clone

	if workspace.ExternalOrgID != nil {
		s.byExternalOrg[*workspace.ExternalOrgID] = workspace.WorkspaceID
	}

	return nil
}

// Get retrieves a workspace by ID.
func (s *WorkspaceStore) Get(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workspace, exists := s.workspaces[workspaceID]
	if !exists {
		return nil, store.ErrWorkspaceNotFound
	}

	// Clone to avoid external modifications
	clone := *workspace
	return &clone, nil
}

// GetByExternalOrgID retrieves the workspace mapped to an identity provider
// organization ID.
func (s *WorkspaceStore) GetByExternalOrgID(ctx context.Context, externalOrgID string) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workspaceID, exists := s.byExternalOrg[externalOrgID]
	if !exists {
		return nil, store.ErrWorkspaceNotFound
	}

	workspace, exists := s.workspaces[workspaceID]
	if !exists {
		return nil, store.ErrWorkspaceNotFound
	}

	clone := *workspace
	return &clone, nil
}
