package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
)

// WorkspaceStore implements store.WorkspaceStore using PostgreSQL.
type WorkspaceStore struct {
	pool *pgxpool.Pool
}

// NewWorkspaceStore creates a new PostgreSQL-backed workspace store.
// It shares the connection pool with the other stores.
func NewWorkspaceStore(pool *pgxpool.Pool) *WorkspaceStore {
	return &WorkspaceStore{
		pool: pool,
	}
}

// Create creates a new workspace in the database.
func (s *WorkspaceStore) Create(ctx context.Context, workspace *models.Workspace) error {
	query := `
		INSERT INTO workspaces (
			workspace_id, name, external_org_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		workspace.WorkspaceID,
		workspace.Name,
		workspace.ExternalOrgID,
		workspace.CreatedAt,
		workspace.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrWorkspaceAlreadyExists
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	log.Debug().
		Str("workspace_id", workspace.WorkspaceID.String()).
		Str("name", workspace.Name).
		Msg("Created workspace")

	return nil
}

// Get retrieves a workspace by ID.
func (s *WorkspaceStore) Get(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error) {
	query := `
		SELECT workspace_id, name, external_org_id, created_at, updated_at
		FROM workspaces
		WHERE workspace_id = $1
	`

	var workspace models.Workspace
	err := s.pool.QueryRow(ctx, query, workspaceID).Scan(
		&workspace.WorkspaceID,
		&workspace.Name,
		&workspace.ExternalOrgID,
		&workspace.CreatedAt,
		&workspace.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return &workspace, nil
}

// GetByExternalOrgID retrieves the workspace mapped to an identity provider
// organization ID.
func (s *WorkspaceStore) GetByExternalOrgID(ctx context.Context, externalOrgID string) (*models.Workspace, error) {
	query := `
		SELECT workspace_id, name, external_org_id, created_at, updated_at
		FROM workspaces
		WHERE external_org_id = $1
	`

	var workspace models.Workspace
	err := s.pool.QueryRow(ctx, query, externalOrgID).Scan(
		&workspace.WorkspaceID,
		&workspace.Name,
		&workspace.ExternalOrgID,
		&workspace.CreatedAt,
		&workspace.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace by external org: %w", err)
	}

	return &workspace, nil
}
