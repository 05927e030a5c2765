package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
)

func TestMemoryWorkspaceStoreImplementsInterface(t *testing.T) {
	var _ store.WorkspaceStore = (*WorkspaceStore)(nil)
}

func newTestWorkspace(t *testing.T, externalOrgID string) *models.Workspace {
	t.Helper()

	workspaceID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	workspace := &models.Workspace{
		WorkspaceID: workspaceID,
		Name:        "Acme Support",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if externalOrgID != "" {
		workspace.ExternalOrgID = &externalOrgID
	}
	return workspace
}

func TestMemoryWorkspaceStore_Create(t *testing.T) {
	t.Run("create new workspace", func(t *testing.T) {
		st := NewWorkspaceStore()
		ctx := context.Background()

		err := st.Create(ctx, newTestWorkspace(t, "org_123"))
		require.NoError(t, err)
	})

	t.Run("create duplicate workspace returns error", func(t *testing.T) {
		st := NewWorkspaceStore()
		ctx := context.Background()

		workspace := newTestWorkspace(t, "org_123")
		require.NoError(t, st.Create(ctx, workspace))

		err := st.Create(ctx, workspace)
		require.ErrorIs(t, err, store.ErrWorkspaceAlreadyExists)
	})

	t.Run("create duplicate external org returns error", func(t *testing.T) {
		st := NewWorkspaceStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, newTestWorkspace(t, "org_123")))

		err := st.Create(ctx, newTestWorkspace(t, "org_123"))
		require.ErrorIs(t, err, store.ErrWorkspaceAlreadyExists)
	})

	t.Run("workspaces without external org do not collide", func(t *testing.T) {
		st := NewWorkspaceStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, newTestWorkspace(t, "")))
		require.NoError(t, st.Create(ctx, newTestWorkspace(t, "")))
	})
}

func TestMemoryWorkspaceStore_Get(t *testing.T) {
	t.Run("get existing workspace", func(t *testing.T) {
		st := NewWorkspaceStore()
		ctx := context.Background()

		workspace := newTestWorkspace(t, "org_123")
		require.NoError(t, st.Create(ctx, workspace))

		retrieved, err := st.Get(ctx, workspace.WorkspaceID)
		require.NoError(t, err)
		require.Equal(t, workspace.WorkspaceID, retrieved.WorkspaceID)
		require.Equal(t, workspace.Name, retrieved.Name)
	})

	t.Run("get missing workspace returns not found", func(t *testing.T) {
		st := NewWorkspaceStore()

		_, err := st.Get(context.Background(), uuid.New())
		require.ErrorIs(t, err, store.ErrWorkspaceNotFound)
	})
}

func TestMemoryWorkspaceStore_GetByExternalOrgID(t *testing.T) {
	t.Run("get by external org", func(t *testing.T) {
		st := NewWorkspaceStore()
		ctx := context.Background()

		workspace := newTestWorkspace(t, "org_123")
		require.NoError(t, st.Create(ctx, workspace))

		retrieved, err := st.GetByExternalOrgID(ctx, "org_123")
		require.NoError(t, err)
		require.Equal(t, workspace.WorkspaceID, retrieved.WorkspaceID)
	})

	t.Run("unknown external org returns not found", func(t *testing.T) {
		st := NewWorkspaceStore()

		_, err := st.GetByExternalOrgID(context.Background(), "org_999")
		require.ErrorIs(t, err, store.ErrWorkspaceNotFound)
	})
}
