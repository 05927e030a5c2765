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

func TestMemoryAccountStoreImplementsInterface(t *testing.T) {
	var _ store.AccountStore = (*AccountStore)(nil)
}

func newTestAccount(t *testing.T, externalPrincipalID string) *models.Account {
	t.Helper()

	accountID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.Account{
		AccountID:           accountID,
		Email:               "solo@example.com",
		ExternalPrincipalID: externalPrincipalID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestMemoryAccountStore_Create(t *testing.T) {
	t.Run("create new account", func(t *testing.T) {
		st := NewAccountStore()

		err := st.Create(context.Background(), newTestAccount(t, "p1"))
		require.NoError(t, err)
	})

	t.Run("create duplicate external principal returns error", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, newTestAccount(t, "p1")))

		err := st.Create(ctx, newTestAccount(t, "p1"))
		require.ErrorIs(t, err, store.ErrAccountAlreadyExists)
	})
}

func TestMemoryAccountStore_Get(t *testing.T) {
	t.Run("get existing account", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		account := newTestAccount(t, "p1")
		require.NoError(t, st.Create(ctx, account))

		retrieved, err := st.Get(ctx, account.AccountID)
		require.NoError(t, err)
		require.Equal(t, account.Email, retrieved.Email)
	})

	t.Run("get missing account returns not found", func(t *testing.T) {
		st := NewAccountStore()

		_, err := st.Get(context.Background(), uuid.New())
		require.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}

func TestMemoryAccountStore_GetByExternalPrincipalID(t *testing.T) {
	t.Run("get by external principal", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		account := newTestAccount(t, "p1")
		require.NoError(t, st.Create(ctx, account))

		retrieved, err := st.GetByExternalPrincipalID(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, account.AccountID, retrieved.AccountID)
	})

	t.Run("unknown external principal returns not found", func(t *testing.T) {
		st := NewAccountStore()

		_, err := st.GetByExternalPrincipalID(context.Background(), "p9")
		require.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}
