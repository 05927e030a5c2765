package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/replydeck/replydeck/internal/models"
)

// Sentinel errors for account store operations
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
)

// AccountStore defines the interface for account storage operations.
// Accounts are solo tenants; the scope resolver falls back to this store
// when a principal carries no organization mapping.
type AccountStore interface {
	// Create creates a new account in the store.
	// Returns ErrAccountAlreadyExists if an account with the same ID or the
	// same external principal ID already exists.
	Create(ctx context.Context, account *models.Account) error

	// Get retrieves an account by ID.
	// Returns ErrAccountNotFound if the account doesn't exist.
	Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error)

	// GetByExternalPrincipalID retrieves the account mapped to an identity
	// provider subject ID.
	// Returns ErrAccountNotFound if no account carries the mapping.
	GetByExternalPrincipalID(ctx context.Context, externalPrincipalID string) (*models.Account, error)
}
