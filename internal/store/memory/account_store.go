package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
)

// AccountStore implements store.AccountStore using in-memory storage.
// This implementation is for testing and local development - data is lost
// on restart.
type AccountStore struct {
	mu sync.RWMutex

	accounts    map[uuid.UUID]*models.Account // account_id -> Account
	byPrincipal map[string]uuid.UUID          // external_principal_id -> account_id
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts:    make(map[uuid.UUID]*models.Account),
		byPrincipal: make(map[string]uuid.UUID),
	}
}

// Create creates a new account in memory.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.AccountID]; exists {
		return store.ErrAccountAlreadyExists
	}

	if _, exists := s.byPrincipal[account.ExternalPrincipalID]; exists {
		return store.ErrAccountAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *account
	s.accounts[account.AccountID] = &clone
	s.byPrincipal[account.ExternalPrincipalID] = account.AccountID

	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return nil, store.ErrAccountNotFound
	}

	// Clone to avoid external modifications
	clone := *account
	return &clone, nil
}

// GetByExternalPrincipalID retrieves the account mapped to an identity
// provider subject ID.
func (s *AccountStore) GetByExternalPrincipalID(ctx context.Context, externalPrincipalID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, exists := s.byPrincipal[externalPrincipalID]
	if !exists {
		return nil, store.ErrAccountNotFound
	}

	account, exists := s.accounts[accountID]
	if !exists {
		return nil, store.ErrAccountNotFound
	}

	clone := *account
	return &clone, nil
}
