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

// AccountStore implements store.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new PostgreSQL-backed account store.
// It shares the connection pool with the other stores.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{
		pool: pool,
	}
}

// Create creates a new account in the database.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (
			account_id, email, external_principal_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		account.AccountID,
		account.Email,
		account.ExternalPrincipalID,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	log.Debug().
		Str("account_id", account.AccountID.String()).
		Msg("Created account")

	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	query := `
		SELECT account_id, email, external_principal_id, created_at, updated_at
		FROM accounts
		WHERE account_id = $1
	`

	var account models.Account
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&account.AccountID,
		&account.Email,
		&account.ExternalPrincipalID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetByExternalPrincipalID retrieves the account mapped to an identity
// provider subject ID.
func (s *AccountStore) GetByExternalPrincipalID(ctx context.Context, externalPrincipalID string) (*models.Account, error) {
	query := `
		SELECT account_id, email, external_principal_id, created_at, updated_at
		FROM accounts
		WHERE external_principal_id = $1
	`

	var account models.Account
	err := s.pool.QueryRow(ctx, query, externalPrincipalID).Scan(
		&account.AccountID,
		&account.Email,
		&account.ExternalPrincipalID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by external principal: %w", err)
	}

	return &account, nil
}
