package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
)

const mailboxColumns = `
	mailbox_id, workspace_id, user_id, provider, address, display_name,
	refresh_token, smtp_host, smtp_port, smtp_username, smtp_password,
	created_at, updated_at
`

// MailboxStore implements store.MailboxStore and
// store.MailboxMaintenanceStore using PostgreSQL. Scoped methods bake the
// tenant predicate into every statement; the maintenance methods are the
// only unscoped access and exist for the admin CLI.
type MailboxStore struct {
	pool *pgxpool.Pool
}

// NewMailboxStore creates a new PostgreSQL-backed mailbox store.
// It shares the connection pool with the other stores.
func NewMailboxStore(pool *pgxpool.Pool) *MailboxStore {
	return &MailboxStore{
		pool: pool,
	}
}

// ownerColumn maps a scope to the tenant predicate column and value.
func ownerColumn(scope models.Scope) (string, uuid.UUID, error) {
	switch scope.Kind {
	case models.ScopeWorkspace:
		return "workspace_id", scope.WorkspaceID, nil
	case models.ScopeAccount:
		return "user_id", scope.AccountID, nil
	}
	return "", uuid.Nil, store.ErrInvalidScope
}

// Create creates a new mailbox owned by the scope's tenant. The owner
// columns always come from the scope, not from the model.
func (s *MailboxStore) Create(ctx context.Context, scope models.Scope, mailbox *models.Mailbox) error {
	switch scope.Kind {
	case models.ScopeWorkspace:
		workspaceID := scope.WorkspaceID
		mailbox.WorkspaceID = &workspaceID
		mailbox.UserID = nil
	case models.ScopeAccount:
		accountID := scope.AccountID
		mailbox.UserID = &accountID
		mailbox.WorkspaceID = nil
	default:
		return store.ErrInvalidScope
	}

	query := `
		INSERT INTO mailboxes (
			mailbox_id, workspace_id, user_id, provider, address, display_name,
			refresh_token, smtp_host, smtp_port, smtp_username, smtp_password,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := s.pool.Exec(ctx, query,
		mailbox.MailboxID,
		mailbox.WorkspaceID,
		mailbox.UserID,
		mailbox.Provider,
		mailbox.Address,
		mailbox.DisplayName,
		mailbox.RefreshToken,
		mailbox.SMTPHost,
		mailbox.SMTPPort,
		mailbox.SMTPUsername,
		mailbox.SMTPPassword,
		mailbox.CreatedAt,
		mailbox.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrMailboxAlreadyExists
		}
		if isCheckViolation(err) {
			return store.ErrInvalidScope
		}
		return fmt.Errorf("failed to create mailbox: %w", err)
	}

	log.Debug().
		Str("mailbox_id", mailbox.MailboxID.String()).
		Str("provider", mailbox.Provider).
		Str("scope", scope.String()).
		Msg("Created mailbox")

	return nil
}

// Get retrieves a mailbox by ID within the scope. A mailbox owned by
// another tenant is indistinguishable from a missing one.
func (s *MailboxStore) Get(ctx context.Context, scope models.Scope, mailboxID uuid.UUID) (*models.Mailbox, error) {
	column, owner, err := ownerColumn(scope)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM mailboxes
		WHERE %s = $1 AND mailbox_id = $2
	`, mailboxColumns, column)

	mailbox, err := scanMailbox(s.pool.QueryRow(ctx, query, owner, mailboxID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}

	return mailbox, nil
}

// List returns all mailboxes owned by the scope's tenant, newest first.
func (s *MailboxStore) List(ctx context.Context, scope models.Scope) ([]*models.Mailbox, error) {
	column, owner, err := ownerColumn(scope)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM mailboxes
		WHERE %s = $1
		ORDER BY created_at DESC
	`, mailboxColumns, column)

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []*models.Mailbox
	for rows.Next() {
		mailbox, err := scanMailbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mailbox: %w", err)
		}
		mailboxes = append(mailboxes, mailbox)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mailboxes: %w", err)
	}

	return mailboxes, nil
}

// Delete removes a mailbox by ID within the scope.
func (s *MailboxStore) Delete(ctx context.Context, scope models.Scope, mailboxID uuid.UUID) error {
	column, owner, err := ownerColumn(scope)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM mailboxes WHERE %s = $1 AND mailbox_id = $2`, column)

	result, err := s.pool.Exec(ctx, query, owner, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to delete mailbox: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrMailboxNotFound
	}

	log.Debug().
		Str("mailbox_id", mailboxID.String()).
		Str("scope", scope.String()).
		Msg("Deleted mailbox")

	return nil
}

// ForEachMailbox calls fn for every mailbox across all tenants. Rows are
// read into memory first so fn may issue its own statements on the shared
// pool.
func (s *MailboxStore) ForEachMailbox(ctx context.Context, fn func(*models.Mailbox) error) error {
	query := fmt.Sprintf(`
		SELECT %s
		FROM mailboxes
		ORDER BY mailbox_id
	`, mailboxColumns)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to scan mailboxes: %w", err)
	}

	var mailboxes []*models.Mailbox
	for rows.Next() {
		mailbox, err := scanMailbox(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan mailbox: %w", err)
		}
		mailboxes = append(mailboxes, mailbox)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating mailboxes: %w", err)
	}

	for _, mailbox := range mailboxes {
		if err := fn(mailbox); err != nil {
			return err
		}
	}

	return nil
}

// UpdateMailboxSecrets replaces both stored secret columns for a mailbox.
func (s *MailboxStore) UpdateMailboxSecrets(ctx context.Context, mailboxID uuid.UUID, refreshToken, smtpPassword string) error {
	query := `
		UPDATE mailboxes SET
			refresh_token = $2,
			smtp_password = $3,
			updated_at = $4
		WHERE mailbox_id = $1
	`

	result, err := s.pool.Exec(ctx, query, mailboxID, refreshToken, smtpPassword, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update mailbox secrets: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrMailboxNotFound
	}

	log.Debug().
		Str("mailbox_id", mailboxID.String()).
		Msg("Updated mailbox secrets")

	return nil
}

// scanMailbox reads one mailbox row. It works for both QueryRow and rows
// iteration via the pgx.Row interface.
func scanMailbox(row pgx.Row) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	err := row.Scan(
		&mailbox.MailboxID,
		&mailbox.WorkspaceID,
		&mailbox.UserID,
		&mailbox.Provider,
		&mailbox.Address,
		&mailbox.DisplayName,
		&mailbox.RefreshToken,
		&mailbox.SMTPHost,
		&mailbox.SMTPPort,
		&mailbox.SMTPUsername,
		&mailbox.SMTPPassword,
		&mailbox.CreatedAt,
		&mailbox.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &mailbox, nil
}
