package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/replydeck/replydeck/internal/models"
)

// Sentinel errors for mailbox store operations
var (
	ErrMailboxNotFound      = errors.New("mailbox not found")
	ErrMailboxAlreadyExists = errors.New("mailbox already exists")
	ErrInvalidScope         = errors.New("invalid scope")
)

// MailboxStore defines the interface for mailbox storage operations.
// Every method takes a models.Scope and applies it as a row filter, so a
// request can never read or mutate a mailbox outside its own tenant. The
// scope comes from the tenancy resolver; handlers must not construct one
// from request input.
type MailboxStore interface {
	// Create creates a new mailbox owned by the scope's tenant. The owner
	// columns are set from the scope, overriding whatever the caller put on
	// the model. Returns ErrMailboxAlreadyExists if a mailbox with the same
	// ID or the same address already exists for the tenant, and
	// ErrInvalidScope if the scope is zero.
	Create(ctx context.Context, scope models.Scope, mailbox *models.Mailbox) error

	// Get retrieves a mailbox by ID within the scope.
	// Returns ErrMailboxNotFound if the mailbox doesn't exist or belongs to
	// another tenant; callers cannot tell the two apart.
	Get(ctx context.Context, scope models.Scope, mailboxID uuid.UUID) (*models.Mailbox, error)

	// List returns all mailboxes owned by the scope's tenant, newest first.
	List(ctx context.Context, scope models.Scope) ([]*models.Mailbox, error)

	// Delete removes a mailbox by ID within the scope.
	// Returns ErrMailboxNotFound if the mailbox doesn't exist or belongs to
	// another tenant.
	Delete(ctx context.Context, scope models.Scope, mailboxID uuid.UUID) error
}

// MailboxMaintenanceStore is the unscoped surface for offline maintenance
// jobs (secret audits and rotations run by the admin CLI). It deliberately
// lives outside MailboxStore so nothing on a request path can reach
// cross-tenant rows by accident. Never use it while serving a request.
type MailboxMaintenanceStore interface {
	// ForEachMailbox calls fn for every mailbox across all tenants, in
	// undefined order. Iteration stops at the first error fn returns.
	ForEachMailbox(ctx context.Context, fn func(*models.Mailbox) error) error

	// UpdateMailboxSecrets replaces both stored secret columns for a
	// mailbox. Returns ErrMailboxNotFound if the mailbox doesn't exist.
	UpdateMailboxSecrets(ctx context.Context, mailboxID uuid.UUID, refreshToken, smtpPassword string) error
}
