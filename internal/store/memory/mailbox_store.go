package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/store"
)

// MailboxStore implements store.MailboxStore and
// store.MailboxMaintenanceStore using in-memory storage.
// This implementation is for testing and local development - data is lost
// on restart.
type MailboxStore struct {
	mu sync.RWMutex

	mailboxes map[uuid.UUID]*models.Mailbox // mailbox_id -> Mailbox
}

// NewMailboxStore creates a new in-memory mailbox store.
func NewMailboxStore() *MailboxStore {
	return &MailboxStore{
		mailboxes: make(map[uuid.UUID]*models.Mailbox),
	}
}

// Create creates a new mailbox owned by the scope's tenant. The owner
// columns always come from the scope, not from the model.
func (s *MailboxStore) Create(ctx context.Context, scope models.Scope, mailbox *models.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone and stamp ownership from the scope
	clone := *mailbox
	switch scope.Kind {
	case models.ScopeWorkspace:
		workspaceID := scope.WorkspaceID
		clone.WorkspaceID = &workspaceID
		clone.UserID = nil
	case models.ScopeAccount:
		accountID := scope.AccountID
		clone.UserID = &accountID
		clone.WorkspaceID = nil
	default:
		return store.ErrInvalidScope
	}

	if _, exists := s.mailboxes[mailbox.MailboxID]; exists {
		return store.ErrMailboxAlreadyExists
	}

	for _, existing := range s.mailboxes {
		if scope.Covers(existing) && existing.Address == mailbox.Address {
			return store.ErrMailboxAlreadyExists
		}
	}

	s.mailboxes[clone.MailboxID] = &clone

	// Reflect the stamped ownership back to the caller
	*mailbox = clone

	return nil
}

// Get retrieves a mailbox by ID within the scope. A mailbox owned by
// another tenant is indistinguishable from a missing one.
func (s *MailboxStore) Get(ctx context.Context, scope models.Scope, mailboxID uuid.UUID) (*models.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, exists := s.mailboxes[mailboxID]
	if !exists || !scope.Covers(mailbox) {
		return nil, store.ErrMailboxNotFound
	}

	// Clone to avoid external modifications
	clone := *mailbox
	return &clone, nil
}

// List returns all mailboxes owned by the scope's tenant, newest first.
func (s *MailboxStore) List(ctx context.Context, scope models.Scope) ([]*models.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Mailbox
	for _, mailbox := range s.mailboxes {
		if scope.Covers(mailbox) {
			clone := *mailbox
			result = append(result, &clone)
		}
	}

	slices.SortFunc(result, func(a, b *models.Mailbox) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return result, nil
}

// Delete removes a mailbox by ID within the scope.
func (s *MailboxStore) Delete(ctx context.Context, scope models.Scope, mailboxID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, exists := s.mailboxes[mailboxID]
	if !exists || !scope.Covers(mailbox) {
		return store.ErrMailboxNotFound
	}

	delete(s.mailboxes, mailboxID)

	return nil
}

// ForEachMailbox calls fn for every mailbox across all tenants. The store
// snapshots under the read lock first so fn may call back into the store.
func (s *MailboxStore) ForEachMailbox(ctx context.Context, fn func(*models.Mailbox) error) error {
	s.mu.RLock()
	snapshot := make([]*models.Mailbox, 0, len(s.mailboxes))
	for _, mailbox := range s.mailboxes {
		clone := *mailbox
		snapshot = append(snapshot, &clone)
	}
	s.mu.RUnlock()

	for _, mailbox := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(mailbox); err != nil {
			return err
		}
	}

	return nil
}

// UpdateMailboxSecrets replaces both stored secret columns for a mailbox.
func (s *MailboxStore) UpdateMailboxSecrets(ctx context.Context, mailboxID uuid.UUID, refreshToken, smtpPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, exists := s.mailboxes[mailboxID]
	if !exists {
		return store.ErrMailboxNotFound
	}

	clone := *mailbox
	clone.RefreshToken = refreshToken
	clone.SMTPPassword = smtpPassword
	clone.UpdatedAt = time.Now()
	s.mailboxes[mailboxID] = &clone

	return nil
}
