package models

import (
	"time"

	"github.com/google/uuid"
)

// Mailbox providers.
const (
	ProviderGmail   = "gmail"   // Gmail via OAuth refresh token
	ProviderOutlook = "outlook" // Outlook/Microsoft 365 via OAuth refresh token
	ProviderSMTP    = "smtp"    // Plain SMTP with stored password
)

// Mailbox represents a connected email account the inbox polls and sends
// through. A mailbox is owned by exactly one tenant: either a workspace
// (team) or a user account (solo operator), never both. Secret fields
// (RefreshToken, SMTPPassword) hold the stored encoding, not plaintext;
// use the secrets codec to materialize them.
type Mailbox struct {
	MailboxID   uuid.UUID  // UUIDv7
	WorkspaceID *uuid.UUID // Owning workspace, nil for account-owned mailboxes
	UserID      *uuid.UUID // Owning account, nil for workspace-owned mailboxes
	Provider    string     // "gmail", "outlook", "smtp"
	Address     string     // Email address (e.g., "support@acme.test")
	DisplayName string     // From-name shown on outbound replies

	// OAuth providers
	RefreshToken string // Encoded, empty or empty-marker when not connected

	// SMTP provider
	SMTPHost     *string
	SMTPPort     *int32
	SMTPUsername *string
	SMTPPassword string // Encoded, empty or empty-marker when not set

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsesOAuth returns true for providers that authenticate with a stored
// OAuth refresh token rather than an SMTP password.
func (m *Mailbox) UsesOAuth() bool {
	return m.Provider == ProviderGmail || m.Provider == ProviderOutlook
}

// ValidProvider reports whether p names a supported mailbox provider.
func ValidProvider(p string) bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderSMTP:
		return true
	}
	return false
}
