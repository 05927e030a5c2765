package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/secrets"
	"github.com/replydeck/replydeck/internal/store"
	postgresstore "github.com/replydeck/replydeck/internal/store/postgres"
)

// seedFixture is the YAML document the seed command loads. Secrets in the
// fixture are plaintext and get encrypted on the way in; a fixture that
// carries secrets without a passphrase configured is rejected rather than
// written as is.
type seedFixture struct {
	Workspaces []seedWorkspace `yaml:"workspaces"`
	Accounts   []seedAccount   `yaml:"accounts"`
	Mailboxes  []seedMailbox   `yaml:"mailboxes"`
}

type seedWorkspace struct {
	Name          string `yaml:"name"`
	ExternalOrgID string `yaml:"externalOrgId"`
}

type seedAccount struct {
	Email               string `yaml:"email"`
	ExternalPrincipalID string `yaml:"externalPrincipalId"`
}

type seedMailbox struct {
	Workspace    string `yaml:"workspace"` // owning workspace, by name
	Account      string `yaml:"account"`   // owning account, by email
	Provider     string `yaml:"provider"`
	Address      string `yaml:"address"`
	DisplayName  string `yaml:"displayName"`
	RefreshToken string `yaml:"refreshToken"`
	SMTPHost     string `yaml:"smtpHost"`
	SMTPPort     int32  `yaml:"smtpPort"`
	SMTPUsername string `yaml:"smtpUsername"`
	SMTPPassword string `yaml:"smtpPassword"`
}

type SeedCmd struct {
	File       string     `arg:"" help:"YAML fixture file to load"`
	Store      StoreFlags `embed:"" prefix:"postgres-"`
	Passphrase string     `help:"Passphrase used to encrypt fixture secrets" env:"REPLYDECK_SECRETS_PASSPHRASE"`
}

func (s *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals.Debug)

	data, err := os.ReadFile(s.File)
	if err != nil {
		return fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fixture seedFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("failed to parse fixture file: %w", err)
	}

	pool, err := s.Store.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	stores := seedStores{
		workspaces: postgresstore.NewWorkspaceStore(pool),
		accounts:   postgresstore.NewAccountStore(pool),
		mailboxes:  postgresstore.NewMailboxStore(pool),
	}
	codec := secrets.NewCodec(secrets.Config{Passphrase: s.Passphrase})

	result, err := loadFixture(ctx, stores, codec, &fixture)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %d workspaces, %d accounts and %d mailboxes from %s\n",
		result.workspaces, result.accounts, result.mailboxes, s.File)
	return nil
}

type seedStores struct {
	workspaces store.WorkspaceStore
	accounts   store.AccountStore
	mailboxes  store.MailboxStore
}

type seedResult struct {
	workspaces int
	accounts   int
	mailboxes  int
}

// loadFixture creates the fixture's tenants first, then the mailboxes that
// reference them. Mailboxes name their owner by workspace name or account
// email; the reference must point at a tenant defined in the same fixture.
func loadFixture(ctx context.Context, stores seedStores, codec *secrets.Codec, fixture *seedFixture) (*seedResult, error) {
	result := &seedResult{}

	workspaceIDs := make(map[string]uuid.UUID, len(fixture.Workspaces))
	for _, w := range fixture.Workspaces {
		if w.Name == "" {
			return result, fmt.Errorf("workspace fixture is missing a name")
		}
		id, err := uuid.NewV7()
		if err != nil {
			return result, fmt.Errorf("failed to generate workspace ID: %w", err)
		}
		workspace := &models.Workspace{
			WorkspaceID: id,
			Name:        w.Name,
		}
		if w.ExternalOrgID != "" {
			orgID := w.ExternalOrgID
			workspace.ExternalOrgID = &orgID
		}
		if err := stores.workspaces.Create(ctx, workspace); err != nil {
			return result, fmt.Errorf("failed to create workspace %q: %w", w.Name, err)
		}
		workspaceIDs[w.Name] = id
		result.workspaces++
	}

	accountIDs := make(map[string]uuid.UUID, len(fixture.Accounts))
	for _, a := range fixture.Accounts {
		if a.Email == "" || a.ExternalPrincipalID == "" {
			return result, fmt.Errorf("account fixture needs both an email and an externalPrincipalId")
		}
		id, err := uuid.NewV7()
		if err != nil {
			return result, fmt.Errorf("failed to generate account ID: %w", err)
		}
		account := &models.Account{
			AccountID:           id,
			Email:               a.Email,
			ExternalPrincipalID: a.ExternalPrincipalID,
		}
		if err := stores.accounts.Create(ctx, account); err != nil {
			return result, fmt.Errorf("failed to create account %q: %w", a.Email, err)
		}
		accountIDs[a.Email] = id
		result.accounts++
	}

	for _, m := range fixture.Mailboxes {
		scope, err := ownerScope(m, workspaceIDs, accountIDs)
		if err != nil {
			return result, err
		}
		mailbox, err := fixtureMailbox(codec, m)
		if err != nil {
			return result, err
		}
		if err := stores.mailboxes.Create(ctx, scope, mailbox); err != nil {
			return result, fmt.Errorf("failed to create mailbox %q: %w", m.Address, err)
		}
		result.mailboxes++
	}

	return result, nil
}

// ownerScope resolves a mailbox fixture's owner reference to a tenant scope.
func ownerScope(m seedMailbox, workspaceIDs, accountIDs map[string]uuid.UUID) (models.Scope, error) {
	switch {
	case m.Workspace != "" && m.Account != "":
		return models.Scope{}, fmt.Errorf("mailbox %q names both a workspace and an account owner", m.Address)
	case m.Workspace != "":
		id, ok := workspaceIDs[m.Workspace]
		if !ok {
			return models.Scope{}, fmt.Errorf("mailbox %q references unknown workspace %q", m.Address, m.Workspace)
		}
		return models.WorkspaceScope(id), nil
	case m.Account != "":
		id, ok := accountIDs[m.Account]
		if !ok {
			return models.Scope{}, fmt.Errorf("mailbox %q references unknown account %q", m.Address, m.Account)
		}
		return models.AccountScope(id), nil
	default:
		return models.Scope{}, fmt.Errorf("mailbox %q has no owner", m.Address)
	}
}

// fixtureMailbox builds the mailbox model, encrypting any plaintext secrets
// and applying the same SMTP defaults the API applies on create.
func fixtureMailbox(codec *secrets.Codec, m seedMailbox) (*models.Mailbox, error) {
	if !models.ValidProvider(m.Provider) {
		return nil, fmt.Errorf("mailbox %q has unsupported provider %q", m.Address, m.Provider)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mailbox ID: %w", err)
	}

	mailbox := &models.Mailbox{
		MailboxID:   id,
		Provider:    m.Provider,
		Address:     m.Address,
		DisplayName: m.DisplayName,
	}

	if m.RefreshToken != "" {
		encoded, err := codec.Encode(m.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encode refresh token for %q: %w", m.Address, err)
		}
		mailbox.RefreshToken = encoded
	}

	if m.Provider == models.ProviderSMTP {
		if m.SMTPHost == "" {
			return nil, fmt.Errorf("mailbox %q is missing an SMTP host", m.Address)
		}
		host := m.SMTPHost
		mailbox.SMTPHost = &host

		port := m.SMTPPort
		if port == 0 {
			port = 587
		}
		mailbox.SMTPPort = &port

		username := m.SMTPUsername
		if username == "" {
			username = m.Address
		}
		mailbox.SMTPUsername = &username

		if m.SMTPPassword != "" {
			encoded, err := codec.Encode(m.SMTPPassword)
			if err != nil {
				return nil, fmt.Errorf("failed to encode SMTP password for %q: %w", m.Address, err)
			}
			mailbox.SMTPPassword = encoded
		}
	}

	return mailbox, nil
}
