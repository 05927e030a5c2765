package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/replydeck/replydeck/internal/models"
	"github.com/replydeck/replydeck/internal/secrets"
	"github.com/replydeck/replydeck/internal/store"
	postgresstore "github.com/replydeck/replydeck/internal/store/postgres"
)

type SecretsCmd struct {
	Audit  AuditCmd  `cmd:"" help:"Count stored secret encodings by column and format"`
	Rotate RotateCmd `cmd:"" help:"Re-encode legacy stored secrets into the canonical encrypted format"`
}

type AuditCmd struct {
	Store StoreFlags `embed:"" prefix:"postgres-"`
}

func (a *AuditCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals.Debug)

	pool, err := a.Store.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	report, err := auditSecrets(ctx, postgresstore.NewMailboxStore(pool))
	if err != nil {
		return fmt.Errorf("failed to audit secrets: %w", err)
	}

	printAuditReport(report)
	return nil
}

type RotateCmd struct {
	Store      StoreFlags `embed:"" prefix:"postgres-"`
	Passphrase string     `help:"Passphrase stored secrets are encrypted under" env:"REPLYDECK_SECRETS_PASSPHRASE" required:""`
	DryRun     bool       `help:"Report what would change without writing" default:"false"`
}

func (r *RotateCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals.Debug)

	codec := secrets.NewCodec(secrets.Config{Passphrase: r.Passphrase})

	pool, err := r.Store.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	result, err := rotateSecrets(ctx, postgresstore.NewMailboxStore(pool), codec, r.DryRun)
	if err != nil {
		return fmt.Errorf("failed to rotate secrets: %w", err)
	}

	printRotateResult(result, r.DryRun)
	return nil
}

// secretColumns names the mailbox columns that carry stored secrets, in
// report order.
var secretColumns = []string{"refresh_token", "smtp_password"}

// auditFormats fixes the report order of the stored encodings.
var auditFormats = []secrets.Format{
	secrets.FormatEmpty,
	secrets.FormatHexEnvelope,
	secrets.FormatEncrypted,
	secrets.FormatBase64,
	secrets.FormatPlaintext,
}

// auditReport counts stored secret encodings per column and format.
type auditReport struct {
	Mailboxes int
	Counts    map[string]map[secrets.Format]int
}

// auditSecrets classifies every stored secret in the mailboxes table. It
// never needs the passphrase: classification looks at the stored shape, not
// the contents.
func auditSecrets(ctx context.Context, mailboxes store.MailboxMaintenanceStore) (*auditReport, error) {
	report := &auditReport{
		Counts: map[string]map[secrets.Format]int{
			"refresh_token": {},
			"smtp_password": {},
		},
	}

	err := mailboxes.ForEachMailbox(ctx, func(m *models.Mailbox) error {
		report.Mailboxes++
		report.Counts["refresh_token"][secrets.Classify(m.RefreshToken)]++
		report.Counts["smtp_password"][secrets.Classify(m.SMTPPassword)]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

func printAuditReport(report *auditReport) {
	fmt.Printf("Stored secret formats across %d mailboxes:\n\n", report.Mailboxes)

	fmt.Printf("%-15s %-14s %8s\n", "Column", "Format", "Count")
	fmt.Println(strings.Repeat("─", 39))

	for _, column := range secretColumns {
		for _, format := range auditFormats {
			count := report.Counts[column][format]
			if count == 0 {
				continue
			}
			fmt.Printf("%-15s %-14s %8d\n", column, string(format), count)
		}
	}
}

// rotateResult summarises one rotation pass.
type rotateResult struct {
	Scanned   int // mailboxes visited
	Updated   int // mailboxes rewritten (or that would be, on a dry run)
	Reencoded int // secret values converted to the canonical format
	Skipped   int // values already canonical or empty
	Corrupt   int // values left alone because they failed to decode
}

type secretUpdate struct {
	mailboxID    uuid.UUID
	refreshToken string
	smtpPassword string
}

// rotateSecrets re-encodes every legacy stored secret (plaintext, bare
// base64 or hex envelope) into the canonical encrypted format. Values that
// are already canonical, empty, or too corrupt to decode are left alone.
// Updates are applied only after the scan completes, so a scan error never
// leaves a half-written run.
func rotateSecrets(ctx context.Context, mailboxes store.MailboxMaintenanceStore, codec *secrets.Codec, dryRun bool) (*rotateResult, error) {
	if !codec.HasKey() {
		return nil, secrets.ErrKeyUnavailable
	}

	result := &rotateResult{}
	var updates []secretUpdate

	err := mailboxes.ForEachMailbox(ctx, func(m *models.Mailbox) error {
		result.Scanned++

		refreshToken, tokenChanged, err := rotateValue(codec, m.RefreshToken, "refresh_token", m.MailboxID, result)
		if err != nil {
			return err
		}
		smtpPassword, passwordChanged, err := rotateValue(codec, m.SMTPPassword, "smtp_password", m.MailboxID, result)
		if err != nil {
			return err
		}

		if tokenChanged || passwordChanged {
			updates = append(updates, secretUpdate{
				mailboxID:    m.MailboxID,
				refreshToken: refreshToken,
				smtpPassword: smtpPassword,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Updated = len(updates)
	if dryRun {
		return result, nil
	}

	for _, u := range updates {
		if err := mailboxes.UpdateMailboxSecrets(ctx, u.mailboxID, u.refreshToken, u.smtpPassword); err != nil {
			return result, fmt.Errorf("failed to update mailbox %s: %w", u.mailboxID, err)
		}
		log.Info().
			Str("mailbox_id", u.mailboxID.String()).
			Msg("Rotated mailbox secrets")
	}

	return result, nil
}

// rotateValue re-encodes one stored secret. It returns the replacement value
// and whether it changed.
func rotateValue(codec *secrets.Codec, stored string, column string, mailboxID uuid.UUID, result *rotateResult) (string, bool, error) {
	switch secrets.Classify(stored) {
	case secrets.FormatEmpty, secrets.FormatEncrypted:
		result.Skipped++
		return stored, false, nil
	}

	plaintext, ok, err := codec.Decode(stored)
	if err != nil {
		return "", false, err
	}
	if !ok {
		result.Corrupt++
		log.Warn().
			Str("mailbox_id", mailboxID.String()).
			Str("column", column).
			Str("fingerprint", secrets.Fingerprint(stored)).
			Msg("Stored secret is corrupt, leaving it as is")
		return stored, false, nil
	}

	encoded, err := codec.Encode(plaintext)
	if err != nil {
		return "", false, err
	}
	result.Reencoded++
	return encoded, true, nil
}

func printRotateResult(result *rotateResult, dryRun bool) {
	if dryRun {
		fmt.Println("Dry run, no rows were written.")
	}
	fmt.Printf("Mailboxes scanned:   %d\n", result.Scanned)
	fmt.Printf("Values re-encoded:   %d\n", result.Reencoded)
	fmt.Printf("Mailboxes updated:   %d\n", result.Updated)
	fmt.Printf("Values skipped:      %d\n", result.Skipped)
	fmt.Printf("Corrupt values kept: %d\n", result.Corrupt)
}
