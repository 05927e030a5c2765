package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"

	"github.com/replydeck/replydeck/internal/auth"
	"github.com/replydeck/replydeck/internal/logger"
	"github.com/replydeck/replydeck/internal/secrets"
	"github.com/replydeck/replydeck/internal/server"
	"github.com/replydeck/replydeck/internal/store"
	memorystore "github.com/replydeck/replydeck/internal/store/memory"
	postgresstore "github.com/replydeck/replydeck/internal/store/postgres"
	"github.com/replydeck/replydeck/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"REPLYDECK_LISTEN"`
	Cert   string `help:"path to TLS cert file, serve plain HTTP when empty" default:"" env:"REPLYDECK_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"REPLYDECK_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"REPLYDECK_CORS_ORIGINS"`

	// Identity provider configuration
	AuthPublicKeyFile string `help:"path to the identity provider's PEM-encoded ES256 public key" env:"REPLYDECK_AUTH_PUBLIC_KEY_FILE" required:""`
	AuthIssuer        string `help:"expected issuer of identity provider tokens" env:"REPLYDECK_AUTH_ISSUER" required:""`

	// Secrets configuration
	SecretsPassphrase string `help:"passphrase deriving the mailbox secrets key" env:"REPLYDECK_SECRETS_PASSPHRASE"`

	// Development and operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"REPLYDECK_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"REPLYDECK_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns            int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns            int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime     int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime     int32 `help:"maximum connection idle time in seconds" default:"1800"`
	ConnectRetryTimeout int32 `help:"how long to retry the initial connection in seconds" default:"60"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"REPLYDECK_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "replydeck-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Secret codec for mailbox credentials. The server encodes on mailbox
	// create and decodes on credential reads, so running without the
	// passphrase is a misconfiguration, not a degraded mode.
	codec := secrets.NewCodec(secrets.Config{Passphrase: c.SecretsPassphrase})
	if !codec.HasKey() {
		return errors.New("secrets passphrase is required (--secrets-passphrase or REPLYDECK_SECRETS_PASSPHRASE)")
	}

	// Create stores based on store type
	var (
		workspaceStore store.WorkspaceStore
		accountStore   store.AccountStore
		mailboxStore   store.MailboxStore
	)

	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return err
		}

		// Shared connection pool for all PostgreSQL stores
		poolCfg := &postgresstore.PoolConfig{
			ConnString:          c.PostgresStore.ConnString,
			MaxConns:            c.PostgresStore.MaxConns,
			MinConns:            c.PostgresStore.MinConns,
			MaxConnLifetime:     c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime:     c.PostgresStore.MaxConnIdleTime,
			ConnectRetryTimeout: c.PostgresStore.ConnectRetryTimeout,
			AutoMigrate:         c.PostgresStore.AutoMigrate,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		workspaceStore = postgresstore.NewWorkspaceStore(pool)
		accountStore = postgresstore.NewAccountStore(pool)
		mailboxStore = postgresstore.NewMailboxStore(pool)

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		workspaceStore = memorystore.NewWorkspaceStore()
		accountStore = memorystore.NewAccountStore()
		mailboxStore = memorystore.NewMailboxStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Token verifier for the identity provider
	publicKeyPEM, err := os.ReadFile(c.AuthPublicKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read auth public key: %w", err)
	}
	verifier, err := auth.NewVerifier(string(publicKeyPEM), c.AuthIssuer)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	srv := server.NewServer(workspaceStore, accountStore, mailboxStore, codec, verifier)
	handler := withCORS(c.CORSOrigins, telemetry.HTTPMiddleware("replydeck-server")(srv.Handler(log)))

	if c.Cert != "" || c.Key != "" {
		if _, err := os.Stat(c.Cert); err != nil {
			return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
		}
		if _, err := os.Stat(c.Key); err != nil {
			return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
		}

		log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
		return configureHTTPServer(c.Listen, handler).ListenAndServeTLS(c.Cert, c.Key)
	}

	log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
	return configureHTTPServer(c.Listen, handler).ListenAndServe()
}

// withCORS adds CORS support for browser clients of the API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return middleware.Handler(h)
}
