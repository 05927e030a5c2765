// Package commands implements the replydeck-admin subcommands. They run
// maintenance directly against the database, outside the API server and its
// per-request tenant scoping, so none of them should ever be reachable from
// a request path.
package commands

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	postgresstore "github.com/replydeck/replydeck/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

// setupLogger points the global logger at a console writer for the duration
// of the command run.
func setupLogger(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).Level(level).With().Timestamp().Logger()
}

// StoreFlags carries the PostgreSQL connection settings shared by the admin
// commands. Unlike the server there is no in-memory alternative here: admin
// maintenance only makes sense against the real database.
type StoreFlags struct {
	ConnString  string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING" required:""`
	AutoMigrate bool   `help:"Run database migrations before the command" default:"false" env:"REPLYDECK_POSTGRES_AUTO_MIGRATE"`
}

// Connect opens a connection pool sized for a one-shot maintenance run.
func (f *StoreFlags) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	return postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:  f.ConnString,
		MaxConns:    5,
		MinConns:    1,
		AutoMigrate: f.AutoMigrate,
	})
}
