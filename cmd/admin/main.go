package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/replydeck/replydeck/cmd/admin/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Secrets commands.SecretsCmd `cmd:"" help:"Audit and rotate stored mailbox secrets"`
		Seed    commands.SeedCmd    `cmd:"" help:"Load workspaces, accounts and mailboxes from a fixture file"`
		Debug   bool                `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
