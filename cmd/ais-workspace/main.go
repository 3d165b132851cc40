package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/aisgo/ais-workspace/cmd/ais-workspace/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Config      string                  `help:"Directory containing workspace.yaml." default:"configs" env:"WORKSPACE_CONFIG_DIR"`
		Version     kong.VersionFlag        `help:"Print version and exit."`
		Serve       commands.ServeCmd       `cmd:"" default:"withargs" help:"Start the HTTP API (default)."`
		Migrate     commands.MigrateCmd     `cmd:"" help:"Create or update database tables."`
		SignHeaders commands.SignHeadersCmd `cmd:"" name:"sign-headers" help:"Print signed identity headers for local testing."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("ais-workspace"),
		kong.Description("Workspace-scoped data access service."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{ConfigDir: cli.Config, Version: version})
	cmd.FatalIfErrorf(err)
}
