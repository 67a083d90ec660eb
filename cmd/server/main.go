package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/mlop-ai/pluto/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"PLUTO_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServerCmd `cmd:"" default:"withargs" help:"Start the dashboard server (procedures, sign-in, proxy)"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("pluto-server"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
