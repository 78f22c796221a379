package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/noah-isme/attendance-ledger-api/cmd/attendancectl/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Sweep   commands.SweepCmd  `cmd:"" help:"Deactivate expired sessions"`
		Report  commands.ReportCmd `cmd:"" help:"Render a presence report"`
		Verify  commands.VerifyCmd `cmd:"" help:"Decode the stores and report corruption without writing"`
		Import  commands.ImportCmd `cmd:"" help:"Load the legacy attendance sheet into the ledger"`
		Debug   bool               `help:"Enable debug logging."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("attendancectl"),
		kong.Description("Operator tooling for the attendance ledger."),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Out: os.Stdout})
	cmd.FatalIfErrorf(err)
}
