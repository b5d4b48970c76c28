package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/neuroflow/cmd/neuroflow/commands"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("neuroflow"),
		kong.Description("Incremental diffusion MRI processing pipeline"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := ctx.Run(&commands.Global{Logger: slog.Default(), Stdout: os.Stdout}, &cli)
	ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
