// Command metapipe runs a meta-analysis pipeline over clinical trial
// datasets: format checks, multi-arm expansion, effect-size calculation,
// pooled models, and an HTTP server for the results.
package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/metapipe/cmd/metapipe/commands"
	"git.home.luguber.info/inful/metapipe/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("metapipe"),
		kong.Description("Meta-analysis pipeline for clinical trial datasets."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)
	err := ctx.Run(&commands.Global{Logger: slog.Default()})
	ctx.FatalIfErrorf(err)
}
