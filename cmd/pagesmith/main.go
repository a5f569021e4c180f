package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagesmith/cmd/pagesmith/commands"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Logger: slog.Default()}
	ctx := kong.Parse(cli,
		kong.Name("pagesmith"),
		kong.Description("Generate websites from prompts and serve their previews."),
		kong.UsageOnError(),
		kong.Bind(global),
	)
	if err := ctx.Run(global, cli); err != nil {
		global.Logger.Error("Command failed", slog.String("command", ctx.Command()), slog.Any("error", err))
		os.Exit(1)
	}
}
