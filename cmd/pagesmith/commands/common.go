// Package commands implements the pagesmith command line.
package commands

import (
	"log/slog"
	"os"

	"git.home.luguber.info/inful/pagesmith/internal/config"
)

// Global carries state shared by subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"pagesmith.yaml" env:"PAGESMITH_CONFIG"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the generation and preview server"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Rewrite RewriteCmd `cmd:"" help:"Rewrite references in an HTML file the way saves do"`
	Version VersionCmd `cmd:"" help:"Print version and build information"`
}

// AfterApply sets up a bootstrap logger; serve replaces it once the
// configuration is loaded.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("Configuration file not found, using defaults", slog.String("path", path))
		return config.Parse(nil)
	}
	return config.Load(path)
}
