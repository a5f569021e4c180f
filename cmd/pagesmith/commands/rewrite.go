package commands

import (
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/pagesmith/internal/model"
	"git.home.luguber.info/inful/pagesmith/internal/rewrite"
)

// RewriteCmd implements the 'rewrite' command: the save-time rewrite applied
// to a file, for inspecting what a stored page will look like.
type RewriteCmd struct {
	File    string   `arg:"" help:"HTML file to rewrite ('-' for stdin)"`
	Project string   `short:"p" required:"" help:"Project ID used in canonical URLs"`
	Page    string   `help:"Name of the page being rewritten" default:"index"`
	Pages   []string `help:"Planned page names, comma separated" sep:","`
	Output  string   `short:"o" help:"Write the result here instead of stdout"`
}

func (r *RewriteCmd) Run(g *Global, root *CLI) error {
	in, err := r.read()
	if err != nil {
		return err
	}

	assetPrefix := rewrite.DefaultAssetPrefix
	if cfg, cerr := loadConfig(root.Config, g.Logger); cerr == nil && cfg.Preview.AssetPrefix != "" {
		assetPrefix = cfg.Preview.AssetPrefix
	}
	pages := r.Pages
	if len(pages) == 0 {
		pages = []string{model.IndexPage}
	}

	rw := rewrite.New(rewrite.WithAssetPrefix(assetPrefix), rewrite.WithLogger(g.Logger))
	out, rep := rw.RewriteReport(string(in), r.Project, r.Page, pages)
	for rule, n := range rep.Hits {
		fmt.Fprintf(os.Stderr, "%-20s %d\n", rule, n)
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if r.Output == "" {
		_, err = io.WriteString(os.Stdout, out)
		return err
	}
	if err := os.WriteFile(r.Output, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", r.Output, err)
	}
	return nil
}

func (r *RewriteCmd) read() ([]byte, error) {
	if r.File == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(r.File)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.File, err)
	}
	return data, nil
}
