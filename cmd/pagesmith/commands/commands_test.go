package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesmith/internal/config"
)

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesmith.yaml")
	require.NoError(t, RunInit(path, false))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Addr, cfg.Server.Addr)

	require.Error(t, RunInit(path, false), "existing file is kept without --force")
	require.NoError(t, RunInit(path, true))
}

func TestRewriteCmd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.html")
	out := filepath.Join(dir, "out.html")
	require.NoError(t, os.WriteFile(in, []byte(`<a href="about.html">About</a><a href="index.html">Home</a>`), 0o644))

	cmd := &RewriteCmd{File: in, Project: "p1", Page: "index", Pages: []string{"index", "about"}, Output: out}
	root := &CLI{Config: filepath.Join(dir, "missing.yaml")}
	require.NoError(t, cmd.Run(&Global{Logger: slog.Default()}, root))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `href="/preview/p1/about"`)
	assert.Contains(t, string(data), `href="/preview/p1"`)
}

func TestRewriteCmd_MissingFile(t *testing.T) {
	cmd := &RewriteCmd{File: filepath.Join(t.TempDir(), "nope.html"), Project: "p1"}
	err := cmd.Run(&Global{Logger: slog.Default()}, &CLI{Config: "missing.yaml"})
	require.Error(t, err)
}
