package commands

import (
	"fmt"
	"runtime"

	"git.home.luguber.info/inful/pagesmith/internal/version"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Printf("pagesmith %s\n", version.Version)
	fmt.Printf("  commit:  %s\n", version.GitCommit)
	fmt.Printf("  built:   %s\n", version.BuildTime)
	fmt.Printf("  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
