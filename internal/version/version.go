package version

// Version contains the application version information.
// Set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/pagesmith/internal/version.Version=v0.4.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Generator is the value injected into the generator meta tag of previewed pages.
func Generator() string {
	if Version == "unknown" || Version == "" {
		return "pagesmith"
	}
	return "pagesmith " + Version
}
