package config

import (
	"os"
	"time"
)

// Default values shared by Load and Init.
const (
	DefaultAddr            = ":8080"
	DefaultStreamKeepAlive = 10 * time.Second
	DefaultAssetPrefix     = "local-assets/"
	DefaultMetricsPath     = "/metrics"
	DefaultNotifySubject   = "pagesmith.pages.saved"
	DefaultSQLitePath      = "pagesmith.db"
	DefaultJournalPath     = "pagesmith-journal.db"
)

// Default returns a fully populated configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 15 * time.Second
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = 60 * time.Second
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
	if s.StreamKeepAlive == 0 {
		s.StreamKeepAlive = DefaultStreamKeepAlive
	}

	g := &cfg.Generation
	if g.Provider == "" {
		g.Provider = ProviderAnthropic
	}
	if g.Model == "" {
		switch g.Provider {
		case ProviderOpenAI:
			g.Model = "gpt-4o"
		default:
			g.Model = "claude-sonnet-4-20250514"
		}
	}
	if g.PlanningModel == "" {
		g.PlanningModel = g.Model
	}
	if g.APIKey == "" {
		switch g.Provider {
		case ProviderOpenAI:
			g.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			g.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if g.Temperature == 0 {
		g.Temperature = 0.7
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 8000
	}
	if g.RequestTimeout == 0 {
		g.RequestTimeout = 5 * time.Minute
	}
	b := &g.Budgets
	if b.Needs == 0 {
		b.Needs = 1500
	}
	if b.Architecture == 0 {
		b.Architecture = 2000
	}
	if b.Component == 0 {
		b.Component = 1200
	}
	if b.Assembly == 0 {
		b.Assembly = 8000
	}

	r := &cfg.Retry
	if r.Mode == "" {
		r.Mode = RetryBackoffLinear
	}
	if r.Initial == 0 {
		r.Initial = time.Second
	}
	if r.Max == 0 {
		r.Max = 10 * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}

	br := &cfg.Breaker
	if br.MaxFailures == 0 {
		br.MaxFailures = 5
	}
	if br.OpenTimeout == 0 {
		br.OpenTimeout = 30 * time.Second
	}
	if br.Interval == 0 {
		br.Interval = time.Minute
	}

	st := &cfg.Storage
	if st.Driver == "" {
		st.Driver = StorageSQLite
	}
	if st.Driver == StorageSQLite && st.Path == "" {
		st.Path = DefaultSQLitePath
	}
	if st.Driver == StorageMongo && st.MongoDatabase == "" {
		st.MongoDatabase = "pagesmith"
	}

	j := &cfg.Journal
	if j.Path == "" {
		j.Path = DefaultJournalPath
	}
	if j.Retention == 0 {
		j.Retention = 7 * 24 * time.Hour
	}
	if j.PruneInterval == 0 {
		j.PruneInterval = time.Hour
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = string(LogLevelInfo)
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = string(LogFormatText)
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Preview.AssetPrefix == "" {
		cfg.Preview.AssetPrefix = DefaultAssetPrefix
	}
}
