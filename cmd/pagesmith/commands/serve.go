package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/journal"
	"git.home.luguber.info/inful/pagesmith/internal/llm"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/notify"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
	"git.home.luguber.info/inful/pagesmith/internal/plan"
	"git.home.luguber.info/inful/pagesmith/internal/preview"
	"git.home.luguber.info/inful/pagesmith/internal/prompts"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/rewrite"
	"git.home.luguber.info/inful/pagesmith/internal/server"
	"git.home.luguber.info/inful/pagesmith/internal/site"
	"git.home.luguber.info/inful/pagesmith/internal/store"
	"git.home.luguber.info/inful/pagesmith/internal/version"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, g.Logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	if root.Verbose {
		cfg.Logging.Level = string(config.LogLevelDebug)
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunServer(ctx, cfg, logger)
}

// RunServer wires every component from cfg and serves until ctx is done.
func RunServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting pagesmith",
		slog.String("version", version.Version),
		logfields.Provider(string(cfg.Generation.Provider)),
		logfields.Model(cfg.Generation.Model),
		slog.String("storage", string(cfg.Storage.Driver)))

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewPrometheusRecorder(reg)
	}

	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "store", st.Close)

	client, err := llm.New(cfg.Generation, cfg.Breaker, logger)
	if err != nil {
		return fmt.Errorf("generation client: %w", err)
	}

	set, err := prompts.NewSet(cfg.Prompts.Dir)
	if err != nil {
		return err
	}
	if cfg.Prompts.Dir != "" && cfg.Prompts.Watch {
		w, werr := prompts.NewWatcher(set, logger)
		if werr != nil {
			return werr
		}
		if werr := w.Start(ctx); werr != nil {
			return werr
		}
		defer closeLogged(logger, "prompt watcher", w.Stop)
	}

	var jrnl journal.Journal = journal.Noop{}
	if cfg.Journal.Enabled {
		sj, jerr := journal.NewSQLite(cfg.Journal.Path)
		if jerr != nil {
			return jerr
		}
		defer closeLogged(logger, "journal", sj.Close)
		jrnl = sj

		janitor, jerr := journal.NewJanitor(sj, cfg.Journal.Retention, cfg.Journal.PruneInterval, logger)
		if jerr != nil {
			return jerr
		}
		janitor.Start()
		defer closeLogged(logger, "journal janitor", janitor.Stop)
	}

	var publisher notify.Publisher = notify.Noop{}
	if cfg.Notify.Enabled {
		np, nerr := notify.NewNATSPublisher(ctx, cfg.Notify, logger)
		if nerr != nil {
			return nerr
		}
		defer closeLogged(logger, "notify", np.Close)
		publisher = np
	}

	rewriter := rewrite.New(
		rewrite.WithAssetPrefix(cfg.Preview.AssetPrefix),
		rewrite.WithLogger(logger),
		rewrite.WithRecorder(recorder))
	sites := site.NewManager(st,
		site.WithRewriter(rewriter),
		site.WithPublisher(publisher),
		site.WithLogger(logger))
	resolverOpts := []preview.Option{preview.WithRewriter(rewriter), preview.WithLogger(logger)}
	if cfg.Preview.ContentPolicy != "" {
		resolverOpts = append(resolverOpts, preview.WithContentPolicy(cfg.Preview.ContentPolicy))
	}
	resolver := preview.NewResolver(st, resolverOpts...)

	policy := retry.FromConfig(cfg.Retry)
	planningModel := cfg.Generation.PlanningModel
	if planningModel == "" {
		planningModel = cfg.Generation.Model
	}
	planner := plan.NewPlanner(client, set, planningModel,
		plan.WithLogger(logger),
		plan.WithRecorder(recorder),
		plan.WithRetryPolicy(policy))
	controller := pipeline.New(client, planner, set, sites, cfg.Generation,
		pipeline.WithRetryPolicy(policy),
		pipeline.WithJournal(jrnl),
		pipeline.WithRecorder(recorder),
		pipeline.WithLogger(logger))
	defer controller.Wait()

	deps := server.Deps{
		Generator: controller,
		Sites:     sites,
		Preview:   resolver,
		Journal:   jrnl,
		Recorder:  recorder,
		Logger:    logger,
	}
	if b, ok := client.(*llm.Breaker); ok {
		deps.Circuit = b
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = reg
		deps.MetricsPath = cfg.Metrics.Path
	}
	if err := server.New(cfg.Server, deps).Start(ctx); err != nil {
		return err
	}
	logger.Info("pagesmith stopped")
	return nil
}

func closeLogged(logger *slog.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("Shutdown step failed", slog.String("component", what), logfields.Error(err))
	}
}
