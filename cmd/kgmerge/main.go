package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sydlexius/kgmerge/internal/catalog"
	"github.com/sydlexius/kgmerge/internal/config"
	"github.com/sydlexius/kgmerge/internal/database"
	"github.com/sydlexius/kgmerge/internal/event"
	"github.com/sydlexius/kgmerge/internal/fetch"
	"github.com/sydlexius/kgmerge/internal/history"
	"github.com/sydlexius/kgmerge/internal/logging"
	"github.com/sydlexius/kgmerge/internal/merge"
	"github.com/sydlexius/kgmerge/internal/metrics"
	"github.com/sydlexius/kgmerge/internal/sparql"
	"github.com/sydlexius/kgmerge/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}

// app carries the state shared by every subcommand. Config and logging are
// set up before any command runs; the event bus, history, and metrics only
// for commands that fetch or merge.
type app struct {
	configPath string
	outputDir  string
	logLevel   string

	cfg     *config.Config
	logMgr  *logging.Manager
	logger  *slog.Logger
	catalog *catalog.Registry

	bus     *event.Bus
	metrics *metrics.Metrics
	db      *sql.DB
	history *history.Store
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "kgmerge",
		Short:         "Fetch knowledge-graph query results and merge them per entity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $KG_CONFIG_PATH)")
	root.PersistentFlags().StringVarP(&a.outputDir, "output", "o", "", "output directory (default \"data\")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(getCmd(a, "get", ""))
	root.AddCommand(getCmd(a, "wikidata_get", sparql.Wikidata))
	root.AddCommand(getCmd(a, "dbpedia_get", sparql.DBpedia))
	root.AddCommand(getAllCmd(a))
	root.AddCommand(mergeCmd(a))
	root.AddCommand(watchCmd(a))
	root.AddCommand(historyCmd(a))
	root.AddCommand(catalogCmd(a))
	root.AddCommand(versionCmd())
	return root
}

// init loads configuration, applies flag overrides, and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Dir = a.outputDir
	}
	if a.logLevel != "" && !logging.ValidLevel(a.logLevel) {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	a.cfg = cfg

	a.logMgr, a.logger = logging.NewManager(cfg.Logging)
	if a.logLevel != "" {
		a.logMgr.SetLevel(a.logLevel)
	}
	slog.SetDefault(a.logger)
	a.catalog = catalog.Default()

	a.logger.Debug("kgmerge starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("output", cfg.Output.Dir),
		slog.String("logging", cfg.Logging.String()),
		slog.String("level", a.logMgr.Level()))
	return nil
}

// startRuntime wires the event bus to metrics and, when enabled, history.
func (a *app) startRuntime(ctx context.Context) error {
	a.bus = event.NewBus(a.logger, 256)
	a.metrics = metrics.New()
	a.metrics.Subscribe(a.bus)

	if a.cfg.History.Enabled {
		if err := a.openHistory(ctx); err != nil {
			return err
		}
		a.history.Subscribe(a.bus)
	}

	a.bus.Start()
	return nil
}

func (a *app) openHistory(ctx context.Context) error {
	db, err := database.Open(ctx, a.cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	a.db = db
	a.history = history.NewStore(db, a.logger)
	return nil
}

func (a *app) fetcher() *fetch.Fetcher {
	client := sparql.NewClient(
		a.cfg.EndpointRegistry(),
		sparql.NewRateLimiterMap(a.cfg.Fetch.Delay),
		sparql.ClientOptions{Timeout: a.cfg.Fetch.Timeout, UserAgent: a.cfg.Fetch.UserAgent},
		a.logger)
	return fetch.New(client, a.catalog, a.bus, fetch.Options{
		OutputDir:   a.cfg.Output.Dir,
		MaxFailures: a.cfg.Fetch.Breaker.MaxFailures,
		Cooldown:    a.cfg.Fetch.Breaker.Cooldown,
	}, a.logger)
}

func (a *app) merger(strict bool) *merge.Merger {
	return merge.New(a.catalog, a.bus, merge.Options{
		OutputDir: a.cfg.Output.Dir,
		Workers:   a.cfg.Merge.Workers,
		Strict:    strict,
	}, a.logger)
}

// close drains pending events into history before closing the database,
// then exports metrics.
func (a *app) close() {
	var errs []error
	if a.bus != nil {
		a.bus.Close()
	}
	if a.metrics != nil && a.cfg != nil {
		errs = append(errs, a.metrics.WriteTextfile(a.cfg.Metrics.Textfile))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Error("shutdown", "error", err)
	}
	if a.logMgr != nil {
		_ = a.logMgr.Close()
	}
}
