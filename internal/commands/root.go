package commands

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/balkashynov/wotrack/internal/config"
	"github.com/balkashynov/wotrack/internal/db"
	"github.com/balkashynov/wotrack/internal/filestore"
	"github.com/balkashynov/wotrack/internal/logging"
	"github.com/balkashynov/wotrack/internal/mirror"
	"github.com/balkashynov/wotrack/internal/pgstore"
	"github.com/balkashynov/wotrack/internal/workorder"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// skipSetup marks commands that run without a store
const skipSetup = "wotrack/skip-setup"

var (
	configPath string
	verbose    bool

	// set up in PersistentPreRunE
	cfg     *config.Config
	logger  = zap.NewNop()
	store   workorder.Store
	service *workorder.Service
)

var rootCmd = &cobra.Command{
	Use:   "wotrack",
	Short: "Elapsed-time tracker for production work orders",
	Long: `wotrack tracks how long each process of a production work order takes.
Start, pause and stop a stopwatch per process, finalize the order when it is
done and report total and per-piece times.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if needsNoSetup(cmd) {
			return nil
		}
		return setup(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func needsNoSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipSetup] == "true" {
			return true
		}
	}
	return false
}

// setup loads the config and opens the configured store
func setup(ctx context.Context) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger, err = logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Verbose: verbose,
	})
	if err != nil {
		return err
	}

	store, err = openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Debug("Store opened", zap.String("backend", cfg.Storage.Backend))

	service = workorder.NewService(store, cfg.Processes, clockwork.NewRealClock(), logger)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (workorder.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendCSV, config.BackendJSON:
		open := filestore.OpenCSV
		if cfg.Storage.Backend == config.BackendJSON {
			open = filestore.OpenJSON
		}
		local, err := open(cfg.Storage.Dir, logger)
		if err != nil {
			return nil, err
		}
		if !cfg.MirrorEnabled() {
			return local, nil
		}
		client := mirror.NewClient(nil, mirror.ClientConfig{
			APIBase: cfg.Remote.APIBase,
			Repo:    cfg.Remote.Repo,
			Branch:  cfg.Remote.Branch,
			Token:   cfg.Remote.Token,
			Dir:     cfg.Remote.Dir,
		})
		return mirror.New(local, client, clockwork.NewRealClock(), logger), nil

	case config.BackendPostgres:
		pg := cfg.Storage.Postgres
		s, err := pgstore.Open(ctx, pgstore.ConnParam{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			DBName:   pg.DBName,
			SSLMode:  pg.SSLMode,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		s, err := db.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func teardown() {
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
		store = nil
	}
	_ = logger.Sync()
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipSetup: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wotrack %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.wotrack/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.SetHelpCommand(helpCmd)
	rootCmd.AddCommand(versionCmd)
}
