package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/backfill"
	"github.com/pable/go-match-sync/internal/cache"
	"github.com/pable/go-match-sync/internal/config"
	"github.com/pable/go-match-sync/internal/logging"
	"github.com/pable/go-match-sync/internal/materialize"
	"github.com/pable/go-match-sync/internal/statsapi"
	"github.com/pable/go-match-sync/internal/storage"
)

// Persistent flags.
var (
	configPath string
	dataDir    string
	logMode    string
	jsonOutput bool
)

// Loaded once by the root command before any subcommand runs.
var (
	cfg    config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "matchsync",
	Short: "Incremental match stats sync and analytics backfill",
	Long: `Sync a player's match history from the stats service into a local
SQLite store and backfill derived analytics (killer/victim pairs, play
sessions, performance scores) without refetching what is already stored.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(signalContext()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ~/.matchsync/config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding one SQLite store per player (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "quiet", "log output: dev, quiet or prod")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON instead of tables")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(pairsCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(dropCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logger, err = logging.New(logMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

func openStore(playerID string) (*storage.DB, error) {
	db, err := storage.OpenPlayer(cfg.DataDir, playerID)
	if err != nil {
		return nil, fmt.Errorf("open store for %s: %w", playerID, err)
	}
	return db, nil
}

// newAPI builds the fetch chain: HTTP client, payload cache, retries. The
// returned closer releases the cache connection.
func newAPI() (*statsapi.Retrying, io.Closer, error) {
	if cfg.API.Key == "" {
		return nil, nil, fmt.Errorf("no API key: set %s or api.key in the config file", config.EnvAPIKey)
	}
	client := statsapi.NewClient(cfg.API.BaseURL, cfg.API.Key, cfg.API.Timeout)

	var fetcher statsapi.Fetcher = client
	var closer io.Closer = nopCloser{}
	if !cfg.Cache.Disabled {
		var store cache.Store
		if cfg.Cache.RedisURL != "" {
			r, err := cache.NewRedis(cfg.Cache.RedisURL, cfg.Cache.Prefix)
			if err != nil {
				return nil, nil, fmt.Errorf("connect redis: %w", err)
			}
			store, closer = r, r
		} else {
			store = cache.NewMemory()
		}
		fetcher = statsapi.NewCached(client, store, cfg.Cache.TTL, logger)
	}
	return statsapi.NewRetrying(fetcher, client, cfg.API.Retry, logger), closer, nil
}

func newRegistry() (*materialize.Registry, error) {
	sc, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	return materialize.NewRegistry(materialize.Options{
		Session:       sc,
		PairTolerance: cfg.Backfill.PairTolerance,
		Score:         cfg.PerfScore,
	}), nil
}

// engineOpener opens a player's store and binds an engine to it.
func engineOpener(api statsapi.Fetcher, reg *materialize.Registry) backfill.Opener {
	return func(playerID string) (*backfill.Engine, io.Closer, error) {
		db, err := openStore(playerID)
		if err != nil {
			return nil, nil, err
		}
		eng := backfill.New(db, api, reg, backfill.Options{
			BatchSize: cfg.Backfill.BatchSize,
			Logger:    logger,
		})
		return eng, db, nil
	}
}

// players resolves the player list from args, falling back to the config.
func players(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(cfg.Players) > 0 {
		return cfg.Players, nil
	}
	return nil, fmt.Errorf("no players given and none configured")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
