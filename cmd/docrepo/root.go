package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/config"
	"github.com/goliatone/go-repository-redis/pkg/di"
	"github.com/goliatone/go-repository-redis/repository"
)

var (
	verbose    bool
	dsn        string
	configPath string
	codec      string

	logger    *slog.Logger
	container *di.Container
	options   repository.Options
)

var rootCmd = &cobra.Command{
	Use:   "docrepo",
	Short: "Inspect and edit member documents in a key-value store",
	Long: `docrepo reads and writes member documents through the cached document
repository. The connection string selects the backend:

  redis://localhost:6379/0        Redis
  localhost:6379,password=secret  Redis, comma form
  sqlite://file:docs.db           SQL table
  memory://local/0                in process, for experiments`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(verbose)
		slog.SetDefault(logger)

		cacheCfg := cache.DefaultConfig()
		options = repository.DefaultOptions()
		if configPath != "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cacheCfg = cfg.Cache
			options = cfg.Options(memberBaseKey)
		}
		if cmd.Flags().Changed("dsn") || options.ConnectionString == "" {
			options.ConnectionString = dsn
		}
		if cmd.Flags().Changed("codec") {
			options.Codec = codec
		}
		// one-shot commands have nothing to keep fresh
		options.DisableAutoSubscription = true

		var err error
		container, err = di.NewContainer(cacheCfg, nil,
			di.WithLogger(logger),
			di.WithErrorHandler(func(err error) { logger.Error("background operation failed", "error", err) }),
		)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return nil
		}
		return container.Close(context.WithoutCancel(cmd.Context()))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&dsn, "dsn", "redis://localhost:6379/0", "Connection string of the store")
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&codec, "codec", "json", "Payload codec (json, msgpack)")

	rootCmd.AddCommand(createCmd, getCmd, scanCmd, deleteCmd, publishCmd, watchCmd)
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func members() (*repository.Repository[Member, *Member], error) {
	return di.NewRepository[Member](container, options)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
