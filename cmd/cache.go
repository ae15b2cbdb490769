package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/evegate/internal/config"
	"github.com/teemow/evegate/internal/respcache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
		Long: `Work with the on-disk response cache. Without a subcommand the cache
statistics are printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd.Context())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(cmd.Context())
		},
	})

	return cmd
}

// openCache opens the response cache directly, without the full client.
func openCache(cfg *config.Config, logger *slog.Logger) (*respcache.Cache, error) {
	if !cfg.CacheEnabled {
		return nil, fmt.Errorf("cache is disabled, set EVEGATE_CACHE_ENABLED=true")
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	return respcache.New(respcache.Options{Path: cfg.CacheFile(), Logger: logger})
}

func runCacheStats(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	cache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	stats, err := cache.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, stats)
}

func runCacheClear(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	cache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Cache cleared")
	return nil
}
