package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/evegate/internal/logging"
	"github.com/teemow/evegate/internal/ratelimit"
	"github.com/teemow/evegate/internal/respcache"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show rate-limit budgets and cache state",
		Long: `Print the tracked rate-limit buckets with their projected token
availability, current backoff levels and response-cache statistics as
JSON. State is persisted across runs, so previous invocations count.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	client, err := newUpstreamClient(ctx, cfg, logger, clientOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("client shutdown", logging.Err(err))
		}
	}()

	report := struct {
		RateLimits ratelimit.Snapshot `json:"rate_limits"`
		Cache      *respcache.Stats   `json:"cache,omitempty"`
	}{RateLimits: client.RateLimitStatus()}

	if cache := client.Cache(); cache != nil {
		stats, err := cache.Stats(ctx)
		if err != nil {
			return fmt.Errorf("cache stats: %w", err)
		}
		report.Cache = &stats
	}

	return printJSON(os.Stdout, report)
}
