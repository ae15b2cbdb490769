package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/teemow/evegate/internal/apispec"
	"github.com/teemow/evegate/internal/config"
	"github.com/teemow/evegate/internal/esi"
	"github.com/teemow/evegate/internal/instrumentation"
	"github.com/teemow/evegate/internal/logging"
	"github.com/teemow/evegate/internal/ratelimit"
	"github.com/teemow/evegate/internal/respcache"
	"github.com/teemow/evegate/internal/sso"
)

// loadConfig reads the environment configuration and applies the
// persistent logging flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.LogFormat = logFormatFlag
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr. Stdout stays clean for
// command output, and for the MCP wire in stdio mode.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

// newAuthenticator wires EVE SSO from config. A missing client ID is
// not an error; it returns nil and the client stays limited to public
// endpoints.
func newAuthenticator(cfg *config.Config, logger *slog.Logger) (*sso.Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, nil
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	return sso.New(sso.Config{
		ClientID:    cfg.ClientID,
		CallbackURL: cfg.CallbackURL,
		Scopes:      cfg.Scopes,
		TokenFile:   cfg.TokenFile(),
		Logger:      logger,
	})
}

// clientOptions tunes newUpstreamClient per command.
type clientOptions struct {
	// loadSpec fetches the endpoint metadata index before the first
	// request. One-shot commands that never touch the network can skip
	// it; lookups then degrade to misses.
	loadSpec bool

	// metrics instruments the client when the serve command runs with
	// an enabled provider.
	metrics *instrumentation.Metrics
}

// newUpstreamClient assembles the API client from config: SSO
// authenticator, response cache, rate-limit tracker and endpoint
// metadata index. The caller owns the client and must Close it.
func newUpstreamClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts clientOptions) (*esi.Client, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	auth, err := newAuthenticator(cfg, logger)
	if err != nil {
		return nil, err
	}

	var cache *respcache.Cache
	if cfg.CacheEnabled {
		cache, err = respcache.New(respcache.Options{
			Path:   cfg.CacheFile(),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open response cache: %w", err)
		}
	}

	var onWait func(groupKey, reason string)
	if opts.metrics != nil {
		m := opts.metrics
		onWait = func(groupKey, reason string) {
			m.RecordRateLimitWait(context.Background(), groupKey, reason)
		}
	}
	limits := ratelimit.New(ratelimit.Options{
		PersistPath:      cfg.RateLimitFile(),
		MaxBackoff:       cfg.MaxBackoff,
		ThresholdPercent: cfg.ThresholdPercent,
		OnWait:           onWait,
		Logger:           logger,
	})

	var spec *apispec.Index
	if opts.loadSpec {
		spec = apispec.New(apispec.Options{
			SpecURL:   cfg.SpecURL,
			CachePath: cfg.SpecFile(),
			Logger:    logger,
		})
		// Metadata is an optimization; requests still work on misses.
		if err := spec.Load(ctx); err != nil {
			logger.Warn("could not load API description", logging.Err(err))
		}
	}

	client, err := esi.New(esi.Options{
		BaseURL:            cfg.BaseURL,
		Datasource:         cfg.Datasource,
		CompatibilityDate:  cfg.CompatibilityDate,
		UserAgent:          cfg.UserAgent,
		Transport:          &http.Client{Timeout: cfg.HTTPTimeout},
		Auth:               auth,
		Cache:              cache,
		Limits:             limits,
		Spec:               spec,
		Metrics:            opts.metrics,
		Logger:             logger,
		ImageDir:           cfg.ImageDir(),
		CacheExpiryWarning: cfg.CacheExpiryWarning,
	})
	if err != nil {
		// Ownership of cache and spec transfers on success only.
		if spec != nil {
			spec.Close()
		}
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}
	return client, nil
}
