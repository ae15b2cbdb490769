package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/evegate/internal/esi"
	"github.com/teemow/evegate/internal/instrumentation"
	"github.com/teemow/evegate/internal/sso"
)

// ServerContext holds everything the MCP tools need: the upstream
// client, the authenticator behind it, and the instrumentation sinks.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	client      *esi.Client
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger
	mu          sync.RWMutex
	shutdown    bool
}

// ContextOptions configures a ServerContext. Client is required;
// everything else is optional.
type ContextOptions struct {
	Client      *esi.Client
	Metrics     *instrumentation.Metrics
	AuditLogger *instrumentation.AuditLogger
	Logger      *slog.Logger
}

// NewServerContext creates a server context owning a cancellable child
// of ctx. Shutdown cancels it; the upstream client's lifecycle stays
// with the caller.
func NewServerContext(ctx context.Context, opts ContextOptions) (*ServerContext, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("upstream client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		client:      opts.Client,
		metrics:     opts.Metrics,
		auditLogger: opts.AuditLogger,
		logger:      logger,
	}, nil
}

// Context returns the server lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Client returns the upstream API client.
func (sc *ServerContext) Client() *esi.Client {
	return sc.client
}

// Authenticator returns the client's token source, nil when the server
// runs without authentication.
func (sc *ServerContext) Authenticator() *sso.Authenticator {
	return sc.client.Authenticator()
}

// Metrics returns the tool metrics sink, nil when instrumentation is
// disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit sink, nil when auditing is disabled.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// IsShutdown reports whether Shutdown has run.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. Safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
