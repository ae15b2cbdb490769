package sso

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultLoginTimeout bounds how long an interactive login waits for the
// browser redirect before giving up.
const DefaultLoginTimeout = 300 * time.Second

// CallbackResult carries the parameters of one OAuth redirect.
type CallbackResult struct {
	Code  string
	State string
	// Err holds the provider "error" query parameter when the user denied
	// the request or the provider rejected it.
	Err string
	// Path is the raw request path with query, kept for diagnostics.
	Path string
}

// CallbackListener is a short-lived local HTTP responder that captures
// exactly one OAuth redirect per authentication attempt. Results are
// handed over through a single-slot channel: a second callback arriving
// while the first is still pending is answered with an error page and
// dropped, never overwriting data a waiter may already be consuming.
type CallbackListener struct {
	host    string
	port    string
	path    string
	logger  *slog.Logger
	results chan CallbackResult

	server   *http.Server
	listener net.Listener
}

// NewCallbackListener validates the callback URL and prepares a listener
// for it. The host must be loopback; anything else fails with
// ErrInsecureCallbackHost before any socket is opened.
func NewCallbackListener(callbackURL string, logger *slog.Logger) (*CallbackListener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("parse callback URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	if !isLoopbackHost(host) {
		return nil, fmt.Errorf("%w: %q (only localhost/127.0.0.1/::1 are allowed)", ErrInsecureCallbackHost, host)
	}

	port := parsed.Port()
	if port == "" {
		port = "8080"
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}

	return &CallbackListener{
		host:    host,
		port:    port,
		path:    path,
		logger:  logger,
		results: make(chan CallbackResult, 1),
	}, nil
}

// isLoopbackHost reports whether host names a loopback interface.
// Hostnames are matched strictly against known loopback names rather
// than resolved, so a DNS entry cannot smuggle in an external bind.
func isLoopbackHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "localhost.", "ip6-localhost":
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start binds the listener and begins serving in a background goroutine.
func (l *CallbackListener) Start() error {
	if l.server != nil {
		return fmt.Errorf("callback listener already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(l.host, l.port))
	if err != nil {
		return fmt.Errorf("bind callback listener on %s:%s: %w", l.host, l.port, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handleCallback)

	l.listener = ln
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Warn("callback listener stopped unexpectedly", "error", err)
		}
	}()

	l.logger.Info("callback listener started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, usable once Start has returned.
func (l *CallbackListener) Addr() string {
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result := CallbackResult{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Err:   query.Get("error"),
		Path:  r.URL.RequestURI(),
	}

	select {
	case l.results <- result:
	default:
		// A previous callback is still pending. Keeping the first result
		// intact matters more than honoring the newcomer.
		l.logger.Warn("duplicate OAuth callback dropped, a previous callback is still pending")
		writeCallbackPage(w, http.StatusConflict, "Authentication Conflict",
			"Another authentication response was already received. Close this window and retry the login.")
		return
	}

	if result.Err != "" {
		writeCallbackPage(w, http.StatusBadRequest, "Authentication Failed",
			"Error: "+html.EscapeString(result.Err))
	} else {
		writeCallbackPage(w, http.StatusOK, "Authentication Successful",
			"You have successfully authenticated with EVE Online. You can close this window and return to the application.")
	}

	l.logger.Info("received OAuth callback",
		"code_present", result.Code != "",
		"state_present", result.State != "",
	)
}

func writeCallbackPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<html>
<head><title>%s</title></head>
<body>
  <h1>%s</h1>
  <p>%s</p>
  <p>You can close this window now.</p>
</body>
</html>
`, title, title, body)
}

// Wait blocks until a callback arrives, the timeout elapses, or ctx is
// cancelled. Cancelling ctx is the supported way to abort an interactive
// login from another goroutine.
func (l *CallbackListener) Wait(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-l.results:
		return &result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response received after %s", ErrCallbackTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts the listener down, waiting for in-flight handlers up to the
// context deadline. Safe to call when Start was never reached.
func (l *CallbackListener) Stop(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	err := l.server.Shutdown(ctx)
	l.server = nil
	l.listener = nil
	l.logger.Info("callback listener stopped")
	return err
}
