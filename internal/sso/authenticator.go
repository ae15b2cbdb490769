package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/evegate/internal/logging"
)

// EVE SSO v2 endpoints.
const (
	DefaultAuthorizeURL = "https://login.eveonline.com/v2/oauth/authorize"
	DefaultTokenURL     = "https://login.eveonline.com/v2/oauth/token"
	DefaultVerifyURL    = "https://login.eveonline.com/oauth/verify"
	DefaultRevokeURL    = "https://login.eveonline.com/v2/oauth/revoke"
)

// refreshMargin is subtracted from the stored expiry when deciding whether
// an access token is still usable, so a token never dies mid-request.
const refreshMargin = 5 * time.Minute

// fallbackTokenLifetime applies when a token response carries no expiry.
const fallbackTokenLifetime = 1200 * time.Second

// Config configures an Authenticator.
type Config struct {
	// ClientID is the EVE application client ID. Required.
	ClientID string

	// CallbackURL must match the application registration and point at a
	// loopback host (default http://localhost:8080/callback).
	CallbackURL string

	// Scopes are the default ESI scopes requested by Login when the
	// caller passes none.
	Scopes []string

	// TokenFile is the path of the persisted token store.
	TokenFile string

	// Endpoint overrides, used by tests. Zero values select the EVE SSO
	// production endpoints.
	AuthorizeURL string
	TokenURL     string
	VerifyURL    string
	RevokeURL    string

	// LoginTimeout bounds the interactive flow (default 300s).
	LoginTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger

	// OpenBrowser launches the system browser for the interactive flow.
	// Tests inject a fake that drives the callback directly.
	OpenBrowser func(url string) error
}

// Authenticator drives the OAuth 2.0 Authorization Code flow with PKCE
// against EVE SSO and manages stored tokens for multiple characters.
// PKCE needs no client secret, which is what makes the flow usable from
// a desktop process.
type Authenticator struct {
	clientID     string
	callbackURL  string
	scopes       []string
	authorizeURL string
	tokenURL     string
	verifyURL    string
	revokeURL    string

	store      *TokenStore
	pending    *pendingStore
	httpClient *http.Client
	logger     *slog.Logger

	loginTimeout time.Duration
	openBrowser  func(string) error

	// loginActive enforces one interactive flow per authenticator.
	loginActive atomic.Bool

	mu           sync.Mutex
	refreshLocks map[int64]*sync.Mutex
}

// New creates an Authenticator and loads the token store.
func New(cfg Config) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.TokenFile == "" {
		return nil, fmt.Errorf("token file path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := NewTokenStore(cfg.TokenFile, logger)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		clientID:     cfg.ClientID,
		callbackURL:  cfg.CallbackURL,
		scopes:       cfg.Scopes,
		authorizeURL: cfg.AuthorizeURL,
		tokenURL:     cfg.TokenURL,
		verifyURL:    cfg.VerifyURL,
		revokeURL:    cfg.RevokeURL,
		store:        store,
		pending:      newPendingStore(0),
		httpClient:   cfg.HTTPClient,
		logger:       logger,
		loginTimeout: cfg.LoginTimeout,
		openBrowser:  cfg.OpenBrowser,
		refreshLocks: make(map[int64]*sync.Mutex),
	}

	if a.callbackURL == "" {
		a.callbackURL = "http://localhost:8080/callback"
	}
	if a.authorizeURL == "" {
		a.authorizeURL = DefaultAuthorizeURL
	}
	if a.tokenURL == "" {
		a.tokenURL = DefaultTokenURL
	}
	if a.verifyURL == "" {
		a.verifyURL = DefaultVerifyURL
	}
	if a.revokeURL == "" {
		a.revokeURL = DefaultRevokeURL
	}
	if a.loginTimeout <= 0 {
		a.loginTimeout = DefaultLoginTimeout
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if a.openBrowser == nil {
		a.openBrowser = launchBrowser
	}

	return a, nil
}

func (a *Authenticator) oauthConfig(scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    a.clientID,
		RedirectURL: a.callbackURL,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.authorizeURL,
			TokenURL: a.tokenURL,
			// Public PKCE client: client_id travels in the POST body.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthContext routes x/oauth2's internal HTTP calls through our client.
func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// AuthorizationURL builds the PKCE authorization URL for the given scopes
// and registers the flow so the matching code exchange can find its
// verifier. Returns the URL and the CSRF state.
func (a *Authenticator) AuthorizationURL(scopes []string) (string, string, error) {
	if len(scopes) == 0 {
		scopes = a.scopes
	}

	state, err := GenerateState()
	if err != nil {
		return "", "", err
	}
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return "", "", err
	}

	a.pending.Put(state, verifier)

	authURL := a.oauthConfig(scopes).AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", GenerateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return authURL, state, nil
}

// Login runs the interactive authorization flow: starts the loopback
// callback listener, opens the browser, waits for the redirect, and
// exchanges the code. Cancelling ctx aborts the flow. Only one Login may
// run at a time per authenticator; concurrent calls fail fast with
// ErrLoginInProgress instead of corrupting the pending flow.
func (a *Authenticator) Login(ctx context.Context, scopes []string) (*Token, error) {
	if !a.loginActive.CompareAndSwap(false, true) {
		return nil, ErrLoginInProgress
	}
	defer a.loginActive.Store(false)

	// The loopback check runs before any socket is opened.
	listener, err := NewCallbackListener(a.callbackURL, a.logger)
	if err != nil {
		return nil, err
	}

	authURL, state, err := a.AuthorizationURL(scopes)
	if err != nil {
		return nil, err
	}

	if err := listener.Start(); err != nil {
		return nil, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := listener.Stop(stopCtx); err != nil {
			a.logger.Debug("callback listener stop", logging.Err(err))
		}
	}()

	a.logger.Info("opening browser for authentication (if it does not open, visit the URL manually)", "url", authURL)
	if err := a.openBrowser(authURL); err != nil {
		a.logger.Warn("failed to open browser automatically", logging.Err(err))
	}

	result, err := listener.Wait(ctx, a.loginTimeout)
	if err != nil {
		return nil, err
	}

	if result.Err != "" {
		return nil, fmt.Errorf("%w: provider returned %q", ErrAuthenticationFailed, result.Err)
	}
	if result.State != state {
		return nil, fmt.Errorf("%w: state mismatch, possible CSRF", ErrAuthenticationFailed)
	}
	if result.Code == "" {
		return nil, fmt.Errorf("%w: no authorization code in callback", ErrAuthenticationFailed)
	}

	a.logger.Info("received authorization code, exchanging for token")
	return a.ExchangeCode(ctx, result.Code, state)
}

// ExchangeCode redeems an authorization code using the PKCE verifier
// registered for state. The verifier is single-use: a replayed state
// fails with ErrAuthenticationFailed.
func (a *Authenticator) ExchangeCode(ctx context.Context, code, state string) (*Token, error) {
	verifier, ok := a.pending.Take(state)
	if !ok {
		return nil, fmt.Errorf("%w: no pending authorization for this state", ErrAuthenticationFailed)
	}

	tok, err := a.oauthConfig(nil).Exchange(a.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	identity, err := a.verifyToken(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(fallbackTokenLifetime)
	}

	record := &Token{
		CharacterID:   identity.CharacterID,
		CharacterName: identity.CharacterName,
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		ExpiresAt:     expiry.UTC(),
		Scopes:        identity.Scopes,
	}
	if err := a.store.Put(record); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}

	a.logger.Info("authenticated",
		"character_name", record.CharacterName,
		logging.Character(record.CharacterID),
		"expires_at", record.ExpiresAt,
	)
	return record, nil
}

type verifiedIdentity struct {
	CharacterID   int64
	CharacterName string
	Scopes        []string
}

// verifyToken asks the SSO verify endpoint who the token belongs to.
func (a *Authenticator) verifyToken(ctx context.Context, accessToken string) (*verifiedIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.verifyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: verify request: %w", ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token verification returned status %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var payload struct {
		CharacterID   int64  `json:"CharacterID"`
		CharacterName string `json:"CharacterName"`
		Scopes        string `json:"Scopes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode verify response: %w", ErrAuthenticationFailed, err)
	}
	if payload.CharacterID == 0 || payload.CharacterName == "" {
		return nil, fmt.Errorf("%w: verify response missing character identity", ErrAuthenticationFailed)
	}

	return &verifiedIdentity{
		CharacterID:   payload.CharacterID,
		CharacterName: payload.CharacterName,
		Scopes:        strings.Fields(payload.Scopes),
	}, nil
}

// AccessToken returns a valid access token for the character, refreshing
// when the stored one expires within the safety margin. Refreshes for the
// same character are serialized; different characters never contend.
func (a *Authenticator) AccessToken(ctx context.Context, characterID int64) (string, error) {
	if !a.store.Has(characterID) {
		return "", fmt.Errorf("%w: no token for character %d, run login first", ErrAuthRequired, characterID)
	}

	lock := a.refreshLock(characterID)
	lock.Lock()
	defer lock.Unlock()

	tok, ok := a.store.Get(characterID)
	if !ok {
		return "", fmt.Errorf("%w: no token for character %d, run login first", ErrAuthRequired, characterID)
	}

	if !tok.Expired(refreshMargin) {
		return tok.AccessToken, nil
	}

	a.logger.Debug("access token expired, refreshing", logging.Character(characterID))
	return a.refreshLocked(ctx, characterID, tok)
}

// Refresh forces a token refresh regardless of the stored expiry.
func (a *Authenticator) Refresh(ctx context.Context, characterID int64) (string, error) {
	lock := a.refreshLock(characterID)
	lock.Lock()
	defer lock.Unlock()

	tok, ok := a.store.Get(characterID)
	if !ok {
		return "", fmt.Errorf("%w: no token for character %d", ErrAuthRequired, characterID)
	}
	return a.refreshLocked(ctx, characterID, tok)
}

// refreshLocked runs the refresh grant. Callers hold the per-character lock.
func (a *Authenticator) refreshLocked(ctx context.Context, characterID int64, tok *Token) (string, error) {
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token for character %d, re-authentication required", ErrTokenRefreshFailed, characterID)
	}

	source := a.oauthConfig(nil).TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		a.logger.Error("token refresh failed", logging.Character(characterID), logging.Err(err))
		return "", fmt.Errorf("%w: %w", ErrTokenRefreshFailed, err)
	}

	expiry := fresh.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(fallbackTokenLifetime)
	}
	// SSO rotates refresh tokens; keep the old one only if the response
	// omitted a replacement.
	refreshToken := fresh.RefreshToken
	if refreshToken == "" {
		refreshToken = tok.RefreshToken
	}

	if err := a.store.Update(characterID, func(stored *Token) {
		stored.AccessToken = fresh.AccessToken
		stored.RefreshToken = refreshToken
		stored.ExpiresAt = expiry.UTC()
	}); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	a.logger.Info("token refreshed",
		"character_name", tok.CharacterName,
		logging.Character(characterID),
		"token", logging.SanitizeToken(fresh.AccessToken),
	)
	return fresh.AccessToken, nil
}

func (a *Authenticator) refreshLock(characterID int64) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.refreshLocks[characterID]
	if !ok {
		lock = &sync.Mutex{}
		a.refreshLocks[characterID] = lock
	}
	return lock
}

// Accounts returns the stored tokens for all authenticated characters.
func (a *Authenticator) Accounts() []*Token {
	return a.store.List()
}

// HasToken reports whether a token is stored for the character.
func (a *Authenticator) HasToken(characterID int64) bool {
	return a.store.Has(characterID)
}

// RemoveToken deletes the stored token for a character without
// contacting the provider.
func (a *Authenticator) RemoveToken(characterID int64) (bool, error) {
	return a.store.Remove(characterID)
}

// RevokeToken revokes the refresh token with the provider, then removes
// the stored entry. Revocation is best-effort: provider failures are
// logged and local removal proceeds so the credential is gone either way.
func (a *Authenticator) RevokeToken(ctx context.Context, characterID int64) error {
	tok, ok := a.store.Get(characterID)
	if !ok {
		return fmt.Errorf("%w: no token for character %d", ErrAuthRequired, characterID)
	}

	if tok.RefreshToken != "" {
		form := url.Values{
			"token":           {tok.RefreshToken},
			"token_type_hint": {"refresh_token"},
			"client_id":       {a.clientID},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("build revoke request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			a.logger.Warn("token revocation request failed, removing local token anyway",
				logging.Character(characterID), logging.Err(err))
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 300 {
				a.logger.Warn("provider rejected token revocation, removing local token anyway",
					logging.Character(characterID), "status", resp.StatusCode)
			}
		}
	}

	_, err := a.store.Remove(characterID)
	return err
}

// launchBrowser opens url in the platform default browser.
func launchBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
