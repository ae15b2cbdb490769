package sso

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Token holds the stored credentials and identity for one character.
type Token struct {
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	Scopes        []string  `json:"scopes"`
}

// Expired reports whether the access token has passed its expiry,
// with margin subtracted (use a few minutes to avoid using a token that
// dies mid-request).
func (t *Token) Expired(margin time.Duration) bool {
	return !time.Now().Before(t.ExpiresAt.Add(-margin))
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (t *Token) Clone() *Token {
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp
}

// TokenStore persists tokens for authenticated characters as a JSON file,
// one entry per character keyed by the decimal character ID. Writes are
// atomic (temp file plus rename) and the file is chmodded to 0600 since
// it holds refresh tokens.
type TokenStore struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	tokens map[int64]*Token
}

// NewTokenStore opens (or initializes) the token store at path.
// A missing file yields an empty store; a corrupt file is logged and
// treated as empty rather than failing startup.
func NewTokenStore(path string, logger *slog.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}

	s := &TokenStore{
		path:   path,
		logger: logger,
		tokens: make(map[int64]*Token),
	}
	s.load()
	return s, nil
}

func (s *TokenStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read token file", "path", s.path, "error", err)
		}
		return
	}

	var raw map[string]*Token
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("token file is corrupt, starting empty", "path", s.path, "error", err)
		return
	}

	for key, tok := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || tok == nil {
			s.logger.Warn("skipping malformed token entry", "key", key)
			continue
		}
		if tok.CharacterID == 0 {
			tok.CharacterID = id
		}
		s.tokens[id] = tok
	}
	s.logger.Debug("loaded tokens", "count", len(s.tokens))
}

// save writes the full token map to disk. Callers must hold s.mu.
func (s *TokenStore) save() error {
	raw := make(map[string]*Token, len(s.tokens))
	for id, tok := range s.tokens {
		raw[strconv.FormatInt(id, 10)] = tok
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	// Write to temp file first, then atomic rename so a crash never
	// leaves a truncated token file behind.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens_*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace token file: %w", err)
	}

	if err := os.Chmod(s.path, 0o600); err != nil {
		s.logger.Warn("failed to restrict token file permissions", "path", s.path, "error", err)
	}

	s.logger.Debug("saved tokens", "count", len(s.tokens))
	return nil
}

// Get returns a copy of the token for a character.
func (s *TokenStore) Get(characterID int64) (*Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[characterID]
	if !ok {
		return nil, false
	}
	return tok.Clone(), true
}

// Has reports whether a token is stored for the character.
func (s *TokenStore) Has(characterID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[characterID]
	return ok
}

// Put stores a token and persists the store.
func (s *TokenStore) Put(tok *Token) error {
	if tok == nil || tok.CharacterID == 0 {
		return fmt.Errorf("token must carry a character ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[tok.CharacterID] = tok.Clone()
	return s.save()
}

// Remove deletes the token for a character. Returns false when no token
// was stored.
func (s *TokenStore) Remove(characterID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[characterID]; !ok {
		return false, nil
	}
	delete(s.tokens, characterID)
	if err := s.save(); err != nil {
		return true, err
	}
	s.logger.Info("removed token", "character_id", characterID)
	return true, nil
}

// List returns copies of all stored tokens ordered by character ID.
func (s *TokenStore) List() []*Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Token, 0, len(s.tokens))
	for _, tok := range s.tokens {
		out = append(out, tok.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CharacterID < out[j].CharacterID })
	return out
}

// Update applies fn to the stored token for a character under the store
// lock and persists the result. Used by the refresh path so a concurrent
// Put cannot be lost between read and write.
func (s *TokenStore) Update(characterID int64, fn func(*Token)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[characterID]
	if !ok {
		return fmt.Errorf("no token for character %d", characterID)
	}
	fn(tok)
	return s.save()
}
