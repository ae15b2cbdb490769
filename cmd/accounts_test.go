package cmd

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teemow/evegate/internal/sso"
)

func TestFormatExpiry(t *testing.T) {
	tests := []struct {
		name     string
		expiry   time.Time
		contains string
	}{
		{
			name:     "future expiry",
			expiry:   time.Now().Add(30 * time.Minute),
			contains: "in ",
		},
		{
			name:     "past expiry",
			expiry:   time.Now().Add(-time.Minute),
			contains: "expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatExpiry(tt.expiry)
			if !strings.Contains(got, tt.contains) {
				t.Errorf("formatExpiry(%v) = %q, want it to contain %q", tt.expiry, got, tt.contains)
			}
		})
	}
}

func TestFindAccount(t *testing.T) {
	auth := newStoredAuthenticator(t, map[string]*sso.Token{
		"2119654977": {
			CharacterID:   2119654977,
			CharacterName: "Zifrian",
			AccessToken:   "tok-1",
			ExpiresAt:     time.Now().Add(time.Hour),
		},
		"92168909": {
			CharacterID:   92168909,
			CharacterName: "CCP Alpha",
			AccessToken:   "tok-2",
			ExpiresAt:     time.Now().Add(time.Hour),
		},
	})

	tests := []struct {
		name       string
		arg        string
		expectedID int64
		wantErr    bool
	}{
		{
			name:       "by decimal ID",
			arg:        "2119654977",
			expectedID: 2119654977,
		},
		{
			name:       "by exact name",
			arg:        "Zifrian",
			expectedID: 2119654977,
		},
		{
			name:       "name match is case-insensitive",
			arg:        "ccp alpha",
			expectedID: 92168909,
		},
		{
			name:    "unknown ID",
			arg:     "12345",
			wantErr: true,
		},
		{
			name:    "unknown name",
			arg:     "Nobody",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := findAccount(auth, tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("findAccount(%q) expected error, got %v", tt.arg, token)
				}
				return
			}
			if err != nil {
				t.Fatalf("findAccount(%q) unexpected error: %v", tt.arg, err)
			}
			if token.CharacterID != tt.expectedID {
				t.Errorf("findAccount(%q) = character %d, want %d", tt.arg, token.CharacterID, tt.expectedID)
			}
		})
	}
}

// Helper functions

func newStoredAuthenticator(t *testing.T, tokens map[string]*sso.Token) *sso.Authenticator {
	t.Helper()

	tokenFile := filepath.Join(t.TempDir(), "tokens.json")
	data, err := json.Marshal(tokens)
	if err != nil {
		t.Fatalf("marshal tokens: %v", err)
	}
	if err := os.WriteFile(tokenFile, data, 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	auth, err := sso.New(sso.Config{
		ClientID:  "test-client",
		TokenFile: tokenFile,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("create authenticator: %v", err)
	}
	return auth
}
