package sso

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testToken(id int64, name string) *Token {
	return &Token{
		CharacterID:   id,
		CharacterName: name,
		AccessToken:   "access-token",
		RefreshToken:  "refresh-token",
		ExpiresAt:     time.Now().Add(time.Hour).UTC(),
		Scopes:        []string{"esi-assets.read_assets.v1"},
	}
}

func TestTokenExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		margin    time.Duration
		want      bool
	}{
		{
			name:      "valid well past margin",
			expiresAt: time.Now().Add(time.Hour),
			margin:    5 * time.Minute,
			want:      false,
		},
		{
			name:      "inside margin counts as expired",
			expiresAt: time.Now().Add(2 * time.Minute),
			margin:    5 * time.Minute,
			want:      true,
		},
		{
			name:      "already expired",
			expiresAt: time.Now().Add(-time.Minute),
			margin:    0,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, tok.Expired(tt.margin))
		})
	}
}

func TestTokenStore_PutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)

	want := testToken(2119654977, "CCP Alpha")
	require.NoError(t, store.Put(want))

	got, ok := store.Get(2119654977)
	require.True(t, ok)
	assert.Equal(t, "CCP Alpha", got.CharacterName)

	// Get hands out copies; mutating one must not corrupt the store.
	got.AccessToken = "tampered"
	again, _ := store.Get(2119654977)
	assert.Equal(t, "access-token", again.AccessToken)
}

func TestTokenStore_PutRequiresCharacterID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)

	assert.Error(t, store.Put(&Token{CharacterName: "Nameless"}))
}

func TestTokenStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Put(testToken(2119654977, "CCP Alpha")))

	reloaded, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	got, ok := reloaded.Get(2119654977)
	require.True(t, ok, "token lost across reload")
	assert.Equal(t, "refresh-token", got.RefreshToken)
}

func TestTokenStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Put(testToken(2119654977, "CCP Alpha")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// The on-disk map is keyed by decimal character ID.
	var onDisk map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	entry, ok := onDisk["2119654977"]
	require.True(t, ok, "token file not keyed by decimal character ID")
	assert.Equal(t, "CCP Alpha", entry["character_name"])
	assert.Contains(t, entry, "refresh_token")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestTokenStore_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "tokens.json")

	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	assert.Empty(t, store.List())
}

func TestTokenStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	// A corrupt store starts empty rather than blocking authentication.
	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	assert.Empty(t, store.List())
}

func TestTokenStore_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Put(testToken(100, "Alpha")))

	removed, err := store.Remove(100)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, store.Has(100))

	removed, err = store.Remove(100)
	require.NoError(t, err)
	assert.False(t, removed, "Remove reported true for absent token")
}

func TestTokenStore_ListSorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)

	for _, id := range []int64{300, 100, 200} {
		require.NoError(t, store.Put(testToken(id, "pilot")))
	}

	list := store.List()
	require.Len(t, list, 3)
	for i, want := range []int64{100, 200, 300} {
		assert.Equal(t, want, list[i].CharacterID)
	}
}

func TestTokenStore_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Put(testToken(100, "Alpha")))

	require.NoError(t, store.Update(100, func(tok *Token) {
		tok.AccessToken = "rotated"
	}))

	got, _ := store.Get(100)
	assert.Equal(t, "rotated", got.AccessToken)

	reloaded, err := NewTokenStore(path, testLogger())
	require.NoError(t, err)
	got, _ = reloaded.Get(100)
	assert.Equal(t, "rotated", got.AccessToken, "Update result not persisted")

	assert.Error(t, store.Update(999, func(*Token) {}), "Update succeeded for unknown character")
}
