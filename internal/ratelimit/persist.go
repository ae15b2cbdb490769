package ratelimit

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/teemow/evegate/internal/logging"
)

type persistedState struct {
	Buckets       map[string]*Bucket `json:"buckets"`
	ErrorBudget   ErrorBudget        `json:"error_budget"`
	BackoffLevels map[string]int     `json:"backoff_levels"`
}

// persistLocked writes the tracker state atomically. Persistence is
// best-effort: a failure costs restart continuity, never a request.
func (t *Tracker) persistLocked() {
	if t.persistPath == "" {
		return
	}

	state := persistedState{
		Buckets:       t.buckets,
		ErrorBudget:   t.errorBudget,
		BackoffLevels: t.backoffLevels,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		t.logger.Debug("marshal rate limit state", logging.Err(err))
		return
	}

	dir := filepath.Dir(t.persistPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.logger.Debug("create rate limit state directory", logging.Err(err))
		return
	}

	tmp, err := os.CreateTemp(dir, ".rate_limits_*.json.tmp")
	if err != nil {
		t.logger.Debug("create rate limit temp file", logging.Err(err))
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		t.logger.Debug("write rate limit state", logging.Err(err))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		t.logger.Debug("close rate limit temp file", logging.Err(err))
		return
	}
	if err := os.Rename(tmp.Name(), t.persistPath); err != nil {
		os.Remove(tmp.Name())
		t.logger.Debug("replace rate limit state file", logging.Err(err))
	}
}

func (t *Tracker) load() {
	if t.persistPath == "" {
		return
	}

	data, err := os.ReadFile(t.persistPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			t.logger.Debug("read rate limit state", logging.Err(err))
		}
		return
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		t.logger.Warn("rate limit state file corrupt, starting fresh", logging.Err(err))
		return
	}

	if state.Buckets != nil {
		t.buckets = state.Buckets
	}
	if state.BackoffLevels != nil {
		t.backoffLevels = state.BackoffLevels
	}
	t.errorBudget = state.ErrorBudget
}
