package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// namesBatchLimit is the most IDs one names lookup accepts upstream.
const namesBatchLimit = 1000

// UniverseService resolves universe entities.
type UniverseService struct {
	client *Client
}

// Structure returns a player structure. Access is ACL-gated upstream:
// characters without docking rights get a 401 even with a valid token.
func (s *UniverseService) Structure(ctx context.Context, structureID, characterID int64) (*Structure, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	if structureID <= 0 {
		return nil, fmt.Errorf("invalid structure id %d", structureID)
	}
	path := fmt.Sprintf("/universe/structures/%d/", structureID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return nil, err
	}
	var st Structure
	if err := json.Unmarshal(resp.Data, &st); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}
	return &st, nil
}

// Names resolves IDs of mixed categories to names. Public, batched at
// the upstream limit.
func (s *UniverseService) Names(ctx context.Context, ids []int64) ([]NameRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var names []NameRef
	for start := 0; start < len(ids); start += namesBatchLimit {
		end := min(start+namesBatchLimit, len(ids))
		resp, err := s.client.Request(ctx, http.MethodPost, "/universe/names/", &RequestOptions{
			Body:     ids[start:end],
			UseCache: true,
		})
		if err != nil {
			return nil, err
		}
		var chunk []NameRef
		if err := json.Unmarshal(resp.Data, &chunk); err != nil {
			return nil, fmt.Errorf("decode names: %w", err)
		}
		names = append(names, chunk...)
	}
	return names, nil
}
