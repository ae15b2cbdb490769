package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// LocationService reads where characters are.
type LocationService struct {
	client *Client
}

// Current returns the character's present solar system and, while
// docked, the station or structure. The headers carry the short cache
// expiry this endpoint uses.
func (s *LocationService) Current(ctx context.Context, characterID int64) (*Location, map[string]string, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, nil, err
	}
	path := fmt.Sprintf("/characters/%d/location/", characterID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return nil, nil, err
	}
	var loc Location
	if err := json.Unmarshal(resp.Data, &loc); err != nil {
		return nil, nil, fmt.Errorf("decode location: %w", err)
	}
	return &loc, resp.Headers, nil
}
