package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CharactersService reads character sheets.
type CharactersService struct {
	client *Client
}

// Public returns the public sheet of any character, no token needed.
func (s *CharactersService) Public(ctx context.Context, characterID int64) (*CharacterPublic, error) {
	if characterID <= 0 {
		return nil, fmt.Errorf("invalid character id %d", characterID)
	}
	path := fmt.Sprintf("/characters/%d/", characterID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, DefaultOptions())
	if err != nil {
		return nil, err
	}
	var sheet CharacterPublic
	if err := json.Unmarshal(resp.Data, &sheet); err != nil {
		return nil, fmt.Errorf("decode character sheet: %w", err)
	}
	return &sheet, nil
}
