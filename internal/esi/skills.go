package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SkillsService reads trained skills.
type SkillsService struct {
	client *Client
}

// List returns the character's full skill sheet with response headers.
func (s *SkillsService) List(ctx context.Context, characterID int64) (*CharacterSkills, map[string]string, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, nil, err
	}
	path := fmt.Sprintf("/characters/%d/skills/", characterID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return nil, nil, err
	}
	var sheet CharacterSkills
	if err := json.Unmarshal(resp.Data, &sheet); err != nil {
		return nil, nil, fmt.Errorf("decode skills: %w", err)
	}
	return &sheet, resp.Headers, nil
}
