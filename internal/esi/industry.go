package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// IndustryService reads industry jobs.
type IndustryService struct {
	client *Client
}

// Jobs returns the character's industry jobs, optionally including
// delivered ones from the last 90 days.
func (s *IndustryService) Jobs(ctx context.Context, characterID int64, includeCompleted bool) ([]IndustryJob, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/characters/%d/industry/jobs/", characterID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		Params:      url.Values{"include_completed": {strconv.FormatBool(includeCompleted)}},
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return nil, err
	}
	var jobs []IndustryJob
	if err := json.Unmarshal(resp.Data, &jobs); err != nil {
		return nil, fmt.Errorf("decode industry jobs: %w", err)
	}
	return jobs, nil
}
