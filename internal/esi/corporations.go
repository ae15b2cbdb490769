package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// CorporationsService reads corporation data.
type CorporationsService struct {
	client *Client
}

// Projects returns the corporation's infrastructure projects across all
// cursor pages. The endpoint lives outside the versioned API root and
// accepts both authenticated and anonymous reads; pass a character id
// to authenticate, zero to go without.
func (s *CorporationsService) Projects(ctx context.Context, corporationID, characterID int64) ([]CorporationProject, error) {
	if corporationID <= 0 {
		return nil, fmt.Errorf("invalid corporation id %d", corporationID)
	}
	var ownerID int64
	if characterID > 0 && s.client.auth != nil {
		ownerID = characterID
	}

	// No /latest prefix and no trailing slash on this endpoint.
	path := fmt.Sprintf("/corporations/%d/projects", corporationID)
	fullURL := strings.TrimSuffix(s.client.baseURL, "/latest") + path

	var projects []CorporationProject
	for page, err := range s.client.Pages(ctx, http.MethodGet, path, &PageOptions{
		UseCache:    true,
		CharacterID: ownerID,
		FullURL:     fullURL,
	}) {
		if err != nil {
			return nil, err
		}
		chunk, err := decodeProjectPage(page)
		if err != nil {
			return nil, err
		}
		projects = append(projects, chunk...)
	}
	return projects, nil
}

// decodeProjectPage accepts the shapes cursor pagination produces: a
// bare list, an object with an items list, a single project object, or
// cursor-only metadata carrying no projects.
func decodeProjectPage(page json.RawMessage) ([]CorporationProject, error) {
	if isArray(page) {
		var chunk []CorporationProject
		if err := json.Unmarshal(page, &chunk); err != nil {
			return nil, fmt.Errorf("decode projects: %w", err)
		}
		return chunk, nil
	}

	obj, ok := asObject(page)
	if !ok {
		return nil, nil
	}
	if items, found := obj["items"]; found {
		var chunk []CorporationProject
		if err := json.Unmarshal(items, &chunk); err != nil {
			return nil, fmt.Errorf("decode projects: %w", err)
		}
		return chunk, nil
	}
	if _, found := obj["project_id"]; found {
		var p CorporationProject
		if err := json.Unmarshal(page, &p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		return []CorporationProject{p}, nil
	}
	return nil, nil
}
