package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// AssetsService reads character asset lists.
type AssetsService struct {
	client *Client
}

// List returns every asset of the character across all pages.
func (s *AssetsService) List(ctx context.Context, characterID int64) ([]Asset, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/characters/%d/assets/", characterID)
	return CollectPages[Asset](s.client.Pages(ctx, http.MethodGet, path, &PageOptions{
		UseCache:    true,
		CharacterID: characterID,
	}))
}

// ListWithHeaders returns all assets plus the first page's response
// headers, which carry the upstream cache expiry.
func (s *AssetsService) ListWithHeaders(ctx context.Context, characterID int64) ([]Asset, map[string]string, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, nil, err
	}
	path := fmt.Sprintf("/characters/%d/assets/", characterID)

	page := func(n int) (*Response, error) {
		return s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
			Params:      url.Values{"page": {strconv.Itoa(n)}},
			UseCache:    true,
			CharacterID: characterID,
		})
	}

	first, err := page(1)
	if err != nil {
		return nil, nil, err
	}
	var assets []Asset
	if err := json.Unmarshal(first.Data, &assets); err != nil {
		return nil, nil, fmt.Errorf("decode assets: %w", err)
	}

	total := 1
	if xPages := first.Headers["x-pages"]; xPages != "" {
		if n, err := strconv.Atoi(xPages); err == nil {
			total = n
		}
	}
	for n := 2; n <= total; n++ {
		resp, err := page(n)
		if err != nil {
			return nil, nil, err
		}
		var chunk []Asset
		if err := json.Unmarshal(resp.Data, &chunk); err != nil {
			return nil, nil, fmt.Errorf("decode assets page %d: %w", n, err)
		}
		assets = append(assets, chunk...)
	}
	return assets, first.Headers, nil
}
