package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ContractsService reads character contracts.
type ContractsService struct {
	client *Client
}

// List returns the character's contracts across all pages.
func (s *ContractsService) List(ctx context.Context, characterID int64) ([]Contract, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/characters/%d/contracts/", characterID)
	return CollectPages[Contract](s.client.Pages(ctx, http.MethodGet, path, &PageOptions{
		UseCache:    true,
		CharacterID: characterID,
	}))
}

// Items returns the items exchanged in one contract.
func (s *ContractsService) Items(ctx context.Context, characterID, contractID int64) ([]ContractItem, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	if contractID <= 0 {
		return nil, fmt.Errorf("invalid contract id %d", contractID)
	}
	path := fmt.Sprintf("/characters/%d/contracts/%d/items/", characterID, contractID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return nil, err
	}
	var items []ContractItem
	if err := json.Unmarshal(resp.Data, &items); err != nil {
		return nil, fmt.Errorf("decode contract items: %w", err)
	}
	return items, nil
}
