package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// MarketService reads market orders and prices.
type MarketService struct {
	client *Client
}

// Orders returns the character's open market orders.
func (s *MarketService) Orders(ctx context.Context, characterID int64) ([]MarketOrder, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/characters/%d/orders/", characterID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return nil, err
	}
	var orders []MarketOrder
	if err := json.Unmarshal(resp.Data, &orders); err != nil {
		return nil, fmt.Errorf("decode market orders: %w", err)
	}
	return orders, nil
}

// Prices returns the global adjusted and average prices for all types.
// Public, no token needed.
func (s *MarketService) Prices(ctx context.Context) ([]MarketPrice, error) {
	resp, err := s.client.Request(ctx, http.MethodGet, "/markets/prices/", DefaultOptions())
	if err != nil {
		return nil, err
	}
	var prices []MarketPrice
	if err := json.Unmarshal(resp.Data, &prices); err != nil {
		return nil, fmt.Errorf("decode market prices: %w", err)
	}
	return prices, nil
}
