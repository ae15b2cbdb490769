package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WalletService reads wallet state.
type WalletService struct {
	client *Client
}

// Balance returns the character's wallet balance in ISK.
func (s *WalletService) Balance(ctx context.Context, characterID int64) (float64, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return 0, err
	}
	path := fmt.Sprintf("/characters/%d/wallet/", characterID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return 0, err
	}
	var balance float64
	if err := json.Unmarshal(resp.Data, &balance); err != nil {
		return 0, fmt.Errorf("decode wallet balance: %w", err)
	}
	return balance, nil
}

// Journal returns the character's wallet journal across all pages.
func (s *WalletService) Journal(ctx context.Context, characterID int64) ([]JournalEntry, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/characters/%d/wallet/journal/", characterID)
	return CollectPages[JournalEntry](s.client.Pages(ctx, http.MethodGet, path, &PageOptions{
		UseCache:    true,
		CharacterID: characterID,
	}))
}

// Transactions returns the character's recent market transactions.
func (s *WalletService) Transactions(ctx context.Context, characterID int64) ([]Transaction, error) {
	if err := s.client.requireAuth(characterID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/characters/%d/wallet/transactions/", characterID)
	resp, err := s.client.Request(ctx, http.MethodGet, path, &RequestOptions{
		UseCache:    true,
		CharacterID: characterID,
	})
	if err != nil {
		return nil, err
	}
	var txns []Transaction
	if err := json.Unmarshal(resp.Data, &txns); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return txns, nil
}
