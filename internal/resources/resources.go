package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/evegate/internal/server"
)

// RegisterResources registers the gateway state resources. They mirror
// the esi_accounts and esi_status tools for clients that prefer
// resource reads over tool calls.
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	accountsResource := mcp.NewResource(
		"evegate://accounts",
		"Authenticated Characters",
		mcp.WithResourceDescription("The EVE Online characters with locally stored tokens"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(accountsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccountsResource(ctx, request, sc)
	})

	statusResource := mcp.NewResource(
		"evegate://status",
		"Gateway Status",
		mcp.WithResourceDescription("Upstream rate-limit budgets, backoff levels and response-cache statistics"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleStatusResource(ctx, request, sc)
	})

	return nil
}

// handleAccountsResource lists the stored characters. Token material
// never appears in the payload.
func handleAccountsResource(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	type character struct {
		CharacterID   int64    `json:"character_id"`
		CharacterName string   `json:"character_name"`
		Expired       bool     `json:"expired"`
		Scopes        []string `json:"scopes"`
	}

	accounts := sc.Client().Accounts()
	characters := make([]character, 0, len(accounts))
	for _, tok := range accounts {
		characters = append(characters, character{
			CharacterID:   tok.CharacterID,
			CharacterName: tok.CharacterName,
			Expired:       tok.Expired(0),
			Scopes:        tok.Scopes,
		})
	}

	jsonData, err := json.MarshalIndent(characters, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal characters: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// handleStatusResource reports rate-limit and cache state.
func handleStatusResource(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	statusData := map[string]interface{}{
		"rate_limits": sc.Client().RateLimitStatus(),
	}

	if cache := sc.Client().Cache(); cache != nil {
		stats, err := cache.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read cache statistics: %w", err)
		}
		statusData["cache"] = stats
	}

	jsonData, err := json.MarshalIndent(statusData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
