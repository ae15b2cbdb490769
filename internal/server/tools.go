package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/evegate/internal/esi"
)

// RegisterTools registers the read-only tool set with the MCP server.
// Every tool runs through the instrumented wrapper.
func RegisterTools(s *mcpserver.MCPServer, sc *ServerContext) error {
	getTool := mcp.NewTool("esi_get",
		mcp.WithDescription("Perform a GET request against any EVE Online ESI path and return the JSON response"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("API path relative to the versioned root (e.g. '/markets/prices/' or '/characters/2119654977/assets/')"),
		),
		mcp.WithNumber("character",
			mcp.Description("Character ID whose token authenticates the request. Omit for public endpoints."),
		),
		mcp.WithString("params",
			mcp.Description("Extra query parameters as a query string (e.g. 'order_type=sell&page=1')"),
		),
		mcp.WithBoolean("all_pages",
			mcp.Description("Follow pagination and return every page (default: first page only)"),
		),
		mcp.WithBoolean("no_cache",
			mcp.Description("Bypass the response cache for this request"),
		),
	)
	s.AddTool(getTool, InstrumentedToolHandler("esi_get", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGet(ctx, request, sc)
	}))

	accountsTool := mcp.NewTool("esi_accounts",
		mcp.WithDescription("List the locally authenticated EVE Online characters and their token state"),
	)
	s.AddTool(accountsTool, InstrumentedToolHandler("esi_accounts", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAccounts(ctx, request, sc)
	}))

	statusTool := mcp.NewTool("esi_status",
		mcp.WithDescription("Report upstream rate-limit budgets, backoff levels and response-cache statistics"),
	)
	s.AddTool(statusTool, InstrumentedToolHandler("esi_status", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleStatus(ctx, request, sc)
	}))

	characterTool := mcp.NewTool("esi_character",
		mcp.WithDescription("Fetch the public sheet of an EVE Online character"),
		mcp.WithNumber("character_id",
			mcp.Required(),
			mcp.Description("The character ID to look up"),
		),
	)
	s.AddTool(characterTool, InstrumentedToolHandler("esi_character", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCharacter(ctx, request, sc)
	}))

	return nil
}

func handleGet(ctx context.Context, request mcp.CallToolRequest, sc *ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var params url.Values
	if raw, ok := args["params"].(string); ok && raw != "" {
		parsed, err := url.ParseQuery(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("bad params: %v", err)), nil
		}
		params = parsed
	}

	characterID := characterFromArgs(args)
	useCache := true
	if noCache, ok := args["no_cache"].(bool); ok && noCache {
		useCache = false
	}
	allPages, _ := args["all_pages"].(bool)

	client := sc.Client()
	if allPages {
		var pages []json.RawMessage
		for page, err := range client.Pages(ctx, http.MethodGet, path, &esi.PageOptions{
			Params:      params,
			UseCache:    useCache,
			CharacterID: characterID,
		}) {
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err)), nil
			}
			pages = append(pages, page)
		}
		return mcp.NewToolResultText(string(mergePages(pages))), nil
	}

	resp, err := client.Request(ctx, http.MethodGet, path, &esi.RequestOptions{
		Params:      params,
		UseCache:    useCache,
		CharacterID: characterID,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err)), nil
	}
	if len(resp.Data) == 0 {
		return mcp.NewToolResultText("null"), nil
	}
	return mcp.NewToolResultText(string(resp.Data)), nil
}

// mergePages flattens pages into one JSON array. Pages that are arrays
// themselves are concatenated element-wise; anything else makes the
// result an array of pages.
func mergePages(pages []json.RawMessage) json.RawMessage {
	if len(pages) == 0 {
		return json.RawMessage("[]")
	}
	var merged []json.RawMessage
	for _, page := range pages {
		var elems []json.RawMessage
		if err := json.Unmarshal(page, &elems); err != nil {
			out, _ := json.Marshal(pages)
			return out
		}
		merged = append(merged, elems...)
	}
	if len(merged) == 0 {
		return json.RawMessage("[]")
	}
	out, _ := json.Marshal(merged)
	return out
}

type accountSummary struct {
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	ExpiresAt     time.Time `json:"expires_at"`
	Expired       bool      `json:"expired"`
	Scopes        []string  `json:"scopes"`
}

func handleAccounts(_ context.Context, _ mcp.CallToolRequest, sc *ServerContext) (*mcp.CallToolResult, error) {
	if sc.Authenticator() == nil {
		return mcp.NewToolResultError("no authenticator configured; authenticate with 'evegate login' first"), nil
	}

	accounts := sc.Client().Accounts()
	summaries := make([]accountSummary, 0, len(accounts))
	for _, tok := range accounts {
		summaries = append(summaries, accountSummary{
			CharacterID:   tok.CharacterID,
			CharacterName: tok.CharacterName,
			ExpiresAt:     tok.ExpiresAt,
			Expired:       tok.Expired(0),
			Scopes:        tok.Scopes,
		})
	}

	out, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode accounts: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

type statusReport struct {
	RateLimits any `json:"rate_limits"`
	Cache      any `json:"cache,omitempty"`
}

func handleStatus(ctx context.Context, _ mcp.CallToolRequest, sc *ServerContext) (*mcp.CallToolResult, error) {
	report := statusReport{RateLimits: sc.Client().RateLimitStatus()}

	if cache := sc.Client().Cache(); cache != nil {
		stats, err := cache.Stats(ctx)
		if err != nil {
			sc.Logger().Warn("cache stats failed", "error", err)
		} else {
			report.Cache = stats
		}
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleCharacter(ctx context.Context, request mcp.CallToolRequest, sc *ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	id, ok := args["character_id"].(float64)
	if !ok || id <= 0 {
		return mcp.NewToolResultError("character_id is required"), nil
	}

	char, err := sc.Client().Characters.Public(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	out, err := json.MarshalIndent(char, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode character: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
