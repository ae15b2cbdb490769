package server

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/evegate/internal/instrumentation"
)

// ToolHandler is the mcp-go handler signature tools implement.
type ToolHandler = mcpserver.ToolHandlerFunc

// InstrumentedToolHandler wraps a tool handler with a server span, tool
// metrics and audit logging. Handlers that report misuse through
// NewToolResultError count as errors too.
//
// Usage:
//
//	s.AddTool(myTool, InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)

		characterID := characterFromArgs(request.GetArguments())
		if characterID > 0 {
			invocation.WithCharacter(characterID, "")
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if err != nil {
				invocation.CompleteWithError(err)
				instrumentation.SetSpanError(span, err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		if metrics != nil {
			if characterID > 0 {
				metrics.RecordToolInvocationWithCharacter(ctx, toolName, status, characterID, duration)
			} else {
				metrics.RecordToolInvocation(ctx, toolName, status, duration)
			}
		}
		if auditLogger != nil {
			auditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}

// characterFromArgs pulls the character id out of tool arguments. JSON
// numbers arrive as float64; zero means no character given.
func characterFromArgs(args map[string]interface{}) int64 {
	for _, key := range []string{"character", "character_id"} {
		if v, ok := args[key].(float64); ok && v > 0 {
			return int64(v)
		}
	}
	return 0
}
