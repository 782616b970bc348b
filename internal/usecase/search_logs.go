package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/observelabs/logsearch-mcp/internal/domain"
	"github.com/observelabs/logsearch-mcp/internal/identity"
	"github.com/observelabs/logsearch-mcp/internal/metrics"
	"github.com/observelabs/logsearch-mcp/internal/ratelimit"
	"github.com/observelabs/logsearch-mcp/internal/sanitize"
)

// ToolName is the single operation exposed over both transports.
const ToolName = "searchLogs"

// RateLimitMessage is the fixed response for rejected callers.
const RateLimitMessage = "Rate limit exceeded. Please wait before making more requests."

// redactedTerm replaces the search term in every log line. Terms can carry
// business-sensitive identifiers (order numbers, account references) that
// must not land in log storage.
const redactedTerm = "[REDACTED]"

// SearchLogsUseCase orchestrates one tool call: identify client, check the
// rate limit, validate input, invoke the query capability, sanitize the
// outcome and produce exactly one response envelope.
type SearchLogsUseCase struct {
	limiter   *ratelimit.Limiter
	executor  QueryExecutor
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger

	// configErr records a startup configuration failure. The network
	// transport keeps serving so operators can observe the failure; every
	// tool call then short-circuits to the configuration message.
	configErr error
}

// NewSearchLogsUseCase creates the pipeline. configErr may be nil.
func NewSearchLogsUseCase(
	limiter *ratelimit.Limiter,
	executor QueryExecutor,
	sanitizer *sanitize.Sanitizer,
	configErr error,
	logger *slog.Logger,
) *SearchLogsUseCase {
	return &SearchLogsUseCase{
		limiter:   limiter,
		executor:  executor,
		sanitizer: sanitizer,
		configErr: configErr,
		logger:    logger.With("usecase", "SearchLogs"),
	}
}

// Tool returns the MCP declaration of the searchLogs operation.
func Tool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Search request telemetry entries by term. Returns matching rows from the configured log-analytics workspace."),
		mcp.WithString("searchTerm",
			mcp.Required(),
			mcp.Description("Term to search for (1-100 characters; letters, digits, hyphen, underscore, dot)."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries to return (1-1000, default 50)."),
		),
		mcp.WithString("duration",
			mcp.Description("ISO-8601 lookback duration with day and/or hour components (default \"P7D\")."),
		),
	)
}

// Handle adapts the pipeline to the mcp-go handler signature. The client
// identity is recovered from the context, where the transport adapter
// placed it; the stdio transport attaches none and collapses to one
// bucket. The error return is always nil: every failure is expressed as an
// error envelope, never as a dropped call.
func (uc *SearchLogsUseCase) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return uc.Execute(ctx, identity.FromContext(ctx), request.GetArguments()), nil
}

// Execute runs the admission pipeline for one call, short-circuiting on
// the first failed gate.
func (uc *SearchLogsUseCase) Execute(ctx context.Context, clientID string, args map[string]any) *mcp.CallToolResult {
	ctx, span := otel.Tracer("logsearch-mcp/usecase").Start(ctx, "searchLogs")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	log := uc.logger.With(slog.String("client_id", clientID), slog.String("search_term", redactedTerm))

	if uc.configErr != nil {
		return mcp.NewToolResultError(uc.sanitizer.Sanitize(uc.configErr, "startup configuration"))
	}

	if !uc.limiter.Check(clientID) {
		log.Warn("Rate limit exceeded.")
		metrics.ToolCalls.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		return mcp.NewToolResultError(RateLimitMessage)
	}

	req, err := domain.ParseSearchRequest(args)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return mcp.NewToolResultError(uc.sanitizer.Sanitize(err, "input validation"))
	}

	log.Info("Executing log search.", slog.Int("limit", req.Limit), slog.String("duration", req.Duration))

	timer := metrics.NewQueryTimer()
	result, err := uc.executor.Execute(ctx, req)
	timer.ObserveDuration()
	if err != nil {
		span.RecordError(err)
		metrics.ToolCalls.WithLabelValues(metrics.OutcomeError).Inc()
		return mcp.NewToolResultError(uc.sanitizer.Sanitize(err, "query execution"))
	}

	metrics.ToolCalls.WithLabelValues(metrics.OutcomeOK).Inc()
	log.Info("Log search completed.", slog.Int("rows", result.RowCount()))

	summary := fmt.Sprintf("Retrieved %d entries for term %s", result.RowCount(), req.SearchTerm)
	payload, err := json.Marshal(result)
	if err != nil {
		// Rows came back but cannot be serialized; treat as a downstream
		// failure so the caller never gets a half-built envelope.
		metrics.ToolCalls.WithLabelValues(metrics.OutcomeError).Inc()
		return mcp.NewToolResultError(uc.sanitizer.Sanitize(
			domain.NewQueryError("failed to encode query result", err), "result encoding"))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(summary),
			mcp.NewTextContent(string(payload)),
		},
	}
}

// NewToolServer builds a protocol-handler instance with the searchLogs
// tool bound. The stdio transport owns one for the whole process; the
// network transport mints one per session so no tool state is shared
// across sessions.
func NewToolServer(uc *SearchLogsUseCase, version string) *mcpGoServer.MCPServer {
	srv := mcpGoServer.NewMCPServer("logsearch-mcp", version)
	srv.AddTool(Tool(), uc.Handle)
	return srv
}
