package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/observelabs/logsearch-mcp/internal/domain"
	"github.com/observelabs/logsearch-mcp/internal/ratelimit"
	"github.com/observelabs/logsearch-mcp/internal/sanitize"
	"github.com/observelabs/logsearch-mcp/internal/usecase"
)

// MockQueryExecutor is a mock implementation of the QueryExecutor interface.
type MockQueryExecutor struct {
	mock.Mock
}

func (m *MockQueryExecutor) Execute(ctx context.Context, req *domain.SearchRequest) (*domain.QueryResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueryResult), args.Error(1)
}

type fixture struct {
	uc       *usecase.SearchLogsUseCase
	executor *MockQueryExecutor
	logBuf   *bytes.Buffer
}

func newFixture(t *testing.T, configErr error) *fixture {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	executor := new(MockQueryExecutor)
	limiter := ratelimit.New(10, time.Minute, logger)
	uc := usecase.NewSearchLogsUseCase(limiter, executor, sanitize.New(logger), configErr, logger)
	return &fixture{uc: uc, executor: executor, logBuf: buf}
}

func resultText(t *testing.T, res *mcp.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(res.Content), i)
	tc, ok := res.Content[i].(mcp.TextContent)
	require.True(t, ok, "content %d is not text", i)
	return tc.Text
}

func sampleResult() *domain.QueryResult {
	return &domain.QueryResult{Tables: []domain.Table{{
		Name:    "PrimaryResult",
		Columns: []domain.Column{{Name: "TimeGenerated", Type: "datetime"}, {Name: "Message", Type: "string"}},
		Rows:    [][]any{{"2025-06-01T00:00:00Z", "ok"}, {"2025-06-01T00:01:00Z", "ok"}},
	}}}
}

func TestExecute_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.On("Execute", mock.Anything, &domain.SearchRequest{
		SearchTerm: "ORD-12345",
		Limit:      50,
		Duration:   "P7D",
	}).Return(sampleResult(), nil).Once()

	res := f.uc.Execute(context.Background(), "ip:1.2.3.4", map[string]any{"searchTerm": "ORD-12345"})

	assert.False(t, res.IsError)
	assert.Equal(t, "Retrieved 2 entries for term ORD-12345", resultText(t, res, 0))
	assert.Contains(t, resultText(t, res, 1), "PrimaryResult")
	f.executor.AssertExpectations(t)
}

func TestExecute_ExplicitLimitAndDuration(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.On("Execute", mock.Anything, &domain.SearchRequest{
		SearchTerm: "term",
		Limit:      100,
		Duration:   "P30D",
	}).Return(sampleResult(), nil).Once()

	res := f.uc.Execute(context.Background(), "c", map[string]any{
		"searchTerm": "term",
		"limit":      float64(100),
		"duration":   "P30D",
	})
	assert.False(t, res.IsError)
	f.executor.AssertExpectations(t)
}

func TestExecute_ValidationFailureReturnedVerbatim(t *testing.T) {
	f := newFixture(t, nil)

	res := f.uc.Execute(context.Background(), "c", map[string]any{"searchTerm": "has space"})

	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res, 0), "searchTerm may only contain")
	f.executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestExecute_QueryFailureGeneralized(t *testing.T) {
	f := newFixture(t, nil)
	cause := errors.New("dial tcp: connection refused")
	f.executor.On("Execute", mock.Anything, mock.Anything).
		Return(nil, domain.NewQueryError("query request failed", cause)).Once()

	res := f.uc.Execute(context.Background(), "c", map[string]any{"searchTerm": "term"})

	assert.True(t, res.IsError)
	assert.Equal(t, sanitize.GenericMessage, resultText(t, res, 0))
	assert.NotContains(t, resultText(t, res, 0), "connection refused")

	// Full detail lands in the operational log exactly once.
	assert.Equal(t, 1, strings.Count(f.logBuf.String(), "Tool call failed."))
	assert.Contains(t, f.logBuf.String(), "connection refused")
}

func TestExecute_RateLimit(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.On("Execute", mock.Anything, mock.Anything).Return(sampleResult(), nil)

	const client = "ip:1.2.3.4"
	args := map[string]any{"searchTerm": "term"}
	for i := 1; i <= 10; i++ {
		res := f.uc.Execute(context.Background(), client, args)
		assert.False(t, res.IsError, "call %d should be admitted", i)
	}

	res := f.uc.Execute(context.Background(), client, args)
	assert.True(t, res.IsError)
	assert.Equal(t, usecase.RateLimitMessage, resultText(t, res, 0))
	f.executor.AssertNumberOfCalls(t, "Execute", 10)

	// Other clients are unaffected.
	res = f.uc.Execute(context.Background(), "ip:5.6.7.8", args)
	assert.False(t, res.IsError)
}

func TestExecute_RateLimitBeforeValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.On("Execute", mock.Anything, mock.Anything).Return(sampleResult(), nil)

	args := map[string]any{"searchTerm": "term"}
	for i := 0; i < 10; i++ {
		f.uc.Execute(context.Background(), "c", args)
	}

	// Once over the limit, even invalid input gets the rate-limit
	// message: the validator is never consulted.
	res := f.uc.Execute(context.Background(), "c", map[string]any{"searchTerm": "!!!"})
	assert.True(t, res.IsError)
	assert.Equal(t, usecase.RateLimitMessage, resultText(t, res, 0))
}

func TestExecute_ConfigurationErrorDisclosed(t *testing.T) {
	configErr := domain.NewConfigurationError("missing required configuration: LOGSEARCH_AZURE_TENANT_ID")
	f := newFixture(t, configErr)

	res := f.uc.Execute(context.Background(), "c", map[string]any{"searchTerm": "term"})

	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res, 0), "LOGSEARCH_AZURE_TENANT_ID")
	f.executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestExecute_SearchTermNeverLogged(t *testing.T) {
	const term = "ORD-super-secret-42"

	f := newFixture(t, nil)
	f.executor.On("Execute", mock.Anything, mock.Anything).
		Return(sampleResult(), nil).Once().
		On("Execute", mock.Anything, mock.Anything).
		Return(nil, domain.NewQueryError("query failed", errors.New("boom"))).Once()

	f.uc.Execute(context.Background(), "c", map[string]any{"searchTerm": term})
	f.uc.Execute(context.Background(), "c", map[string]any{"searchTerm": term})

	logged := f.logBuf.String()
	assert.NotContains(t, logged, term)
	assert.Contains(t, logged, "REDACTED")
}

func TestHandle_UsesContextIdentity(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.On("Execute", mock.Anything, mock.Anything).Return(sampleResult(), nil)

	req := mcp.CallToolRequest{}
	req.Params.Name = usecase.ToolName
	req.Params.Arguments = map[string]any{"searchTerm": "term"}

	res, err := f.uc.Handle(context.Background(), req)
	assert.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, f.logBuf.String(), "client_id=stdio")
}
