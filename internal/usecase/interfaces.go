package usecase

import (
	"context"

	"github.com/observelabs/logsearch-mcp/internal/domain"
)

// QueryExecutor is the external query capability. Implementations accept a
// validated request and return tabular rows, or fail. Authentication and
// the query wire protocol are entirely the implementation's concern; this
// core only constructs one call and awaits one result or one failure.
type QueryExecutor interface {
	Execute(ctx context.Context, req *domain.SearchRequest) (*domain.QueryResult, error)
}
