package warehouse

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/insightgraph/internal/executor"
)

// SalesColumns is the column order of regional sales rows.
var SalesColumns = []string{"region", "product", "growth", "impact"}

// StaticExecutor answers every structured query with the fixed Q3 regional sales table.
type StaticExecutor struct {
	logger *log.Logger
}

var _ executor.QueryExecutor = (*StaticExecutor)(nil)

func NewStaticExecutor(logger *log.Logger) *StaticExecutor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WAREHOUSE] ", log.LstdFlags)
	}
	return &StaticExecutor{logger: logger}
}

func (s *StaticExecutor) ExecuteQuery(ctx context.Context, query string) (executor.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return executor.QueryResult{}, err
	}
	s.logger.Printf("static dataset answering %q", query)
	return executor.QueryResult{Columns: SalesColumns, Rows: Q3Sales()}, nil
}

// Q3Sales returns the regional sales rows used when no database is configured.
func Q3Sales() []map[string]interface{} {
	return []map[string]interface{}{
		{"region": "East China", "product": "Flagship Phone Series", "growth": "-28.4%", "impact": "High"},
		{"region": "East China", "product": "Smart Wearables", "growth": "-12.1%", "impact": "Mid"},
		{"region": "Central China", "product": "Flagship Phone Series", "growth": "-5.2%", "impact": "Low"},
	}
}
