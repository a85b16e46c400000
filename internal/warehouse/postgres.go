package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/insightgraph/config"
	"github.com/mohammad-safakhou/insightgraph/internal/executor"
	"github.com/mohammad-safakhou/insightgraph/internal/helpers"
	"github.com/mohammad-safakhou/insightgraph/provider"
)

// ErrUnsafeQuery is returned when generated SQL is not a single read-only statement.
var ErrUnsafeQuery = errors.New("generated SQL is not a read-only query")

const textToSQLInstruction = `You translate analytics questions into PostgreSQL.
The database has one table:
  regional_sales(quarter TEXT, region TEXT, product TEXT, revenue NUMERIC, growth_pct NUMERIC, impact TEXT)
growth_pct is the quarter-over-quarter change in percent; impact is one of High, Mid, Low.
Write a single SELECT statement that answers the question. Respond with JSON only: {"sql": "SELECT ..."}`

var writeKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|copy|merge|call|vacuum)\b`)

// PostgresExecutor turns questions into SQL with the language capability and runs them read-only.
type PostgresExecutor struct {
	db      *sql.DB
	llm     provider.LLM
	maxRows int
	logger  *log.Logger
}

var _ executor.QueryExecutor = (*PostgresExecutor)(nil)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresExecutor(db *sql.DB, llm provider.LLM, maxRows int, logger *log.Logger) *PostgresExecutor {
	if maxRows <= 0 {
		maxRows = config.DefaultWarehouseMaxRows
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[WAREHOUSE] ", log.LstdFlags)
	}
	return &PostgresExecutor{db: db, llm: llm, maxRows: maxRows, logger: logger}
}

func (p *PostgresExecutor) ExecuteQuery(ctx context.Context, query string) (executor.QueryResult, error) {
	stmt, err := p.translate(ctx, query)
	if err != nil {
		return executor.QueryResult{}, err
	}
	p.logger.Printf("running %q", stmt)
	return p.run(ctx, stmt)
}

func (p *PostgresExecutor) translate(ctx context.Context, question string) (string, error) {
	reply, err := p.llm.Complete(ctx, provider.Conversation(textToSQLInstruction, question), provider.CompleteOptions{JSON: true})
	if err != nil {
		return "", fmt.Errorf("text to sql: %w", err)
	}
	var out struct {
		SQL string `json:"sql"`
	}
	if err := helpers.DecodeJSON(reply, &out); err != nil {
		return "", fmt.Errorf("text to sql reply: %w", err)
	}
	return SanitizeSelect(out.SQL)
}

// SanitizeSelect accepts a single SELECT (or WITH ... SELECT) statement and strips trailing semicolons.
func SanitizeSelect(stmt string) (string, error) {
	stmt = strings.TrimRight(strings.TrimSpace(stmt), "; \n\t")
	if stmt == "" {
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeQuery)
	}
	if strings.Contains(stmt, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrUnsafeQuery)
	}
	lower := strings.ToLower(stmt)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return "", fmt.Errorf("%w: must start with SELECT or WITH", ErrUnsafeQuery)
	}
	if kw := writeKeyword.FindString(stmt); kw != "" {
		return "", fmt.Errorf("%w: contains %s", ErrUnsafeQuery, strings.ToUpper(kw))
	}
	return stmt, nil
}

func (p *PostgresExecutor) run(ctx context.Context, stmt string) (executor.QueryResult, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return executor.QueryResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", stmt, p.maxRows))
	if err != nil {
		return executor.QueryResult{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return executor.QueryResult{}, fmt.Errorf("columns: %w", err)
	}
	result := executor.QueryResult{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return executor.QueryResult{}, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return executor.QueryResult{}, fmt.Errorf("rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return executor.QueryResult{}, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}
