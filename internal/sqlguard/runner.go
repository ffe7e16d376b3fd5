package sqlguard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunnerClosed is returned by a SerialRunner after Close.
var ErrRunnerClosed = errors.New("query runner closed")

// Runner executes a capped, validated query and returns the raw rows plus the
// column names in result order.
type Runner interface {
	Query(ctx context.Context, query string, params []any) (rows [][]any, columns []string, err error)
}

// DBRunner runs queries directly on a database handle.
type DBRunner struct {
	db *sql.DB
}

// NewDBRunner wraps db as a Runner.
func NewDBRunner(db *sql.DB) *DBRunner {
	return &DBRunner{db: db}
}

func (r *DBRunner) Query(ctx context.Context, query string, params []any) ([][]any, []string, error) {
	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("reading columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, columns, nil
}

type serialRequest struct {
	ctx    context.Context
	query  string
	params []any
	resp   chan serialResult
}

type serialResult struct {
	rows    [][]any
	columns []string
	err     error
}

// SerialRunner funnels all queries through one dedicated goroutine. Used when
// the caller sits in a concurrency context where direct database access must
// be serialized; callers block only on their own result.
type SerialRunner struct {
	requests chan serialRequest
	done     chan struct{}
}

// NewSerialRunner starts the worker goroutine executing through inner.
func NewSerialRunner(inner Runner) *SerialRunner {
	s := &SerialRunner{
		requests: make(chan serialRequest),
		done:     make(chan struct{}),
	}
	go s.loop(inner)
	return s
}

func (s *SerialRunner) loop(inner Runner) {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			rows, columns, err := inner.Query(req.ctx, req.query, req.params)
			req.resp <- serialResult{rows: rows, columns: columns, err: err}
		}
	}
}

func (s *SerialRunner) Query(ctx context.Context, query string, params []any) ([][]any, []string, error) {
	req := serialRequest{
		ctx:    ctx,
		query:  query,
		params: params,
		resp:   make(chan serialResult, 1),
	}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-s.done:
		return nil, nil, ErrRunnerClosed
	}
	select {
	case res := <-req.resp:
		return res.rows, res.columns, res.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Close stops the worker goroutine. In-flight queries finish; later calls
// fail with ErrRunnerClosed.
func (s *SerialRunner) Close() {
	close(s.done)
}
