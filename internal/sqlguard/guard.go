// Package sqlguard lets the agent run read-only analytical queries against
// the sensor database. It is a structural allowlist (must be a SELECT) plus a
// content denylist, deliberately conservative: a false reject is acceptable, a
// false accept is not. It is not a SQL parser.
package sqlguard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// ExecRowCap bounds how many rows a query may return.
	ExecRowCap = 50
	// RenderRowCap bounds how many rows FormatResults renders. Always at or
	// below ExecRowCap.
	RenderRowCap = 20

	// NoResults is the fixed sentinel for an empty result set.
	NoResults = "Nenhum resultado encontrado."

	msgRejected = "Erro: Apenas queries SELECT são permitidas. Query rejeitada por motivos de segurança."
	msgCapNote  = "\n\n📝 Nota: LIMIT 50 foi aplicado automaticamente para otimizar a performance."
)

// forbiddenFragments is matched as substrings against the lower-cased query.
// Covers mutation verbs, stored-procedure prefixes, comment injection, file
// access, catalog introspection and session manipulation.
var forbiddenFragments = []string{
	"insert",
	"update",
	"delete",
	"drop",
	"create",
	"alter",
	"truncate",
	"exec",
	"execute",
	"sp_",
	"xp_",
	"--",
	";--",
	"into outfile",
	"load_file",
	"information_schema",
	"pg_",
	"current_setting",
	"set ",
	"show ",
	"copy ",
	"\\",
	"pg_read_file",
	"pg_ls_dir",
}

// protectedTables hold user PII and assistant state. The agent queries sensor
// data only, so any mention of these rejects the statement.
var protectedTables = []string{
	"users",
	"interactions",
	"chat_messages",
	"kb_docs",
	"kb_vectors",
	"jobs",
}

// Validate reports whether query is an acceptable read-only statement.
func Validate(query string) bool {
	clean := strings.ToLower(strings.TrimSpace(query))

	if !strings.HasPrefix(clean, "select") {
		return false
	}
	for _, fragment := range forbiddenFragments {
		if strings.Contains(clean, fragment) {
			return false
		}
	}
	for _, table := range protectedTables {
		if strings.Contains(clean, table) {
			return false
		}
	}
	// More than one statement separator means a second statement.
	if strings.Count(clean, ";") > 1 {
		return false
	}
	// UNION only inside a parenthesized subquery.
	if strings.Contains(clean, "union") &&
		!(strings.Contains(clean, "(") && strings.Contains(clean, ")")) {
		return false
	}
	return true
}

// ApplyRowCap appends LIMIT 50 unless the query already carries a LIMIT or is
// a count-only aggregate, which returns a single row by construction.
func ApplyRowCap(query string) string {
	clean := strings.ToLower(strings.TrimSpace(query))

	if strings.Contains(clean, "limit") {
		return query
	}
	if strings.HasPrefix(clean, "select count(") {
		return query
	}
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(query), ";"), ExecRowCap)
}

// FormatResults renders rows as a pipe-joined table with a header, a dash
// separator and a trailing count line. Rendering stops at RenderRowCap rows;
// the trailer says how many were omitted.
func FormatResults(rows [][]any, columns []string) string {
	if len(rows) == 0 {
		return NoResults
	}

	display := rows
	if len(display) > RenderRowCap {
		display = display[:RenderRowCap]
	}

	header := strings.Join(columns, " | ")
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", len(header)))
	b.WriteByte('\n')

	for _, row := range display {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = renderValue(v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteByte('\n')
	}

	if len(rows) > RenderRowCap {
		fmt.Fprintf(&b, "\n📊 Mostrando %d de %d resultado(s)", RenderRowCap, len(rows))
	} else {
		fmt.Fprintf(&b, "\n📊 Total: %d resultado(s)", len(rows))
	}
	return b.String()
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Guard runs the full validate, cap, execute, format pipeline. Every failure
// comes back as a descriptive string because the agent only consumes text.
type Guard struct {
	runner Runner
	logger *slog.Logger
}

// NewGuard creates a Guard executing through runner.
func NewGuard(runner Runner, logger *slog.Logger) *Guard {
	return &Guard{runner: runner, logger: logger}
}

// Run validates, caps, executes and formats query. Never returns an error;
// rejections and execution failures are rendered into the returned text.
func (g *Guard) Run(ctx context.Context, query string, params []any) string {
	if !Validate(query) {
		g.logger.Warn("query rejected", "query", query)
		return msgRejected
	}

	final := ApplyRowCap(query)
	if final != query {
		g.logger.Debug("row cap applied", "query", final)
	}

	rows, columns, err := g.runner.Query(ctx, final, params)
	if err != nil {
		g.logger.Error("query failed", "query", final, "error", err)
		return fmt.Sprintf("Erro ao executar query: %v", err)
	}
	g.logger.Info("query executed", "rows", len(rows))

	text := FormatResults(rows, columns)
	if final != query {
		text += msgCapNote
	}
	return text
}
