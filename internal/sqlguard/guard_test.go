package sqlguard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"SELECT * FROM sensors_sensordata", true},
		{"  select timestamp, temperatura from sensors_sensordata where ph > ?  ", true},
		{"SELECT COUNT(*) FROM sensors_sensordata", true},
		{"DROP TABLE sensors_sensordata", false},
		{"SELECT * FROM x; DROP TABLE x;", false},
		{"SELECT * FROM pg_user", false},
		{"SELECT * FROM users", false},
		{"SELECT question FROM interactions", false},
		{"INSERT INTO sensors_sensordata VALUES (1)", false},
		{"SELECT name FROM t -- comment", false},
		{"SELECT * FROM t WHERE a = 'b'; SELECT 1; SELECT 2", false},
		{"SELECT a FROM t UNION SELECT b FROM u", false},
		{"SELECT a FROM t WHERE a IN (SELECT b FROM u UNION SELECT c FROM v)", true},
		{"SELECT * FROM information_schema.tables", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Validate(tc.query); got != tc.want {
			t.Errorf("Validate(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestApplyRowCap(t *testing.T) {
	got := ApplyRowCap("SELECT * FROM t")
	if !strings.Contains(got, "LIMIT 50") {
		t.Errorf("expected cap appended, got %q", got)
	}

	unchanged := []string{
		"SELECT * FROM t LIMIT 10",
		"SELECT COUNT(*) FROM t",
	}
	for _, q := range unchanged {
		if got := ApplyRowCap(q); got != q {
			t.Errorf("ApplyRowCap(%q) = %q, want unchanged", q, got)
		}
	}

	// A trailing semicolon must not end up in the middle of the statement.
	got = ApplyRowCap("SELECT * FROM t;")
	if got != "SELECT * FROM t LIMIT 50" {
		t.Errorf("semicolon handling: got %q", got)
	}
}

func TestFormatResults(t *testing.T) {
	rows := [][]any{
		{int64(1), "A"},
		{int64(2), "B"},
	}
	out := FormatResults(rows, []string{"id", "name"})

	if !strings.Contains(out, "id | name") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "1 | A") || !strings.Contains(out, "2 | B") {
		t.Errorf("missing data rows: %q", out)
	}
	if !strings.Contains(out, "Total: 2 resultado(s)") {
		t.Errorf("missing count trailer: %q", out)
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if got := FormatResults(nil, []string{"id"}); got != NoResults {
		t.Errorf("expected sentinel, got %q", got)
	}
}

func TestFormatResultsRenderCap(t *testing.T) {
	rows := make([][]any, 30)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	out := FormatResults(rows, []string{"id"})

	if !strings.Contains(out, "Mostrando 20 de 30 resultado(s)") {
		t.Errorf("missing truncation note: %q", out)
	}
	if strings.Contains(out, "\n25\n") {
		t.Errorf("rendered past the cap: %q", out)
	}
}

func TestFormatResultsNull(t *testing.T) {
	out := FormatResults([][]any{{nil, 6.5}}, []string{"nitrogenio", "ph"})
	if !strings.Contains(out, "NULL | 6.5") {
		t.Errorf("expected NULL rendering, got %q", out)
	}
}

type fakeRunner struct {
	rows    [][]any
	columns []string
	err     error

	gotQuery  string
	gotParams []any
}

func (f *fakeRunner) Query(_ context.Context, query string, params []any) ([][]any, []string, error) {
	f.gotQuery = query
	f.gotParams = params
	return f.rows, f.columns, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardRejectsWithoutExecuting(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGuard(runner, testLogger())

	out := g.Run(context.Background(), "DROP TABLE sensors_sensordata", nil)
	if out != msgRejected {
		t.Errorf("expected rejection message, got %q", out)
	}
	if runner.gotQuery != "" {
		t.Errorf("rejected query reached the runner: %q", runner.gotQuery)
	}
}

func TestGuardCapsAndNotes(t *testing.T) {
	runner := &fakeRunner{
		rows:    [][]any{{int64(1)}},
		columns: []string{"id"},
	}
	g := NewGuard(runner, testLogger())

	out := g.Run(context.Background(), "SELECT id FROM sensors_sensordata", nil)
	if !strings.Contains(runner.gotQuery, "LIMIT 50") {
		t.Errorf("cap not applied before execution: %q", runner.gotQuery)
	}
	if !strings.Contains(out, "LIMIT 50 foi aplicado automaticamente") {
		t.Errorf("missing cap note: %q", out)
	}
}

func TestGuardNoNoteWhenCapPresent(t *testing.T) {
	runner := &fakeRunner{
		rows:    [][]any{{int64(1)}},
		columns: []string{"id"},
	}
	g := NewGuard(runner, testLogger())

	out := g.Run(context.Background(), "SELECT id FROM sensors_sensordata LIMIT 5", nil)
	if strings.Contains(out, "aplicado automaticamente") {
		t.Errorf("unexpected cap note: %q", out)
	}
}

func TestGuardExecutionErrorAsText(t *testing.T) {
	runner := &fakeRunner{err: errors.New("no such table: foo")}
	g := NewGuard(runner, testLogger())

	out := g.Run(context.Background(), "SELECT * FROM foo LIMIT 1", nil)
	if !strings.HasPrefix(out, "Erro ao executar query:") {
		t.Errorf("expected error text, got %q", out)
	}
	if !strings.Contains(out, "no such table") {
		t.Errorf("error detail missing: %q", out)
	}
}

func TestSerialRunnerDelivers(t *testing.T) {
	inner := &fakeRunner{
		rows:    [][]any{{int64(7)}},
		columns: []string{"id"},
	}
	s := NewSerialRunner(inner)
	defer s.Close()

	rows, columns, err := s.Query(context.Background(), "SELECT id FROM t LIMIT 1", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || len(columns) != 1 {
		t.Errorf("unexpected result: rows=%v columns=%v", rows, columns)
	}
}

func TestSerialRunnerConcurrentCallers(t *testing.T) {
	inner := &fakeRunner{columns: []string{"id"}}
	s := NewSerialRunner(inner)
	defer s.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Query(context.Background(), "SELECT 1", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Query: %v", err)
		}
	}
}

func TestSerialRunnerClosed(t *testing.T) {
	s := NewSerialRunner(&fakeRunner{})
	s.Close()

	_, _, err := s.Query(context.Background(), "SELECT 1", nil)
	if !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("expected ErrRunnerClosed, got %v", err)
	}
}
