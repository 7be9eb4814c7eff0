package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"id": i + 1}
	}
	return rows
}

// --- fake RowSource ---

type fakeSource struct {
	rows     []map[string]any
	pos      int
	rowErrAt int // 1-based row whose Row() fails; 0 = never
	rowErr   error
	iterErr  error
	closeErr error
	panicAt  int // 1-based row whose Row() panics; 0 = never
	closes   int
	rowCalls int
}

func (f *fakeSource) Next() bool {
	if f.pos >= len(f.rows) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeSource) Row() (map[string]any, error) {
	f.rowCalls++
	if f.panicAt != 0 && f.pos == f.panicAt {
		panic("driver exploded")
	}
	if f.rowErrAt != 0 && f.pos == f.rowErrAt {
		return nil, f.rowErr
	}
	return f.rows[f.pos-1], nil
}

func (f *fakeSource) Err() error { return f.iterErr }

func (f *fakeSource) Close() error {
	f.closes++
	return f.closeErr
}

// --- fake QueryExecutor ---

type fakeExecutor struct {
	mu      sync.Mutex
	src     *fakeSource
	openErr error
	calls   int
	lastSQL string
}

func (e *fakeExecutor) Open(_ context.Context, sql string) (port.RowSource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastSQL = sql
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.src, nil
}

func (e *fakeExecutor) System() string { return "fake" }

// --- recording auditor and instrumentation ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

type recordingInstrumentation struct {
	port.NoopInstrumentation
	rejections  []domain.Rule
	truncations int
	errors      int
	queries     int
}

func (r *recordingInstrumentation) IncrementRejections(_ context.Context, rule domain.Rule) {
	r.rejections = append(r.rejections, rule)
}

func (r *recordingInstrumentation) IncrementTruncations(context.Context) { r.truncations++ }
func (r *recordingInstrumentation) IncrementQueryErrors(context.Context) { r.errors++ }
func (r *recordingInstrumentation) IncrementQueryCount(context.Context)  { r.queries++ }
