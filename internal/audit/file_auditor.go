package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record.
type fileEntry struct {
	Timestamp     string  `json:"ts"`
	Tool          string  `json:"tool"`
	SQL           string  `json:"sql"`
	Accepted      bool    `json:"accepted"`
	Rule          string  `json:"rule,omitempty"`
	RowsReturned  int     `json:"rows_returned"`
	TotalObserved int     `json:"total_observed"`
	Truncated     bool    `json:"truncated"`
	DurationMS    int64   `json:"duration_ms"`
	Error         *string `json:"error"`
}

// FileAuditor writes audit entries as NDJSON (one JSON object per line) to a file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		Timestamp:     a.now().UTC().Format(time.RFC3339),
		Tool:          entry.Tool,
		SQL:           entry.SQL,
		Accepted:      entry.Accepted,
		Rule:          string(entry.Rule),
		RowsReturned:  entry.RowsReturned,
		TotalObserved: entry.TotalObserved,
		Truncated:     entry.Truncated,
		DurationMS:    entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the request for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
