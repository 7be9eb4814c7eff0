package port

import (
	"context"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
)

// AuditEntry represents a single auditable tool event.
type AuditEntry struct {
	Tool          string
	SQL           string
	Accepted      bool
	Rule          domain.Rule // rejection rule, empty when accepted
	RowsReturned  int
	TotalObserved int
	Truncated     bool
	DurationMS    int64
	Err           error
}

// QueryAuditor records audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
