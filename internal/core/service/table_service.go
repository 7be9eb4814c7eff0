package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
)

// columnType accepts plain type names with an optional precision and array
// suffix, e.g. "varchar(255)", "numeric(10, 2)", "double precision", "text[]".
var columnType = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(?:\(\s*\d+(?:\s*,\s*\d+)?\s*\))?(?:\[\])?$`)

// TableService serves the structured table tools. Write operations are refused
// in read-only mode before anything reaches the database.
type TableService struct {
	explorer port.SchemaExplorer
	writer   port.TableWriter
	auditor  port.QueryAuditor
	logger   *slog.Logger
	readOnly bool
}

func NewTableService(explorer port.SchemaExplorer, writer port.TableWriter, auditor port.QueryAuditor, logger *slog.Logger, readOnly bool) *TableService {
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TableService{
		explorer: explorer,
		writer:   writer,
		auditor:  auditor,
		logger:   logger,
		readOnly: readOnly,
	}
}

// ReadOnly reports whether write operations are refused.
func (s *TableService) ReadOnly() bool { return s.readOnly }

func (s *TableService) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	return s.explorer.ListTables(ctx)
}

func (s *TableService) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	if strings.TrimSpace(tableName) == "" {
		return nil, fmt.Errorf("%w: table_name is required", domain.ErrInvalidInput)
	}
	return s.explorer.DescribeTable(ctx, schema, tableName)
}

func (s *TableService) CreateTable(ctx context.Context, table port.TableRef, columns []port.ColumnDef) error {
	if err := s.checkWrite(table); err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", domain.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(columns))
	for i, col := range columns {
		if strings.TrimSpace(col.Name) == "" {
			return fmt.Errorf("%w: column %d has no name", domain.ErrInvalidInput, i)
		}
		if !columnType.MatchString(strings.TrimSpace(col.Type)) {
			return fmt.Errorf("%w: column %q has an invalid type %q", domain.ErrInvalidInput, col.Name, col.Type)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", domain.ErrInvalidInput, col.Name)
		}
		seen[col.Name] = struct{}{}
	}

	return s.audited(ctx, "create_table", table, func() (int64, error) {
		return 0, s.writer.CreateTable(ctx, table, columns)
	})
}

func (s *TableService) DropTable(ctx context.Context, table port.TableRef) error {
	if err := s.checkWrite(table); err != nil {
		return err
	}
	return s.audited(ctx, "drop_table", table, func() (int64, error) {
		return 0, s.writer.DropTable(ctx, table)
	})
}

// InsertRow inserts one row and returns the affected row count.
func (s *TableService) InsertRow(ctx context.Context, table port.TableRef, values map[string]any) (int64, error) {
	if err := s.checkWrite(table); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: values must not be empty", domain.ErrInvalidInput)
	}
	var affected int64
	err := s.audited(ctx, "insert_data", table, func() (int64, error) {
		n, err := s.writer.InsertRow(ctx, table, values)
		affected = n
		return n, err
	})
	return affected, err
}

// UpdateRows updates the rows matching every equality in where. An empty
// where is refused so that a call can never rewrite a whole table.
func (s *TableService) UpdateRows(ctx context.Context, table port.TableRef, values, where map[string]any) (int64, error) {
	if err := s.checkWrite(table); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: values must not be empty", domain.ErrInvalidInput)
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("%w: where must not be empty", domain.ErrInvalidInput)
	}
	var affected int64
	err := s.audited(ctx, "update_data", table, func() (int64, error) {
		n, err := s.writer.UpdateRows(ctx, table, values, where)
		affected = n
		return n, err
	})
	return affected, err
}

func (s *TableService) checkWrite(table port.TableRef) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	if s.writer == nil {
		return fmt.Errorf("%w: no writer configured", domain.ErrReadOnly)
	}
	if strings.TrimSpace(table.Name) == "" {
		return fmt.Errorf("%w: table_name is required", domain.ErrInvalidInput)
	}
	return nil
}

func (s *TableService) audited(ctx context.Context, op string, table port.TableRef, fn func() (int64, error)) error {
	start := time.Now()
	n, err := fn()
	durationMS := time.Since(start).Milliseconds()

	s.auditor.Record(ctx, port.AuditEntry{
		Tool:         op,
		SQL:          qualified(table),
		Accepted:     true,
		RowsReturned: int(n),
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		s.logger.ErrorContext(ctx, "table operation failed",
			slog.String("db.operation.name", op),
			slog.String("db.collection.name", qualified(table)),
			slog.String("error.type", errorType(err)),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.InfoContext(ctx, "table operation",
		slog.String("db.operation.name", op),
		slog.String("db.collection.name", qualified(table)),
		slog.Int64("db.response.rows", n),
	)
	return nil
}

func qualified(t port.TableRef) string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
