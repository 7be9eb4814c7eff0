package postgres

import (
	"errors"
	"fmt"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes that name an object the engine could not resolve.
var objectNotFoundCodes = map[string]bool{
	"42P01": true, // undefined_table
	"42703": true, // undefined_column
	"3F000": true, // invalid_schema_name
	"42883": true, // undefined_function
}

const codeQueryCanceled = "57014"

// classify maps PostgreSQL errors onto domain categories. Errors it does not
// recognise are returned unchanged.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case objectNotFoundCodes[pgErr.Code]:
		return &domain.ObjectNotFoundError{Detail: pgErr.Message}
	case pgErr.Code == codeQueryCanceled:
		return fmt.Errorf("%w: %s", domain.ErrQueryTimeout, pgErr.Message)
	default:
		return err
	}
}
