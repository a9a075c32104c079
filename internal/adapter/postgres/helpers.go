package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/switchyard-ai/switchyard/internal/domain"
)

// scannable is the scan surface shared by pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// notFoundWrap translates pgx.ErrNoRows into domain.ErrNotFound under the
// formatted message; every other error is wrapped unchanged.
func notFoundWrap(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
