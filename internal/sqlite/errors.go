package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/notedeck/notedeck/pkg/types"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// classify maps a native engine error to its failure category. Constraint
// violations become ErrIntegrity; any other engine-reported failure (lock
// contention, disk error, missing table, syntax error) is operational;
// errors raised outside the engine, such as parameter binding mistakes,
// indicate a bad statement.
func classify(err error) error {
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return types.ErrIntegrity
		}
		return types.ErrOperational
	}
	return types.ErrInvalidQuery
}

// wrapOp tags a native error with its failure category under an operation
// label, preserving the original cause. Errors already carrying one of this
// package's categories, and pool conditions, pass through unclassified.
func wrapOp(op string, err error) error {
	for _, sentinel := range []error{
		types.ErrWriteTimeout,
		types.ErrPoolClosed,
		types.ErrNotFound,
		types.ErrIntegrity,
		types.ErrOperational,
		types.ErrInvalidQuery,
		types.ErrInvalidIdentifier,
		types.ErrInvalidRecordID,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, classify(err), err)
}
