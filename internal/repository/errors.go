package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
	"github.com/noah-isme/attendance-ledger-api/pkg/storage"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("repository: not found")

// classifyStorageError maps file store failures onto the ledger error surface.
// Errors already typed by the decoder (corruption) pass through unchanged.
func classifyStorageError(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) || errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, storage.ErrLockTimeout) {
		return appErrors.WrapAs(appErrors.ErrBusy, err, op+": lock wait timed out")
	}
	return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, op+": storage unavailable")
}

// corrupt marks a decode failure. Callers must not write after seeing it.
func corrupt(err error, op string) error {
	return appErrors.WrapAs(appErrors.ErrStorageCorrupt, err, op+": stored data cannot be decoded")
}

// classifyPostgresError maps driver failures onto the ledger error surface.
func classifyPostgresError(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) || errors.Is(err, ErrNotFound) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.LockNotAvailable,
			pgerrcode.QueryCanceled,
			pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.TooManyConnections:
			return appErrors.WrapAs(appErrors.ErrBusy, err, op+": database busy")
		case pgerrcode.DataCorrupted, pgerrcode.IndexCorrupted:
			return corrupt(err, op)
		default:
			return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, op+": database error")
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return appErrors.WrapAs(appErrors.ErrBusy, err, op+": request deadline reached")
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, op+": database unreachable")
	}
	return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, op+": database error")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}
