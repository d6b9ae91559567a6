package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleState means a conditional update matched no row: the record is
	// missing or no longer in the expected status.
	ErrStaleState = errors.New("record not in expected state")
	// ErrActivePaymentExists is returned when the offer already has a pending
	// or succeeded payment.
	ErrActivePaymentExists = errors.New("offer already has an active payment")
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func staleOnNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStaleState
	}
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
