package ledger

import (
	"github.com/pkg/errors"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

// PersistenceError reports a failed portfolio save. It matches domain.ErrPersistence.
type PersistenceError struct {
	Key string
	Err error
	// Applied is true when the mutation was committed in memory anyway.
	Applied bool
}

func (e *PersistenceError) Error() string {
	if e.Applied {
		return "portfolio " + e.Key + " updated but not saved: " + e.Err.Error()
	}
	return "portfolio " + e.Key + " could not be saved: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == domain.ErrPersistence
}

// IsPersistenceOnly reports whether err means the mutation was applied and only the save failed.
func IsPersistenceOnly(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Applied
}
