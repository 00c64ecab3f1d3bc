package tuition

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound     = errors.New("installment not found")
	ErrInvalidState = errors.New("installment is not pending")
	// ErrPeriodExists is returned when a student already has an installment for a period.
	ErrPeriodExists = errors.New("an installment for this period already exists")
	ErrStaleAmounts = errors.New("amounts do not match the amounts due at the payment date")
)

// StateError describes an operation attempted on an installment that is no longer pending.
type StateError struct {
	ID     string
	Status Status
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s installment %s: status is %s", e.Op, e.ID, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// IsInvalidState reports whether err was caused by a non-pending installment.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
