// Package student exposes the read-only view of student records the ledger depends on.
// Students are owned by the enrollment side of the school; the ledger never mutates them.
package student

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("student not found")

type Student struct {
	ID                  string          `json:"id" db:"id"`
	Unit                string          `json:"unit" db:"unit"`
	Name                string          `json:"name" db:"name"`
	GuardianName        string          `json:"guardian_name" db:"guardian_name"`
	GuardianEmail       string          `json:"guardian_email" db:"guardian_email"`
	DefaultMonthlyValue decimal.Decimal `json:"default_monthly_value" db:"default_monthly_value"`
	IsActive            bool            `json:"is_active" db:"is_active"`
}

// Recipient is the address receipts for this student are sent to.
func (s Student) Recipient() (mail.Address, bool) {
	if s.GuardianEmail == "" {
		return mail.Address{}, false
	}
	name := s.GuardianName
	if name == "" {
		name = s.Name
	}
	return mail.Address{Name: name, Address: s.GuardianEmail}, true
}

type Repository interface {
	// GetStudent returns ErrNotFound when no student with id belongs to unit.
	GetStudent(ctx context.Context, unit, id string) (Student, error)
	// QueryStudents returns the unit's students among ids; unknown ids are ignored.
	QueryStudents(ctx context.Context, unit string, ids []string) ([]Student, error)
}
