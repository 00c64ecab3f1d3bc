package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core/tuition"
)

// NopLogger discards every entry.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// Date returns the UTC midnight of y-m-d.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Money parses a decimal amount, eg. "450.00".
func Money(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Money(%q) failed: %v", s, err)
	}
	return d
}

// CreateInstallment stores a pending monthly installment of studentID for period, due on the 5th.
func CreateInstallment(
	t *testing.T,
	repo tuition.Repository,
	unit, studentID string,
	period tuition.Period,
	value decimal.Decimal,
	documentNumber ...string,
) tuition.Installment {
	t.Helper()
	tstamp := time.Now().UTC()
	inst := tuition.Installment{
		ID:            uuid.New().String(),
		Unit:          unit,
		StudentID:     studentID,
		Kind:          tuition.KindMonthly,
		Period:        period,
		PeriodLabel:   period.String(),
		OriginalValue: value,
		DueDate:       period.DueDate(5),
		Status:        tuition.StatusPending,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if len(documentNumber) > 0 {
		inst.DocumentNumber = documentNumber[0]
	}
	inst, err := repo.CreateInstallment(context.Background(), inst)
	if err != nil {
		t.Fatalf("CreateInstallment() failed: %v", err)
	}
	return inst
}
