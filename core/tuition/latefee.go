package tuition

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
)

// DefaultFeePolicy charges a flat 2% penalty plus 1% interest per 30 days, prorated daily.
var DefaultFeePolicy = FeePolicy{
	PenaltyRate:         decimal.NewFromFloat(0.02),
	MonthlyInterestRate: decimal.NewFromFloat(0.01),
	DaysPerMonth:        30,
}

// FeePolicy defines the late fees applied to installments settled after their due date.
type FeePolicy struct {
	PenaltyRate         decimal.Decimal // one-time, regardless of how late
	MonthlyInterestRate decimal.Decimal // simple interest, prorated per day
	DaysPerMonth        int
}

// NewFeePolicy builds a FeePolicy from configuration values, falling back to DefaultFeePolicy for unset ones.
func NewFeePolicy(penaltyRate, monthlyInterestRate float64, daysPerMonth int) FeePolicy {
	p := DefaultFeePolicy
	if penaltyRate > 0 {
		p.PenaltyRate = decimal.NewFromFloat(penaltyRate)
	}
	if monthlyInterestRate > 0 {
		p.MonthlyInterestRate = decimal.NewFromFloat(monthlyInterestRate)
	}
	if daysPerMonth > 0 {
		p.DaysPerMonth = daysPerMonth
	}
	return p
}

// Due is the amount owed on an installment at a given date.
type Due struct {
	Penalty  decimal.Decimal `json:"penalty"`
	Interest decimal.Decimal `json:"interest"`
	Total    decimal.Decimal `json:"total"`
	DaysLate int             `json:"days_late"`
}

// Equal compares the monetary amounts of d and o.
func (d Due) Equal(o Due) bool {
	return d.Penalty.Equal(o.Penalty) && d.Interest.Equal(o.Interest) && d.Total.Equal(o.Total)
}

// ComputeDue computes the amount due on inst as of asOf with the DefaultFeePolicy.
func ComputeDue(inst Installment, asOf time.Time) Due {
	return DefaultFeePolicy.ComputeDue(inst, asOf)
}

// ComputeDue computes the amount due on inst as of asOf.
// Dates are compared on calendar days: paying on the due date is on time.
// Penalty & interest are rounded to cents.
func (p FeePolicy) ComputeDue(inst Installment, asOf time.Time) Due {
	due := Due{Penalty: decimal.Zero, Interest: decimal.Zero, Total: inst.OriginalValue}
	if inst.Status == StatusPaid {
		return due
	}

	dueDate := core.DateOf(inst.DueDate)
	settleDate := core.DateOf(asOf)
	if !settleDate.After(dueDate) {
		return due
	}

	daysLate := int(math.Ceil(settleDate.Sub(dueDate).Hours() / 24))
	dailyRate := p.MonthlyInterestRate.Div(decimal.NewFromInt(int64(p.DaysPerMonth)))

	due.DaysLate = daysLate
	due.Penalty = inst.OriginalValue.Mul(p.PenaltyRate).Round(2)
	due.Interest = inst.OriginalValue.Mul(dailyRate).Mul(decimal.NewFromInt(int64(daysLate))).Round(2)
	due.Total = inst.OriginalValue.Add(due.Penalty).Add(due.Interest)
	return due
}
