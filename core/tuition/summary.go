package tuition

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodSummary rolls up the installments of one period label.
type PeriodSummary struct {
	PeriodLabel  string          `json:"period_label"`
	Period       Period          `json:"period"`
	Count        int             `json:"count"`
	PaidCount    int             `json:"paid_count"`
	PendingCount int             `json:"pending_count"`
	PaidValue    decimal.Decimal `json:"paid_value"`
	PendingValue decimal.Decimal `json:"pending_value"`
}

// Summary aggregates a set of installments.
// TotalValue excludes cancelled installments, so TotalValue == PaidValue + PendingValue.
type Summary struct {
	Total          int             `json:"total"`
	PaidCount      int             `json:"paid_count"`
	PendingCount   int             `json:"pending_count"`
	CancelledCount int             `json:"cancelled_count"`
	OverdueCount   int             `json:"overdue_count"`
	TotalValue     decimal.Decimal `json:"total_value"`
	PaidValue      decimal.Decimal `json:"paid_value"`
	PendingValue   decimal.Decimal `json:"pending_value"`
	ByPeriod       []PeriodSummary `json:"by_period"`
}

// Summarize aggregates insts, `today` being used for the overdue count.
// Values are original values: late fees collected on payment are not included.
func Summarize(insts []Installment, today time.Time) Summary {
	sum := Summary{
		TotalValue:   decimal.Zero,
		PaidValue:    decimal.Zero,
		PendingValue: decimal.Zero,
		ByPeriod:     make([]PeriodSummary, 0),
	}
	periods := make(map[string]*PeriodSummary)

	for _, inst := range insts {
		sum.Total++
		if inst.IsOverdue(today) {
			sum.OverdueCount++
		}
		if inst.Status == StatusCancelled {
			sum.CancelledCount++
			continue
		}

		ps, ok := periods[inst.PeriodLabel]
		if !ok {
			ps = &PeriodSummary{
				PeriodLabel:  inst.PeriodLabel,
				Period:       inst.Period,
				PaidValue:    decimal.Zero,
				PendingValue: decimal.Zero,
			}
			periods[inst.PeriodLabel] = ps
		}
		ps.Count++
		sum.TotalValue = sum.TotalValue.Add(inst.OriginalValue)

		switch inst.Status {
		case StatusPaid:
			sum.PaidCount++
			sum.PaidValue = sum.PaidValue.Add(inst.OriginalValue)
			ps.PaidCount++
			ps.PaidValue = ps.PaidValue.Add(inst.OriginalValue)
		case StatusPending:
			sum.PendingCount++
			sum.PendingValue = sum.PendingValue.Add(inst.OriginalValue)
			ps.PendingCount++
			ps.PendingValue = ps.PendingValue.Add(inst.OriginalValue)
		}
	}

	for _, ps := range periods {
		sum.ByPeriod = append(sum.ByPeriod, *ps)
	}
	sort.Slice(sum.ByPeriod, func(i, j int) bool {
		a, b := sum.ByPeriod[i], sum.ByPeriod[j]
		if a.Period != b.Period {
			return a.Period.Before(b.Period)
		}
		return a.PeriodLabel < b.PeriodLabel
	})
	return sum
}
