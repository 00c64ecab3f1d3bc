package tuition

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
)

// Statuses
const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Kinds
const (
	KindMonthly Kind = "monthly" // created by the generator
	KindEvent   Kind = "event"   // ad hoc charge targeting an event
)

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

type (
	Status string
	Kind   string
)

func (s Status) IsTerminal() bool { return s == StatusPaid || s == StatusCancelled }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// Period is a monthly billing cycle.
type Period struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

// String returns the period label, eg. "Março/2026".
func (p Period) String() string {
	if p.Month < time.January || p.Month > time.December {
		return fmt.Sprintf("%d/%d", p.Month, p.Year)
	}
	return monthNames[p.Month-1] + "/" + fmt.Sprint(p.Year)
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// DueDate returns the given day of the period, clamped to the period's last day.
func (p Period) DueDate(day int) time.Time {
	last := time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}

// Payment holds the settled amounts of a discharged Installment.
type Payment struct {
	PaymentDate   time.Time       `json:"payment_date"` // attributed date + wall-clock time of the discharge
	PaidValue     decimal.Decimal `json:"paid_value"`
	InterestValue decimal.Decimal `json:"interest_value"`
	PenaltyValue  decimal.Decimal `json:"penalty_value"`
	ReceiptID     string          `json:"receipt_id"`
	RecordedAt    time.Time       `json:"recorded_at"` // UTC
}

// Installment is one billing obligation of a Student for a Period.
// Installments are values: state changes go through WithDischarge & WithCancel.
type Installment struct {
	ID             string          `json:"id"`
	Unit           string          `json:"unit"`
	StudentID      string          `json:"student_id"`
	Kind           Kind            `json:"kind"`
	Period         Period          `json:"period"`
	PeriodLabel    string          `json:"period_label"`
	OriginalValue  decimal.Decimal `json:"original_value"`
	DueDate        time.Time       `json:"due_date"` // date only, UTC
	Status         Status          `json:"status"`
	DocumentNumber string          `json:"document_number,omitempty"`
	Payment        *Payment        `json:"payment,omitempty"` // set iff Status == StatusPaid
	CreatedAt      time.Time       `json:"created_at"`        // UTC
	UpdatedAt      time.Time       `json:"updated_at"`        // UTC
}

func (inst Installment) IsPending() bool { return inst.Status == StatusPending }

// IsOverdue reports whether inst is unpaid after its due date, as of `today`.
// Cancelled installments count as unpaid.
func (inst Installment) IsOverdue(today time.Time) bool {
	return inst.Status != StatusPaid && inst.DueDate.Before(core.DateOf(today))
}

// WithDischarge returns inst settled with pmt. Only pending installments can be discharged.
func (inst Installment) WithDischarge(pmt Payment, documentNumber string) (Installment, error) {
	if inst.Status != StatusPending {
		return Installment{}, &StateError{ID: inst.ID, Status: inst.Status, Op: "discharge"}
	}
	if inst.DocumentNumber == "" {
		inst.DocumentNumber = documentNumber
	}
	inst.Status = StatusPaid
	inst.Payment = &pmt
	inst.UpdatedAt = pmt.RecordedAt
	return inst, nil
}

// WithCancel returns inst cancelled at `at`. Only pending installments can be cancelled.
func (inst Installment) WithCancel(at time.Time) (Installment, error) {
	if inst.Status != StatusPending {
		return Installment{}, &StateError{ID: inst.ID, Status: inst.Status, Op: "cancel"}
	}
	inst.Status = StatusCancelled
	inst.UpdatedAt = at.UTC()
	return inst, nil
}

// Row is an Installment enriched with its student's name, for listings.
type Row struct {
	Installment
	StudentName string `json:"student_name"`
}

// GenerateRequest contains information needed to generate monthly installments for a student.
type GenerateRequest struct {
	StudentID   string          `json:"student_id" validate:"required,notblank"`
	Value       decimal.Decimal `json:"value"` // zero: student's default monthly value
	StartPeriod int             `json:"start_period" validate:"required,min=1,max=12"`
	EndPeriod   int             `json:"end_period" validate:"required,min=1,max=12,gtefield=StartPeriod"`
	Year        int             `json:"year" validate:"required,min=2000,max=2100"`
}

// NewEventCharge contains information needed to charge a student for a single event.
type NewEventCharge struct {
	StudentID      string          `json:"student_id" validate:"required,notblank"`
	Description    string          `json:"description" validate:"required,notblank,max=80"`
	Value          decimal.Decimal `json:"value"`
	DueDate        time.Time       `json:"due_date" validate:"required"`
	DocumentNumber string          `json:"document_number" validate:"omitempty,max=64"`
}

// DischargeRequest contains information needed to settle an installment.
// The installment is resolved by InstallmentID, or by DocumentNumber when no id is given.
type DischargeRequest struct {
	InstallmentID  string    `json:"installment_id" validate:"required_without=DocumentNumber"`
	DocumentNumber string    `json:"document_number" validate:"omitempty,max=64"`
	PaymentDate    time.Time `json:"payment_date" validate:"required"`
	// Amounts, when provided, must match the amounts due at PaymentDate.
	Amounts *Due `json:"amounts,omitempty"`
}

type QueryFilter struct {
	StudentID      string `query:"student_id"`
	Status         Status `query:"status"`
	Month          int    `query:"month"`
	Year           int    `query:"year"`
	DocumentNumber string `query:"document_number"`
	Overdue        bool   `query:"overdue"`
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.DocumentNumber = core.CleanString(qf.DocumentNumber)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
}

func (qf QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.Status == "" && qf.Month == 0 && qf.Year == 0 &&
		qf.DocumentNumber == "" && !qf.Overdue
}

// Match reports whether inst satisfies the filter, `today` being used for the overdue check.
func (qf QueryFilter) Match(inst Installment, today time.Time) bool {
	switch {
	case qf.StudentID != "" && inst.StudentID != qf.StudentID,
		qf.Status != "" && inst.Status != qf.Status,
		qf.Month != 0 && int(inst.Period.Month) != qf.Month,
		qf.Year != 0 && inst.Period.Year != qf.Year,
		qf.DocumentNumber != "" && !strings.EqualFold(inst.DocumentNumber, qf.DocumentNumber),
		qf.Overdue && !inst.IsOverdue(today):
		return false
	}
	return true
}
