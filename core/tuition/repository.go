package tuition

import (
	"context"
	"time"
)

// ReceiptEvent is emitted when an installment is discharged, to be delivered by a receipt worker.
type ReceiptEvent struct {
	ID            string     `json:"id"`
	Unit          string     `json:"unit"`
	InstallmentID string     `json:"installment_id"`
	ReceiptID     string     `json:"receipt_id"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     string     `json:"last_error,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type (
	Repository interface {
		// CreateInstallment returns ErrPeriodExists if the student already has an installment for the period label.
		CreateInstallment(ctx context.Context, inst Installment) (Installment, error)
		GetInstallment(ctx context.Context, unit, id string) (Installment, error)
		// FindPendingByDocument returns the unit's pending installment with documentNumber.
		// When several match, the oldest one (by CreatedAt, then ID) is returned.
		FindPendingByDocument(ctx context.Context, unit, documentNumber string) (Installment, error)
		// QueryInstallments applies AND operation on available QueryFilter fields (except Overdue).
		QueryInstallments(ctx context.Context, unit string, filter QueryFilter) ([]Installment, error)
		// DischargeInstallment atomically stores the paid installment if it is still pending,
		// together with evt. It returns a *StateError when the installment is no longer pending.
		DischargeInstallment(ctx context.Context, inst Installment, evt ReceiptEvent) error
		// CancelInstallment atomically stores the cancelled installment if it is still pending.
		CancelInstallment(ctx context.Context, inst Installment) error
		// DeletePendingInstallment hard-deletes the installment if it is still pending.
		DeletePendingInstallment(ctx context.Context, unit, id string) error
	}

	// ReceiptOutbox is the queue of receipt events waiting to be delivered.
	ReceiptOutbox interface {
		// PendingReceiptEvents returns up to limit undelivered events due at `now`, oldest first.
		// Events already attempted maxAttempts times are left out.
		PendingReceiptEvents(ctx context.Context, now time.Time, maxAttempts, limit int) ([]ReceiptEvent, error)
		MarkReceiptDelivered(ctx context.Context, id string, at time.Time) error
		// MarkReceiptFailed records a failed attempt and schedules the next one at `next`.
		MarkReceiptFailed(ctx context.Context, id string, reason string, next time.Time) error
	}
)
