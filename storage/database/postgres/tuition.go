package postgres

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ecolage/core/tuition"
)

const (
	installmentTable  = "installment"
	receiptEventTable = "receipt_event"

	uniqueViolation = "23505"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	installmentColumns = []string{
		"id", "unit", "student_id", "kind", "period_month", "period_year", "period_label",
		"original_value", "due_date", "status", "document_number",
		"payment_date", "paid_value", "interest_value", "penalty_value", "receipt_id", "recorded_at",
		"created_at", "updated_at",
	}
	receiptEventColumns = []string{
		"id", "unit", "installment_id", "receipt_id", "attempts", "next_attempt_at", "last_error", "delivered_at", "created_at",
	}
)

type installmentRow struct {
	ID             string              `db:"id"`
	Unit           string              `db:"unit"`
	StudentID      string              `db:"student_id"`
	Kind           string              `db:"kind"`
	PeriodMonth    int                 `db:"period_month"`
	PeriodYear     int                 `db:"period_year"`
	PeriodLabel    string              `db:"period_label"`
	OriginalValue  decimal.Decimal     `db:"original_value"`
	DueDate        time.Time           `db:"due_date"`
	Status         string              `db:"status"`
	DocumentNumber null.String         `db:"document_number"`
	PaymentDate    null.Time           `db:"payment_date"`
	PaidValue      decimal.NullDecimal `db:"paid_value"`
	InterestValue  decimal.NullDecimal `db:"interest_value"`
	PenaltyValue   decimal.NullDecimal `db:"penalty_value"`
	ReceiptID      null.String         `db:"receipt_id"`
	RecordedAt     null.Time           `db:"recorded_at"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

func toInstallmentRow(inst tuition.Installment) installmentRow {
	row := installmentRow{
		ID:             inst.ID,
		Unit:           inst.Unit,
		StudentID:      inst.StudentID,
		Kind:           string(inst.Kind),
		PeriodMonth:    int(inst.Period.Month),
		PeriodYear:     inst.Period.Year,
		PeriodLabel:    inst.PeriodLabel,
		OriginalValue:  inst.OriginalValue,
		DueDate:        inst.DueDate,
		Status:         string(inst.Status),
		DocumentNumber: null.NewString(inst.DocumentNumber, inst.DocumentNumber != ""),
		CreatedAt:      inst.CreatedAt.UTC(),
		UpdatedAt:      inst.UpdatedAt.UTC(),
	}
	if pmt := inst.Payment; pmt != nil {
		row.PaymentDate = null.TimeFrom(pmt.PaymentDate)
		row.PaidValue = decimal.NewNullDecimal(pmt.PaidValue)
		row.InterestValue = decimal.NewNullDecimal(pmt.InterestValue)
		row.PenaltyValue = decimal.NewNullDecimal(pmt.PenaltyValue)
		row.ReceiptID = null.StringFrom(pmt.ReceiptID)
		row.RecordedAt = null.TimeFrom(pmt.RecordedAt.UTC())
	}
	return row
}

func (row installmentRow) values() []interface{} {
	return []interface{}{
		row.ID, row.Unit, row.StudentID, row.Kind, row.PeriodMonth, row.PeriodYear, row.PeriodLabel,
		row.OriginalValue, row.DueDate, row.Status, row.DocumentNumber,
		row.PaymentDate, row.PaidValue, row.InterestValue, row.PenaltyValue, row.ReceiptID, row.RecordedAt,
		row.CreatedAt, row.UpdatedAt,
	}
}

func (row installmentRow) toInstallment() tuition.Installment {
	y, m, d := row.DueDate.Date()
	inst := tuition.Installment{
		ID:             row.ID,
		Unit:           row.Unit,
		StudentID:      row.StudentID,
		Kind:           tuition.Kind(row.Kind),
		Period:         tuition.Period{Month: time.Month(row.PeriodMonth), Year: row.PeriodYear},
		PeriodLabel:    row.PeriodLabel,
		OriginalValue:  row.OriginalValue,
		DueDate:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Status:         tuition.Status(row.Status),
		DocumentNumber: row.DocumentNumber.String,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	if inst.Status == tuition.StatusPaid {
		inst.Payment = &tuition.Payment{
			PaymentDate:   row.PaymentDate.Time,
			PaidValue:     row.PaidValue.Decimal,
			InterestValue: row.InterestValue.Decimal,
			PenaltyValue:  row.PenaltyValue.Decimal,
			ReceiptID:     row.ReceiptID.String,
			RecordedAt:    row.RecordedAt.Time.UTC(),
		}
	}
	return inst
}

// InstallmentRepository stores installments and their receipt outbox in postgres.
type InstallmentRepository struct {
	db *sqlx.DB
}

func NewInstallmentRepository(db *sqlx.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (repo *InstallmentRepository) CreateInstallment(ctx context.Context, inst tuition.Installment) (tuition.Installment, error) {
	query, args, err := psql.Insert(installmentTable).
		Columns(installmentColumns...).
		Values(toInstallmentRow(inst).values()...).
		ToSql()
	if err != nil {
		return tuition.Installment{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return tuition.Installment{}, tuition.ErrPeriodExists
		}
		return tuition.Installment{}, errors.Wrap(err, "inserting installment")
	}
	return inst, nil
}

func (repo *InstallmentRepository) selectOne(ctx context.Context, q sqlx.QueryerContext, where sq.Sqlizer, orderBy ...string) (tuition.Installment, error) {
	query, args, err := psql.Select(installmentColumns...).
		From(installmentTable).
		Where(where).
		OrderBy(orderBy...).
		Limit(1).
		ToSql()
	if err != nil {
		return tuition.Installment{}, errors.Wrap(err, "building query")
	}
	var row installmentRow
	if err = sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tuition.Installment{}, tuition.ErrNotFound
		}
		return tuition.Installment{}, errors.Wrap(err, "selecting installment")
	}
	return row.toInstallment(), nil
}

func (repo *InstallmentRepository) GetInstallment(ctx context.Context, unit, id string) (tuition.Installment, error) {
	return repo.selectOne(ctx, repo.db, sq.Eq{"unit": unit, "id": id})
}

func (repo *InstallmentRepository) FindPendingByDocument(ctx context.Context, unit, documentNumber string) (tuition.Installment, error) {
	return repo.selectOne(ctx, repo.db, sq.And{
		sq.Eq{"unit": unit, "status": string(tuition.StatusPending)},
		sq.Expr("LOWER(document_number) = LOWER(?)", documentNumber),
	}, "created_at", "id")
}

func (repo *InstallmentRepository) QueryInstallments(ctx context.Context, unit string, filter tuition.QueryFilter) ([]tuition.Installment, error) {
	where := sq.And{sq.Eq{"unit": unit}}
	if filter.StudentID != "" {
		where = append(where, sq.Eq{"student_id": filter.StudentID})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": string(filter.Status)})
	}
	if filter.Month != 0 {
		where = append(where, sq.Eq{"period_month": filter.Month})
	}
	if filter.Year != 0 {
		where = append(where, sq.Eq{"period_year": filter.Year})
	}
	if filter.DocumentNumber != "" {
		where = append(where, sq.Expr("LOWER(document_number) = LOWER(?)", filter.DocumentNumber))
	}

	query, args, err := psql.Select(installmentColumns...).
		From(installmentTable).
		Where(where).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows := make([]installmentRow, 0)
	if err = sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting installments")
	}
	insts := make([]tuition.Installment, 0, len(rows))
	for _, row := range rows {
		insts = append(insts, row.toInstallment())
	}
	return insts, nil
}

// swapPending updates the installment row within tx if it is still pending.
func (repo *InstallmentRepository) swapPending(ctx context.Context, tx *sqlx.Tx, inst tuition.Installment, op string) error {
	row := toInstallmentRow(inst)
	query, args, err := psql.Update(installmentTable).
		SetMap(map[string]interface{}{
			"status":          row.Status,
			"document_number": row.DocumentNumber,
			"payment_date":    row.PaymentDate,
			"paid_value":      row.PaidValue,
			"interest_value":  row.InterestValue,
			"penalty_value":   row.PenaltyValue,
			"receipt_id":      row.ReceiptID,
			"recorded_at":     row.RecordedAt,
			"updated_at":      row.UpdatedAt,
		}).
		Where(sq.Eq{"unit": inst.Unit, "id": inst.ID, "status": string(tuition.StatusPending)}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating installment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating installment")
	}
	if n == 1 {
		return nil
	}

	// lost the race, or never existed
	stored, err := repo.selectOne(ctx, tx, sq.Eq{"unit": inst.Unit, "id": inst.ID})
	if err != nil {
		return err
	}
	return &tuition.StateError{ID: stored.ID, Status: stored.Status, Op: op}
}

func (repo *InstallmentRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo *InstallmentRepository) DischargeInstallment(ctx context.Context, inst tuition.Installment, evt tuition.ReceiptEvent) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := repo.swapPending(ctx, tx, inst, "discharge"); err != nil {
			return err
		}
		query, args, err := psql.Insert(receiptEventTable).
			Columns(receiptEventColumns...).
			Values(evt.ID, evt.Unit, evt.InstallmentID, evt.ReceiptID, evt.Attempts,
				evt.NextAttemptAt.UTC(), evt.LastError, null.TimeFromPtr(evt.DeliveredAt), evt.CreatedAt.UTC()).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return errors.Wrap(err, "inserting receipt event")
	})
}

func (repo *InstallmentRepository) CancelInstallment(ctx context.Context, inst tuition.Installment) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		return repo.swapPending(ctx, tx, inst, "cancel")
	})
}

func (repo *InstallmentRepository) DeletePendingInstallment(ctx context.Context, unit, id string) error {
	query, args, err := psql.Delete(installmentTable).
		Where(sq.Eq{"unit": unit, "id": id, "status": string(tuition.StatusPending)}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting installment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting installment")
	}
	if n == 1 {
		return nil
	}
	stored, err := repo.GetInstallment(ctx, unit, id)
	if err != nil {
		return err
	}
	return &tuition.StateError{ID: stored.ID, Status: stored.Status, Op: "delete"}
}

// Receipt outbox

type receiptEventRow struct {
	ID            string    `db:"id"`
	Unit          string    `db:"unit"`
	InstallmentID string    `db:"installment_id"`
	ReceiptID     string    `db:"receipt_id"`
	Attempts      int       `db:"attempts"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	LastError     string    `db:"last_error"`
	DeliveredAt   null.Time `db:"delivered_at"`
	CreatedAt     time.Time `db:"created_at"`
}

func (row receiptEventRow) toReceiptEvent() tuition.ReceiptEvent {
	return tuition.ReceiptEvent{
		ID:            row.ID,
		Unit:          row.Unit,
		InstallmentID: row.InstallmentID,
		ReceiptID:     row.ReceiptID,
		Attempts:      row.Attempts,
		NextAttemptAt: row.NextAttemptAt.UTC(),
		LastError:     row.LastError,
		DeliveredAt:   row.DeliveredAt.Ptr(),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func (repo *InstallmentRepository) PendingReceiptEvents(ctx context.Context, now time.Time, maxAttempts, limit int) ([]tuition.ReceiptEvent, error) {
	builder := psql.Select(receiptEventColumns...).
		From(receiptEventTable).
		Where(sq.Eq{"delivered_at": nil}).
		Where(sq.LtOrEq{"next_attempt_at": now.UTC()}).
		OrderBy("created_at")
	if maxAttempts > 0 {
		builder = builder.Where(sq.Lt{"attempts": maxAttempts})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows := make([]receiptEventRow, 0)
	if err = sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting receipt events")
	}
	evts := make([]tuition.ReceiptEvent, 0, len(rows))
	for _, row := range rows {
		evts = append(evts, row.toReceiptEvent())
	}
	return evts, nil
}

func (repo *InstallmentRepository) updateReceiptEvent(ctx context.Context, id string, set map[string]interface{}) error {
	query, args, err := psql.Update(receiptEventTable).
		SetMap(set).
		Set("attempts", sq.Expr("attempts + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating receipt event")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating receipt event")
	}
	if n == 0 {
		return tuition.ErrNotFound
	}
	return nil
}

func (repo *InstallmentRepository) MarkReceiptDelivered(ctx context.Context, id string, at time.Time) error {
	return repo.updateReceiptEvent(ctx, id, map[string]interface{}{"delivered_at": at.UTC(), "last_error": ""})
}

func (repo *InstallmentRepository) MarkReceiptFailed(ctx context.Context, id string, reason string, next time.Time) error {
	return repo.updateReceiptEvent(ctx, id, map[string]interface{}{"last_error": reason, "next_attempt_at": next.UTC()})
}
