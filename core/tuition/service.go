package tuition

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/student"
)

const DefaultDueDay = 5

var (
	nowFunc = time.Now // mockable

	errNonPositiveValue = errors.New("value must be greater than 0")
	errDocumentMismatch = errors.New("document number does not match the installment")
	errUnitRequired     = errors.New("unit is required")
)

// Options tunes the ledger policies.
type Options struct {
	DueDay      int // day of month generated installments fall due
	Policy      FeePolicy
	ReceiptNode int64 // snowflake node used for receipt ids
}

// OptionsFromConfig reads the billing options from conf.
func OptionsFromConfig(conf *core.Config) Options {
	return Options{
		DueDay:      conf.Billing.DueDay,
		Policy:      NewFeePolicy(conf.Billing.PenaltyRate, conf.Billing.MonthlyInterestRate, conf.Billing.DaysPerMonth),
		ReceiptNode: conf.Billing.SnowflakeNode,
	}
}

type Service struct {
	repo       Repository
	students   student.Repository
	validator  *core.Validator
	logger     core.Logger
	dueDay     int
	policy     FeePolicy
	receiptIDs *snowflake.Node
}

func NewService(repo Repository, students student.Repository, v *core.Validator, logger core.Logger, opts Options) (*Service, error) {
	if opts.DueDay < 1 || opts.DueDay > 28 {
		opts.DueDay = DefaultDueDay
	}
	if opts.Policy.DaysPerMonth <= 0 {
		opts.Policy = DefaultFeePolicy
	}
	node, err := snowflake.NewNode(opts.ReceiptNode)
	if err != nil {
		return nil, errors.Wrap(err, "creating receipt id node")
	}
	InitValidators(v)

	return &Service{
		repo:       repo,
		students:   students,
		validator:  v,
		logger:     logger,
		dueDay:     opts.DueDay,
		policy:     opts.Policy,
		receiptIDs: node,
	}, nil
}

func (svc *Service) Policy() FeePolicy { return svc.policy }

func checkUnit(unit string) error {
	if unit == "" {
		return core.NewValidationError(errUnitRequired, core.FieldError{Field: "unit", Error: errUnitRequired.Error()})
	}
	return nil
}

// Generate creates one pending installment per month of [StartPeriod, EndPeriod] for the student.
// Periods the student is already billed for are skipped; the number of created installments is returned.
// Creates are independent: on failure, installments created so far are kept and counted.
func (svc *Service) Generate(ctx context.Context, unit string, req GenerateRequest) (int, error) {
	unit = core.CleanString(unit)
	req.StudentID = core.CleanString(req.StudentID)
	if err := checkUnit(unit); err != nil {
		return 0, err
	}
	if err := svc.validator.Struct(req); err != nil {
		return 0, err
	}

	value := req.Value
	if value.IsZero() {
		std, err := svc.students.GetStudent(ctx, unit, req.StudentID)
		if err != nil {
			if errors.Is(err, student.ErrNotFound) {
				return 0, err
			}
			return 0, errors.Wrap(err, "getting student")
		}
		value = std.DefaultMonthlyValue
	}
	if !value.IsPositive() {
		return 0, core.NewValidationError(errNonPositiveValue, core.FieldError{Field: "value", Error: errNonPositiveValue.Error()})
	}

	now := nowFunc().UTC()
	var created int
	for m := req.StartPeriod; m <= req.EndPeriod; m++ {
		period := Period{Month: time.Month(m), Year: req.Year}
		inst := Installment{
			ID:            uuid.New().String(),
			Unit:          unit,
			StudentID:     req.StudentID,
			Kind:          KindMonthly,
			Period:        period,
			PeriodLabel:   period.String(),
			OriginalValue: value,
			DueDate:       period.DueDate(svc.dueDay),
			Status:        StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := svc.repo.CreateInstallment(ctx, inst); err != nil {
			if errors.Is(err, ErrPeriodExists) {
				svc.logger.Debug(fmt.Sprintf("installment %s of student %s already exists", inst.PeriodLabel, inst.StudentID))
				continue
			}
			return created, errors.Wrapf(err, "creating installment %s", inst.PeriodLabel)
		}
		created++
	}

	svc.logger.Info(fmt.Sprintf("generated %d installment(s) for student %s", created, req.StudentID),
		map[string]interface{}{"unit": unit, "year": req.Year, "from": req.StartPeriod, "to": req.EndPeriod})
	return created, nil
}

// CreateEventCharge creates a single pending installment charging the student for an event.
func (svc *Service) CreateEventCharge(ctx context.Context, unit string, ch NewEventCharge) (Installment, error) {
	unit = core.CleanString(unit)
	ch.StudentID = core.CleanString(ch.StudentID)
	ch.Description = core.CleanString(ch.Description)
	ch.DocumentNumber = core.CleanString(ch.DocumentNumber)
	if err := checkUnit(unit); err != nil {
		return Installment{}, err
	}
	if err := svc.validator.Struct(ch); err != nil {
		return Installment{}, err
	}

	now := nowFunc().UTC()
	dueDate := core.DateOf(ch.DueDate)
	period := PeriodOf(dueDate)
	inst := Installment{
		ID:             uuid.New().String(),
		Unit:           unit,
		StudentID:      ch.StudentID,
		Kind:           KindEvent,
		Period:         period,
		PeriodLabel:    ch.Description + " - " + period.String(),
		OriginalValue:  ch.Value,
		DueDate:        dueDate,
		Status:         StatusPending,
		DocumentNumber: ch.DocumentNumber,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inst, err := svc.repo.CreateInstallment(ctx, inst)
	if err != nil {
		if errors.Is(err, ErrPeriodExists) {
			return Installment{}, err
		}
		return Installment{}, errors.Wrap(err, "creating event charge")
	}
	return inst, nil
}

func (svc *Service) Get(ctx context.Context, unit, id string) (Installment, error) {
	return svc.repo.GetInstallment(ctx, core.CleanString(unit), core.CleanString(id))
}

// QuoteDue returns the amount due on an installment if settled on asOf.
func (svc *Service) QuoteDue(ctx context.Context, unit, id string, asOf time.Time) (Due, error) {
	inst, err := svc.Get(ctx, unit, id)
	if err != nil {
		return Due{}, err
	}
	return svc.policy.ComputeDue(inst, asOf), nil
}

func (svc *Service) resolve(ctx context.Context, unit string, req DischargeRequest) (Installment, error) {
	if req.InstallmentID == "" {
		return svc.repo.FindPendingByDocument(ctx, unit, req.DocumentNumber)
	}
	inst, err := svc.repo.GetInstallment(ctx, unit, req.InstallmentID)
	if err != nil {
		return Installment{}, err
	}
	if req.DocumentNumber != "" && inst.DocumentNumber != "" && !strings.EqualFold(req.DocumentNumber, inst.DocumentNumber) {
		return Installment{}, core.NewValidationError(errDocumentMismatch,
			core.FieldError{Field: "document_number", Error: errDocumentMismatch.Error()})
	}
	return inst, nil
}

// stampPaymentDate keeps the calendar date the payment is attributed to,
// with the wall-clock time the discharge was recorded at.
func stampPaymentDate(date, now time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), now.Location())
}

// Discharge settles a pending installment and returns the id of its receipt.
// The receipt itself is produced after commit, from the emitted ReceiptEvent.
func (svc *Service) Discharge(ctx context.Context, unit string, req DischargeRequest) (string, error) {
	unit = core.CleanString(unit)
	req.InstallmentID = core.CleanString(req.InstallmentID)
	req.DocumentNumber = core.CleanString(req.DocumentNumber)
	if err := checkUnit(unit); err != nil {
		return "", err
	}
	if err := svc.validator.Struct(req); err != nil {
		return "", err
	}

	inst, err := svc.resolve(ctx, unit, req)
	if err != nil {
		return "", err
	}
	if !inst.IsPending() {
		return "", &StateError{ID: inst.ID, Status: inst.Status, Op: "discharge"}
	}

	due := svc.policy.ComputeDue(inst, req.PaymentDate)
	if req.Amounts != nil && !req.Amounts.Equal(due) {
		return "", core.NewValidationError(ErrStaleAmounts, core.FieldError{Field: "amounts", Error: ErrStaleAmounts.Error()})
	}

	now := nowFunc()
	receiptID := svc.receiptIDs.Generate().String()
	paid, err := inst.WithDischarge(Payment{
		PaymentDate:   stampPaymentDate(req.PaymentDate, now),
		PaidValue:     due.Total,
		InterestValue: due.Interest,
		PenaltyValue:  due.Penalty,
		ReceiptID:     receiptID,
		RecordedAt:    now.UTC(),
	}, req.DocumentNumber)
	if err != nil {
		return "", err
	}

	evt := ReceiptEvent{
		ID:            uuid.New().String(),
		Unit:          unit,
		InstallmentID: paid.ID,
		ReceiptID:     receiptID,
		NextAttemptAt: now.UTC(),
		CreatedAt:     now.UTC(),
	}
	if err := svc.repo.DischargeInstallment(ctx, paid, evt); err != nil {
		if IsInvalidState(err) || errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", errors.Wrap(err, "discharging installment")
	}

	svc.logger.Info(fmt.Sprintf("installment %s discharged: receipt %s", paid.ID, receiptID),
		map[string]interface{}{"unit": unit, "paid_value": due.Total.StringFixed(2), "days_late": due.DaysLate})
	return receiptID, nil
}

// Cancel administratively cancels a pending installment.
func (svc *Service) Cancel(ctx context.Context, unit, id string) (Installment, error) {
	inst, err := svc.Get(ctx, unit, id)
	if err != nil {
		return Installment{}, err
	}
	cancelled, err := inst.WithCancel(nowFunc())
	if err != nil {
		return Installment{}, err
	}
	if err := svc.repo.CancelInstallment(ctx, cancelled); err != nil {
		if IsInvalidState(err) || errors.Is(err, ErrNotFound) {
			return Installment{}, err
		}
		return Installment{}, errors.Wrap(err, "cancelling installment")
	}
	return cancelled, nil
}

// Delete hard-deletes a pending installment.
func (svc *Service) Delete(ctx context.Context, unit, id string) error {
	unit, id = core.CleanString(unit), core.CleanString(id)
	if err := svc.repo.DeletePendingInstallment(ctx, unit, id); err != nil {
		if IsInvalidState(err) || errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "deleting installment")
	}
	return nil
}

func (svc *Service) filter(ctx context.Context, unit string, filter *QueryFilter) ([]Installment, time.Time, error) {
	unit = core.CleanString(unit)
	if err := checkUnit(unit); err != nil {
		return nil, time.Time{}, err
	}
	filter.Clean()
	if err := svc.validator.Struct(*filter); err != nil {
		return nil, time.Time{}, err
	}

	insts, err := svc.repo.QueryInstallments(ctx, unit, *filter)
	if err != nil {
		return nil, time.Time{}, errors.Wrap(err, "querying installments")
	}

	// "today" is evaluated on every call: overdue counts change across midnight
	today := nowFunc()
	matched := insts[:0]
	for _, inst := range insts {
		if filter.Match(inst, today) {
			matched = append(matched, inst)
		}
	}
	return matched, today, nil
}

// Query lists the unit's installments matching filter.
// Installments of a single student are sorted by period; otherwise by student name, then period.
func (svc *Service) Query(ctx context.Context, unit string, filter QueryFilter) ([]Row, error) {
	insts, _, err := svc.filter(ctx, unit, &filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	seen := make(map[string]bool)
	for _, inst := range insts {
		if !seen[inst.StudentID] {
			seen[inst.StudentID] = true
			ids = append(ids, inst.StudentID)
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) > 0 {
		students, err := svc.students.QueryStudents(ctx, core.CleanString(unit), ids)
		if err != nil {
			return nil, errors.Wrap(err, "querying students")
		}
		for _, s := range students {
			names[s.ID] = s.Name
		}
	}

	rows := make([]Row, 0, len(insts))
	for _, inst := range insts {
		rows = append(rows, Row{Installment: inst, StudentName: names[inst.StudentID]})
	}
	SortRows(rows, filter.StudentID != "")
	return rows, nil
}

// Summarize aggregates the unit's installments matching filter.
func (svc *Service) Summarize(ctx context.Context, unit string, filter QueryFilter) (Summary, error) {
	insts, today, err := svc.filter(ctx, unit, &filter)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(insts, today), nil
}

func lessByPeriod(a, b Installment) bool {
	if a.Period != b.Period {
		return a.Period.Before(b.Period)
	}
	if !a.DueDate.Equal(b.DueDate) {
		return a.DueDate.Before(b.DueDate)
	}
	return a.PeriodLabel < b.PeriodLabel
}

// SortRows sorts rows chronologically when scoped to a single student,
// or alphabetically by student name then chronologically otherwise.
func SortRows(rows []Row, singleStudent bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !singleStudent {
			an, bn := strings.ToLower(a.StudentName), strings.ToLower(b.StudentName)
			if an != bn {
				return an < bn
			}
			if a.StudentID != b.StudentID {
				return a.StudentID < b.StudentID
			}
		}
		return lessByPeriod(a.Installment, b.Installment)
	})
}
