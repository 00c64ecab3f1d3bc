package tuition_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/student"
	"github.com/trezcool/ecolage/core/tuition"
	inmemdb "github.com/trezcool/ecolage/storage/database/inmem"
	testutil "github.com/trezcool/ecolage/tests"
)

const unit = "matriz"

var now = time.Date(2026, time.March, 20, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *tuition.Service
	repo     *inmemdb.InstallmentRepository
	students *inmemdb.StudentRepository
}

func setup(t *testing.T) fixture {
	t.Helper()
	t.Cleanup(tuition.SetNow(func() time.Time { return now }))

	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewInstallmentRepository(db)
	students := inmemdb.NewStudentRepository(db)

	svc, err := tuition.NewService(repo, students, core.NewValidator(), testutil.NopLogger{}, tuition.Options{})
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, students: students}
}

func (f fixture) addStudent(name string, defaultValue string) student.Student {
	return f.students.AddStudent(student.Student{
		Unit:                unit,
		Name:                name,
		GuardianEmail:       "guardian@test.test",
		DefaultMonthlyValue: decimal.RequireFromString(defaultValue),
		IsActive:            true,
	})
}

func TestService_Generate(t *testing.T) {
	f := setup(t)
	std := f.addStudent("Ana", "380")
	ctx := context.Background()

	req := tuition.GenerateRequest{
		StudentID:   std.ID,
		Value:       decimal.RequireFromString("450.00"),
		StartPeriod: 1,
		EndPeriod:   3,
		Year:        2026,
	}
	n, err := f.svc.Generate(ctx, unit, req)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := f.svc.Query(ctx, unit, tuition.QueryFilter{StudentID: std.ID})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, label := range []string{"Janeiro/2026", "Fevereiro/2026", "Março/2026"} {
		row := rows[i]
		assert.Equal(t, label, row.PeriodLabel)
		assert.Equal(t, tuition.StatusPending, row.Status)
		assert.Equal(t, "Ana", row.StudentName)
		assert.True(t, row.OriginalValue.Equal(decimal.RequireFromString("450")))
		assert.Equal(t, time.Date(2026, time.Month(i+1), 5, 0, 0, 0, 0, time.UTC), row.DueDate)
	}

	// idempotent
	n, err = f.svc.Generate(ctx, unit, req)
	require.NoError(t, err)
	assert.Zero(t, n)

	// overlapping range only creates the missing periods
	req.EndPeriod = 5
	n, err = f.svc.Generate(ctx, unit, req)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_Generate_DefaultValue(t *testing.T) {
	f := setup(t)
	std := f.addStudent("Bruno", "380")

	n, err := f.svc.Generate(context.Background(), unit, tuition.GenerateRequest{
		StudentID: std.ID, StartPeriod: 6, EndPeriod: 6, Year: 2026,
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := f.svc.Query(context.Background(), unit, tuition.QueryFilter{StudentID: std.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].OriginalValue.Equal(decimal.RequireFromString("380")))
}

func TestService_Generate_Invalid(t *testing.T) {
	f := setup(t)
	std := f.addStudent("Carla", "0")
	valid := tuition.GenerateRequest{StudentID: std.ID, Value: decimal.NewFromInt(100), StartPeriod: 1, EndPeriod: 2, Year: 2026}

	tests := []struct {
		name     string
		unit     string
		mutate   func(req *tuition.GenerateRequest)
		validErr bool
		wantErr  error
	}{
		{name: "no unit", unit: " ", mutate: func(*tuition.GenerateRequest) {}, validErr: true},
		{name: "start after end", unit: unit, mutate: func(req *tuition.GenerateRequest) { req.StartPeriod = 3 }, validErr: true},
		{name: "month out of range", unit: unit, mutate: func(req *tuition.GenerateRequest) { req.EndPeriod = 13 }, validErr: true},
		{name: "negative value", unit: unit, mutate: func(req *tuition.GenerateRequest) { req.Value = decimal.NewFromInt(-1) }, validErr: true},
		{name: "no student", unit: unit, mutate: func(req *tuition.GenerateRequest) { req.StudentID = "" }, validErr: true},
		{name: "zero value, zero default", unit: unit, mutate: func(req *tuition.GenerateRequest) { req.Value = decimal.Zero }, validErr: true},
		{
			name:    "zero value, unknown student",
			unit:    unit,
			mutate:  func(req *tuition.GenerateRequest) { req.Value = decimal.Zero; req.StudentID = "unknown" },
			wantErr: student.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			n, err := f.svc.Generate(context.Background(), tt.unit, req)
			if n != 0 {
				t.Errorf("Generate() = %v, want 0", n)
			}
			if tt.validErr && !core.IsValidationError(err) {
				t.Errorf("Generate() error = %v, want ValidationError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Generate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_Discharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	std := f.addStudent("Ana", "500")
	inst := testutil.CreateInstallment(t, f.repo, unit, std.ID, tuition.Period{Month: time.March, Year: 2026}, decimal.RequireFromString("500.00"))
	payDate := testutil.Date(2026, time.March, 15)

	due, err := f.svc.QuoteDue(ctx, unit, inst.ID, payDate)
	require.NoError(t, err)
	assert.True(t, due.Total.Equal(decimal.RequireFromString("511.67")), "QuoteDue() total = %v", due.Total)

	// amounts quoted at another date are stale
	stale := tuition.ComputeDue(inst, testutil.Date(2026, time.March, 10))
	_, err = f.svc.Discharge(ctx, unit, tuition.DischargeRequest{InstallmentID: inst.ID, PaymentDate: payDate, Amounts: &stale})
	assert.True(t, core.IsValidationError(err), "Discharge() error = %v, want ValidationError", err)
	assert.True(t, errors.Is(err, tuition.ErrStaleAmounts))

	receiptID, err := f.svc.Discharge(ctx, unit, tuition.DischargeRequest{InstallmentID: inst.ID, PaymentDate: payDate, Amounts: &due})
	require.NoError(t, err)
	assert.NotEmpty(t, receiptID)

	paid, err := f.svc.Get(ctx, unit, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.StatusPaid, paid.Status)
	require.NotNil(t, paid.Payment)
	assert.Equal(t, receiptID, paid.Payment.ReceiptID)
	assert.True(t, paid.Payment.PaidValue.Equal(decimal.RequireFromString("511.67")))
	assert.True(t, paid.Payment.PenaltyValue.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, paid.Payment.InterestValue.Equal(decimal.RequireFromString("1.67")))
	assert.Equal(t, time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC), paid.Payment.PaymentDate)
	assert.Equal(t, now, paid.Payment.RecordedAt)

	// paid installments are final
	_, err = f.svc.Discharge(ctx, unit, tuition.DischargeRequest{InstallmentID: inst.ID, PaymentDate: payDate})
	assert.True(t, tuition.IsInvalidState(err), "Discharge() error = %v, wantErr %v", err, tuition.ErrInvalidState)
	_, err = f.svc.Cancel(ctx, unit, inst.ID)
	assert.True(t, tuition.IsInvalidState(err))
	assert.True(t, tuition.IsInvalidState(f.svc.Delete(ctx, unit, inst.ID)))

	due, err = f.svc.QuoteDue(ctx, unit, inst.ID, testutil.Date(2026, time.June, 1))
	require.NoError(t, err)
	assert.True(t, due.Total.Equal(decimal.RequireFromString("500.00")), "QuoteDue() on paid = %v", due.Total)

	evts := f.repo.ReceiptEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, receiptID, evts[0].ReceiptID)
	assert.Equal(t, inst.ID, evts[0].InstallmentID)
}

func TestService_Discharge_ByDocumentNumber(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	std := f.addStudent("Ana", "500")
	inst := testutil.CreateInstallment(t, f.repo, unit, std.ID, tuition.Period{Month: time.April, Year: 2026}, decimal.NewFromInt(500), "BOL-42")

	_, err := f.svc.Discharge(ctx, unit, tuition.DischargeRequest{DocumentNumber: "BOL-404", PaymentDate: now})
	assert.True(t, errors.Is(err, tuition.ErrNotFound), "Discharge() error = %v, wantErr %v", err, tuition.ErrNotFound)

	_, err = f.svc.Discharge(ctx, unit, tuition.DischargeRequest{InstallmentID: inst.ID, DocumentNumber: "BOL-43", PaymentDate: now})
	assert.True(t, core.IsValidationError(err), "Discharge() error = %v, want ValidationError", err)

	_, err = f.svc.Discharge(ctx, unit, tuition.DischargeRequest{PaymentDate: now})
	assert.True(t, core.IsValidationError(err), "Discharge() error = %v, want ValidationError", err)

	_, err = f.svc.Discharge(ctx, "other-unit", tuition.DischargeRequest{DocumentNumber: "bol-42", PaymentDate: now})
	assert.True(t, errors.Is(err, tuition.ErrNotFound))

	_, err = f.svc.Discharge(ctx, unit, tuition.DischargeRequest{DocumentNumber: "bol-42", PaymentDate: now})
	require.NoError(t, err)

	paid, err := f.svc.Get(ctx, unit, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.StatusPaid, paid.Status)
}

func TestService_Discharge_ByDocumentNumber_OldestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	std := f.addStudent("Ana", "500")

	created := now.Add(-time.Hour)
	for i, tt := range []struct {
		id        string
		month     time.Month
		createdAt time.Time
	}{
		{id: "inst-2", month: time.May, createdAt: created},
		{id: "inst-1", month: time.March, createdAt: created.Add(time.Minute)},
		{id: "inst-0", month: time.April, createdAt: created.Add(time.Minute)},
	} {
		period := tuition.Period{Month: tt.month, Year: 2026}
		_, err := f.repo.CreateInstallment(ctx, tuition.Installment{
			ID:             tt.id,
			Unit:           unit,
			StudentID:      std.ID,
			Kind:           tuition.KindMonthly,
			Period:         period,
			PeriodLabel:    period.String(),
			OriginalValue:  decimal.NewFromInt(500),
			DueDate:        period.DueDate(5),
			Status:         tuition.StatusPending,
			DocumentNumber: "BOL-7",
			CreatedAt:      tt.createdAt,
			UpdatedAt:      tt.createdAt,
		})
		require.NoError(t, err, "installment #%d", i)
	}

	for _, want := range []string{"inst-2", "inst-0", "inst-1"} {
		_, err := f.svc.Discharge(ctx, unit, tuition.DischargeRequest{DocumentNumber: "bol-7", PaymentDate: now})
		require.NoError(t, err)
		inst, err := f.svc.Get(ctx, unit, want)
		require.NoError(t, err)
		assert.Equal(t, tuition.StatusPaid, inst.Status, "installment %s", want)
	}

	_, err := f.svc.Discharge(ctx, unit, tuition.DischargeRequest{DocumentNumber: "bol-7", PaymentDate: now})
	assert.True(t, errors.Is(err, tuition.ErrNotFound), "Discharge() error = %v, wantErr %v", err, tuition.ErrNotFound)
}

func TestService_Discharge_Concurrent(t *testing.T) {
	f := setup(t)
	std := f.addStudent("Ana", "500")
	inst := testutil.CreateInstallment(t, f.repo, unit, std.ID, tuition.Period{Month: time.March, Year: 2026}, decimal.NewFromInt(500))

	const racers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Discharge(context.Background(), unit, tuition.DischargeRequest{InstallmentID: inst.ID, PaymentDate: now})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case tuition.IsInvalidState(err):
				conflicts++
			default:
				t.Errorf("Discharge() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, conflicts)
	assert.Len(t, f.repo.ReceiptEvents(), 1)
}

func TestService_CancelDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	std := f.addStudent("Ana", "500")
	mar := testutil.CreateInstallment(t, f.repo, unit, std.ID, tuition.Period{Month: time.March, Year: 2026}, decimal.NewFromInt(500))
	apr := testutil.CreateInstallment(t, f.repo, unit, std.ID, tuition.Period{Month: time.April, Year: 2026}, decimal.NewFromInt(500))

	cancelled, err := f.svc.Cancel(ctx, unit, mar.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.StatusCancelled, cancelled.Status)

	// a cancelled installment past its due date is still unpaid
	sum, err := f.svc.Summarize(ctx, unit, tuition.QueryFilter{StudentID: std.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.CancelledCount)
	assert.Equal(t, 1, sum.OverdueCount)
	rows, err := f.svc.Query(ctx, unit, tuition.QueryFilter{Overdue: true})
	require.NoError(t, err)
	if assert.Len(t, rows, 1) {
		assert.Equal(t, mar.ID, rows[0].ID)
	}

	_, err = f.svc.Discharge(ctx, unit, tuition.DischargeRequest{InstallmentID: mar.ID, PaymentDate: now})
	assert.True(t, tuition.IsInvalidState(err))

	require.NoError(t, f.svc.Delete(ctx, unit, apr.ID))
	_, err = f.svc.Get(ctx, unit, apr.ID)
	assert.True(t, errors.Is(err, tuition.ErrNotFound))

	// a deleted period can be generated again
	n, err := f.svc.Generate(ctx, unit, tuition.GenerateRequest{StudentID: std.ID, Value: decimal.NewFromInt(500), StartPeriod: 3, EndPeriod: 4, Year: 2026})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_CreateEventCharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	std := f.addStudent("Ana", "500")

	_, err := f.svc.CreateEventCharge(ctx, unit, tuition.NewEventCharge{
		StudentID: std.ID, Description: "Excursão", Value: decimal.Zero, DueDate: now,
	})
	assert.True(t, core.IsValidationError(err), "CreateEventCharge() error = %v, want ValidationError", err)

	inst, err := f.svc.CreateEventCharge(ctx, unit, tuition.NewEventCharge{
		StudentID: std.ID, Description: " Excursão ", Value: decimal.NewFromInt(80), DueDate: testutil.Date(2026, time.May, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, tuition.KindEvent, inst.Kind)
	assert.Equal(t, "Excursão - Maio/2026", inst.PeriodLabel)
	assert.Equal(t, tuition.StatusPending, inst.Status)

	// the monthly installment of the same period is not a duplicate
	n, err := f.svc.Generate(ctx, unit, tuition.GenerateRequest{StudentID: std.ID, Value: decimal.NewFromInt(500), StartPeriod: 5, EndPeriod: 5, Year: 2026})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_QuerySummarize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bruno := f.addStudent("Bruno", "400")
	ana := f.addStudent("Ana", "300")
	for _, std := range []student.Student{bruno, ana} {
		_, err := f.svc.Generate(ctx, unit, tuition.GenerateRequest{StudentID: std.ID, StartPeriod: 2, EndPeriod: 4, Year: 2026})
		require.NoError(t, err)
	}

	rows, err := f.svc.Query(ctx, unit, tuition.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 6)
	var names, labels []string
	for _, row := range rows {
		names = append(names, row.StudentName)
		labels = append(labels, row.PeriodLabel)
	}
	assert.Equal(t, []string{"Ana", "Ana", "Ana", "Bruno", "Bruno", "Bruno"}, names)
	assert.Equal(t, []string{"Fevereiro/2026", "Março/2026", "Abril/2026"}, labels[:3])

	// Fevereiro & Março are overdue on 2026-03-20
	rows, err = f.svc.Query(ctx, unit, tuition.QueryFilter{Overdue: true})
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	rows, err = f.svc.Query(ctx, unit, tuition.QueryFilter{Month: 3, Year: 2026})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	_, err = f.svc.Discharge(ctx, unit, tuition.DischargeRequest{InstallmentID: rows[0].ID, PaymentDate: now})
	require.NoError(t, err)

	sum, err := f.svc.Summarize(ctx, unit, tuition.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 1, sum.PaidCount)
	assert.Equal(t, 5, sum.PendingCount)
	assert.Equal(t, 3, sum.OverdueCount)
	assert.True(t, sum.TotalValue.Equal(decimal.NewFromInt(2100)), "TotalValue = %v", sum.TotalValue)
	assert.True(t, sum.TotalValue.Equal(sum.PaidValue.Add(sum.PendingValue)))

	_, err = f.svc.Query(ctx, unit, tuition.QueryFilter{Status: "bogus"})
	assert.True(t, core.IsValidationError(err), "Query() error = %v, want ValidationError", err)

	// the overdue count follows the clock
	t.Cleanup(tuition.SetNow(func() time.Time { return now.AddDate(0, 1, 0) }))
	sum, err = f.svc.Summarize(ctx, unit, tuition.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, sum.OverdueCount)
}

func TestService_Query_OrphanInstallments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	std := f.addStudent("Ana", "300")
	testutil.CreateInstallment(t, f.repo, unit, std.ID, tuition.Period{Month: time.March, Year: 2026}, decimal.NewFromInt(300))
	f.students.DeleteStudent(std.ID)

	rows, err := f.svc.Query(ctx, unit, tuition.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].StudentName)
}
