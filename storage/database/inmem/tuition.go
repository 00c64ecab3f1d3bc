package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/ecolage/core/tuition"
)

// InstallmentRepository stores installments and their receipt outbox.
type InstallmentRepository struct {
	db *installmentTable
}

func NewInstallmentRepository(db *DB) *InstallmentRepository {
	return &InstallmentRepository{db: db.installment}
}

func periodKey(inst tuition.Installment) string {
	return inst.StudentID + "/" + inst.PeriodLabel
}

// clone copies inst so that callers never share its Payment with the table.
func clone(inst tuition.Installment) tuition.Installment {
	if inst.Payment != nil {
		pmt := *inst.Payment
		inst.Payment = &pmt
	}
	return inst
}

func (repo *InstallmentRepository) get(unit, id string) (*tuition.Installment, error) {
	if inst, ok := repo.db.table[id]; ok && inst.Unit == unit {
		return inst, nil
	}
	return nil, tuition.ErrNotFound
}

func (repo *InstallmentRepository) CreateInstallment(_ context.Context, inst tuition.Installment) (tuition.Installment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := periodKey(inst)
	if _, exists := repo.db.periods[key]; exists {
		return tuition.Installment{}, tuition.ErrPeriodExists
	}
	inst = clone(inst)
	repo.db.table[inst.ID] = &inst
	repo.db.periods[key] = inst.ID
	return clone(inst), nil
}

func (repo *InstallmentRepository) GetInstallment(_ context.Context, unit, id string) (tuition.Installment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	inst, err := repo.get(unit, id)
	if err != nil {
		return tuition.Installment{}, err
	}
	return clone(*inst), nil
}

func (repo *InstallmentRepository) FindPendingByDocument(_ context.Context, unit, documentNumber string) (tuition.Installment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var found *tuition.Installment
	for _, inst := range repo.db.table {
		if inst.Unit != unit || !inst.IsPending() || !strings.EqualFold(inst.DocumentNumber, documentNumber) {
			continue
		}
		if found == nil || createdBefore(*inst, *found) {
			found = inst
		}
	}
	if found == nil {
		return tuition.Installment{}, tuition.ErrNotFound
	}
	return clone(*found), nil
}

// createdBefore orders installments by creation time, then by id.
func createdBefore(a, b tuition.Installment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (repo *InstallmentRepository) QueryInstallments(_ context.Context, unit string, filter tuition.QueryFilter) ([]tuition.Installment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	filter.Overdue = false
	insts := make([]tuition.Installment, 0)
	for _, inst := range repo.db.table {
		if inst.Unit == unit && filter.Match(*inst, time.Time{}) {
			insts = append(insts, clone(*inst))
		}
	}
	sort.Slice(insts, func(i, j int) bool { return createdBefore(insts[i], insts[j]) })
	return insts, nil
}

// swapPending replaces the stored installment with inst if the stored one is still pending.
func (repo *InstallmentRepository) swapPending(inst tuition.Installment, op string) error {
	stored, err := repo.get(inst.Unit, inst.ID)
	if err != nil {
		return err
	}
	if !stored.IsPending() {
		return &tuition.StateError{ID: stored.ID, Status: stored.Status, Op: op}
	}
	inst = clone(inst)
	repo.db.table[inst.ID] = &inst
	return nil
}

func (repo *InstallmentRepository) DischargeInstallment(_ context.Context, inst tuition.Installment, evt tuition.ReceiptEvent) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.swapPending(inst, "discharge"); err != nil {
		return err
	}
	repo.db.receipts[evt.ID] = &evt
	repo.db.seq = append(repo.db.seq, evt.ID)
	return nil
}

func (repo *InstallmentRepository) CancelInstallment(_ context.Context, inst tuition.Installment) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	return repo.swapPending(inst, "cancel")
}

func (repo *InstallmentRepository) DeletePendingInstallment(_ context.Context, unit, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, err := repo.get(unit, id)
	if err != nil {
		return err
	}
	if !stored.IsPending() {
		return &tuition.StateError{ID: stored.ID, Status: stored.Status, Op: "delete"}
	}
	delete(repo.db.periods, periodKey(*stored))
	delete(repo.db.table, id)
	return nil
}

// Receipt outbox

func (repo *InstallmentRepository) PendingReceiptEvents(_ context.Context, now time.Time, maxAttempts, limit int) ([]tuition.ReceiptEvent, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	evts := make([]tuition.ReceiptEvent, 0)
	for _, id := range repo.db.seq {
		if limit > 0 && len(evts) >= limit {
			break
		}
		evt := repo.db.receipts[id]
		if evt.DeliveredAt == nil && !evt.NextAttemptAt.After(now) && (maxAttempts <= 0 || evt.Attempts < maxAttempts) {
			evts = append(evts, *evt)
		}
	}
	return evts, nil
}

func (repo *InstallmentRepository) MarkReceiptDelivered(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	evt, ok := repo.db.receipts[id]
	if !ok {
		return tuition.ErrNotFound
	}
	at = at.UTC()
	evt.Attempts++
	evt.DeliveredAt = &at
	evt.LastError = ""
	return nil
}

func (repo *InstallmentRepository) MarkReceiptFailed(_ context.Context, id string, reason string, next time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	evt, ok := repo.db.receipts[id]
	if !ok {
		return tuition.ErrNotFound
	}
	evt.Attempts++
	evt.LastError = reason
	evt.NextAttemptAt = next.UTC()
	return nil
}

// ReceiptEvents returns every receipt event, delivered or not, in insertion order.
func (repo *InstallmentRepository) ReceiptEvents() []tuition.ReceiptEvent {
	repo.db.RLock()
	defer repo.db.RUnlock()

	evts := make([]tuition.ReceiptEvent, 0, len(repo.db.seq))
	for _, id := range repo.db.seq {
		evts = append(evts, *repo.db.receipts[id])
	}
	return evts
}
