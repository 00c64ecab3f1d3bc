// Package receiptsvc delivers the receipts of discharged installments.
// Receipt events are written with the discharge; the Worker relays them to guardians by email,
// retrying failed deliveries with an exponential backoff.
package receiptsvc

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/student"
	"github.com/trezcool/ecolage/core/tuition"
)

const (
	TemplateName = "receipt"
	maxBackoff   = 24 * time.Hour
)

var nowFunc = time.Now // mockable

// errNoRecipient is returned when a student has no guardian email to deliver to.
var errNoRecipient = errors.New("student has no guardian email")

type receiptData struct {
	SchoolName    string
	Subject       string
	GuardianName  string
	StudentName   string
	PeriodLabel   string
	ReceiptID     string
	PaymentDate   string
	OriginalValue string
	Penalty       string
	Interest      string
	PaidValue     string
}

type Worker struct {
	outbox       tuition.ReceiptOutbox
	installments tuition.Repository
	students     student.Repository
	mailSvc      core.EmailService
	logger       core.Logger

	appName     string
	currency    string
	schedule    string
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration

	mu   sync.Mutex // serializes flushes
	cron *cron.Cron
}

func NewWorker(
	outbox tuition.ReceiptOutbox,
	installments tuition.Repository,
	students student.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Worker {
	w := &Worker{
		outbox:       outbox,
		installments: installments,
		students:     students,
		mailSvc:      mailSvc,
		logger:       logger,
		appName:      conf.AppName,
		currency:     conf.Billing.Currency,
		schedule:     conf.Receipts.Schedule,
		batchSize:    conf.Receipts.BatchSize,
		maxAttempts:  conf.Receipts.MaxAttempts,
		retryDelay:   conf.Receipts.RetryDelay,
	}
	if w.schedule == "" {
		w.schedule = "@every 30s"
	}
	if w.batchSize <= 0 {
		w.batchSize = 50
	}
	if w.retryDelay <= 0 {
		w.retryDelay = time.Minute
	}
	return w
}

// Start flushes the outbox on the configured cron schedule.
func (w *Worker) Start() error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(w.schedule, func() {
		if _, err := w.Flush(context.Background()); err != nil {
			w.logger.Error(fmt.Sprintf("flushing receipts: %v", err), err)
		}
	}); err != nil {
		return errors.Wrapf(err, "scheduling receipts (%s)", w.schedule)
	}
	w.cron = c
	c.Start()
	return nil
}

// Stop stops the schedule and waits for a running flush to complete, or ctx to be done.
func (w *Worker) Stop(ctx context.Context) {
	if w.cron == nil {
		return
	}
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Flush delivers the receipt events that are due and returns the number delivered.
// Failed deliveries are rescheduled: they never affect the discharged installments.
func (w *Worker) Flush(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := nowFunc()
	evts, err := w.outbox.PendingReceiptEvents(ctx, now, w.maxAttempts, w.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "fetching receipt events")
	}

	var delivered int
	for _, evt := range evts {
		if err = ctx.Err(); err != nil {
			return delivered, err
		}

		err = w.deliver(ctx, evt)
		switch {
		case err == nil, errors.Is(err, errNoRecipient), errors.Is(err, tuition.ErrNotFound):
			if err != nil {
				w.logger.Warn(fmt.Sprintf("receipt %s not sent: %v", evt.ReceiptID, err))
			}
			if err = w.outbox.MarkReceiptDelivered(ctx, evt.ID, nowFunc()); err != nil {
				return delivered, errors.Wrapf(err, "marking receipt %s delivered", evt.ReceiptID)
			}
			delivered++
		default:
			attempts := evt.Attempts + 1
			next := now.Add(Backoff(w.retryDelay, attempts))
			extras := map[string]interface{}{"receipt_id": evt.ReceiptID, "attempts": attempts, "unit": evt.Unit}
			if w.maxAttempts > 0 && attempts >= w.maxAttempts {
				w.logger.Error(fmt.Sprintf("receipt %s: giving up after %d attempts: %v", evt.ReceiptID, attempts, err), err, extras)
			} else {
				w.logger.Warn(fmt.Sprintf("receipt %s: delivery failed: %v", evt.ReceiptID, err), extras)
			}
			if mErr := w.outbox.MarkReceiptFailed(ctx, evt.ID, err.Error(), next); mErr != nil {
				return delivered, errors.Wrapf(mErr, "marking receipt %s failed", evt.ReceiptID)
			}
		}
	}
	return delivered, nil
}

func (w *Worker) deliver(ctx context.Context, evt tuition.ReceiptEvent) error {
	inst, err := w.installments.GetInstallment(ctx, evt.Unit, evt.InstallmentID)
	if err != nil {
		return err
	}
	if inst.Payment == nil {
		return errors.Errorf("installment %s has no payment", inst.ID)
	}

	std, err := w.students.GetStudent(ctx, evt.Unit, inst.StudentID)
	if err != nil {
		if errors.Is(err, student.ErrNotFound) {
			return errNoRecipient
		}
		return err
	}
	to, ok := std.Recipient()
	if !ok {
		return errNoRecipient
	}

	subject := "Recibo " + evt.ReceiptID + " - " + inst.PeriodLabel
	msg := &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      subject,
		TemplateName: TemplateName,
		TemplateData: receiptData{
			SchoolName:    w.appName,
			Subject:       subject,
			GuardianName:  to.Name,
			StudentName:   std.Name,
			PeriodLabel:   inst.PeriodLabel,
			ReceiptID:     evt.ReceiptID,
			PaymentDate:   inst.Payment.PaymentDate.Format("02/01/2006"),
			OriginalValue: w.money(inst.OriginalValue),
			Penalty:       w.money(inst.Payment.PenaltyValue),
			Interest:      w.money(inst.Payment.InterestValue),
			PaidValue:     w.money(inst.Payment.PaidValue),
		},
	}
	return w.mailSvc.SendMessage(ctx, msg)
}

func (w *Worker) money(d decimal.Decimal) string {
	if w.currency == "" || strings.EqualFold(w.currency, "BRL") {
		return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
	}
	return w.currency + " " + d.StringFixed(2)
}

// Backoff returns the delay before the given delivery attempt: delay, 2*delay, 4*delay... capped to a day.
func Backoff(delay time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := delay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
