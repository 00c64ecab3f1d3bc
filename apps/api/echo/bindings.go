package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/tuition"
)

// Request payloads carry calendar dates as "YYYY-MM-DD" strings.

type eventChargeRequest struct {
	StudentID      string          `json:"student_id"`
	Description    string          `json:"description"`
	Value          decimal.Decimal `json:"value"`
	DueDate        string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	DocumentNumber string          `json:"document_number"`
}

type dischargeRequest struct {
	InstallmentID  string       `json:"installment_id"`
	DocumentNumber string       `json:"document_number"`
	PaymentDate    string       `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Amounts        *tuition.Due `json:"amounts"`
}

type dueQuery struct {
	AsOf string `query:"as_of" json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

// bind binds the request into data and validates it.
func bind(ctx echo.Context, v *core.Validator, data interface{}) error {
	if err := bindPayload(ctx, data); err != nil {
		return err
	}
	return v.Struct(data)
}

// bindPayload binds the request into data, leaving validation to the caller.
// Malformed payloads are reported as a ValidationError, other failures are internal.
func bindPayload(ctx echo.Context, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		var herr *echo.HTTPError
		if errors.As(err, &herr) {
			return core.NewValidationError(errors.New("invalid request payload"))
		}
		return errors.Wrapf(err, "binding to %T", data)
	}
	return nil
}

// bindQuery binds the query params into data, whatever the request method.
func bindQuery(ctx echo.Context, data interface{}) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, data); err != nil {
		return core.NewValidationError(errors.New("invalid query params"))
	}
	return nil
}

// parseDate parses a date validated by the "datetime=2006-01-02" tag; empty means `def`.
func parseDate(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return def
	}
	return d
}
