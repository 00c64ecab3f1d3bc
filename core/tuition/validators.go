package tuition

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ecolage/core"
)

var (
	nonNegativeTag  = "nonnegative"
	nonNegativeText = "{0} cannot be negative"

	positiveTag  = "positive"
	positiveText = "{0} must be greater than 0"

	statusTag  = "status"
	statusText = "invalid status"
)

// InitValidators registers the tuition validators on v.
func InitValidators(v *core.Validator) {
	v.Validate.RegisterStructValidation(generateStructValidation, GenerateRequest{})
	v.Validate.RegisterStructValidation(eventChargeStructValidation, NewEventCharge{})
	v.Validate.RegisterStructValidation(queryFilterStructValidation, QueryFilter{})

	core.RegisterCustomTranslation(v, nonNegativeTag, nonNegativeText)
	core.RegisterCustomTranslation(v, positiveTag, positiveText)
	core.RegisterCustomTranslation(v, statusTag, statusText)
}

// Custom Validators

// generateStructValidation rejects negative values; zero means "use the student's default value".
func generateStructValidation(sl validator.StructLevel) {
	if req, ok := sl.Current().Interface().(GenerateRequest); ok && req.Value.IsNegative() {
		sl.ReportError(req.Value, "value", "Value", nonNegativeTag, "")
	}
}

func eventChargeStructValidation(sl validator.StructLevel) {
	if ch, ok := sl.Current().Interface().(NewEventCharge); ok && !ch.Value.IsPositive() {
		sl.ReportError(ch.Value, "value", "Value", positiveTag, "")
	}
}

func queryFilterStructValidation(sl validator.StructLevel) {
	qf, ok := sl.Current().Interface().(QueryFilter)
	if !ok {
		return
	}
	if qf.Status != "" && !qf.Status.Valid() {
		sl.ReportError(qf.Status, "status", "Status", statusTag, "")
	}
	if qf.Month < 0 || qf.Month > 12 {
		sl.ReportError(qf.Month, "month", "Month", "max", "12")
	}
}
