package core

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	notBlankTag  = "notblank"
	notBlankText = "this field cannot be blank"

	requiredTag     = "required"
	requiredWithTag = "required_without"
	requiredText    = "this field is required"
)

// Validator bundles the struct validator with the translator used to render its errors.
type Validator struct {
	Validate   *validator.Validate
	Translator ut.Translator
}

// NewValidator returns a Validator with the english translations and the global custom validators registered.
func NewValidator() *Validator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	v := &Validator{
		Validate:   validator.New(),
		Translator: translator,
	}
	InitValidators(v)
	return v
}

// Struct validates s and returns a *ValidationError describing every invalid field.
func (v *Validator) Struct(s interface{}) error {
	if err := v.Validate.Struct(s); err != nil {
		return translateValidationErrors(err, v)
	}
	return nil
}

// InitValidators instantiates the validator for use.
func InitValidators(v *Validator) {
	_ = en_translations.RegisterDefaultTranslations(v.Validate, v.Translator)

	// Use JSON tag names for errors instead of Go struct names.
	v.Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = v.Validate.RegisterValidation(notBlankTag, notBlankValidation)
	RegisterCustomTranslation(v, notBlankTag, notBlankText)

	RegisterCustomTranslation(v, requiredTag, requiredText, true)
	RegisterCustomTranslation(v, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(v *Validator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = v.Validate.RegisterTranslation(
		tag, v.Translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// notBlankValidation rejects strings made only of whitespace.
func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}
