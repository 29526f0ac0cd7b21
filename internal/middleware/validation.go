package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"ledgerlens/internal/datastore"
	apperrors "ledgerlens/internal/errors"
)

// MaxDatasetNameLength bounds dataset names accepted over the API
const MaxDatasetNameLength = 128

// Validator checks request DTOs against their struct tags
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that reports JSON field names and
// knows the ledger-specific tags dataset, op and aggfunc
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("dataset", isDatasetName)
	v.RegisterValidation("op", isFilterOp)
	v.RegisterValidation("aggfunc", isAggFunc)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateStruct returns an APIError listing every failed field
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.InvalidRequestWithError(err)
	}

	out := make([]apperrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apperrors.ValidationError{
			Field:   fieldPath(fe),
			Message: formatValidationError(fe),
		})
	}
	return apperrors.NewValidationErrors(out)
}

// ValidateVar checks a single value, such as a URL parameter, against tag
func (v *Validator) ValidateVar(field string, value any, tag string) error {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.InvalidRequestWithError(err)
	}
	msg := strings.TrimPrefix(formatValidationError(fieldErrs[0]), " ")
	return apperrors.ErrValidation(field, field+" "+msg)
}

// fieldPath drops the root struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "dataset":
		return fmt.Sprintf("%s must be 1-%d printable characters without slashes", field, MaxDatasetNameLength)
	case "op":
		return fmt.Sprintf("%s must be one of: eq, gt, lt, between, in, contains", field)
	case "aggfunc":
		return fmt.Sprintf("%s must be one of: sum, avg, min, max, count", field)
	case "unique":
		return fmt.Sprintf("%s must not repeat values", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isDatasetName accepts names that are safe in URL paths and file names
func isDatasetName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if strings.TrimSpace(name) == "" || len(name) > MaxDatasetNameLength {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == '/' || r == '\\' || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func isFilterOp(fl validator.FieldLevel) bool {
	_, ok := datastore.ParseOp(fl.Field().String())
	return ok
}

func isAggFunc(fl validator.FieldLevel) bool {
	_, ok := datastore.ParseAggFunc(fl.Field().String())
	return ok
}
