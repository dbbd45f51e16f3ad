package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"agriweather/internal/types"
)

// Validator checks request DTOs with go-playground/validator. Field names in
// errors are the JSON names.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a validator and registers the "product" tag, which
// accepts the known types.ProductType values.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("product", func(fl validator.FieldLevel) bool {
		return types.ProductType(fl.Field().String()).Valid()
	})
	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates dto and returns the first failure as an AppError:
// validation_missing_required_field for "required", otherwise
// validation_invalid_field, or the coordinate codes for latitude/longitude.
func (v *Validator) ValidateStruct(dto any) error {
	err := v.validate.Struct(dto)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		if v.logger != nil {
			v.logger.Error("validator misuse", "error", err)
		}
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fe := fieldErrs[0]
	code := types.ErrCodeValidationInvalidField
	switch fe.Tag() {
	case "required":
		code = types.ErrCodeValidationMissingField
	case "latitude":
		code = types.ErrCodeValidationInvalidLat
	case "longitude":
		code = types.ErrCodeValidationInvalidLon
	}
	return types.NewAppErrorWithDetails(code,
		fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()), nil,
		map[string]any{"field": fe.Field(), "rule": fe.Tag()})
}
