package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validation constraint constants.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0

	// Loose bounding box of Iran. Farms outside it are accepted but logged by
	// the API as suspicious, since no GeoPoint file covers them.
	IranMinLat = 25.0
	IranMaxLat = 40.0
	IranMinLon = 44.0
	IranMaxLon = 63.5
)

// InServiceArea reports whether the coordinate falls inside the area covered
// by the national model files.
func InServiceArea(c Coordinate) bool {
	return c.Lat >= IranMinLat && c.Lat <= IranMaxLat && c.Lon >= IranMinLon && c.Lon <= IranMaxLon
}

var structValidator = newStructValidator()

// newStructValidator reports fields by their JSON names so error details match
// the API payloads.
func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a farm record before it crosses the store boundary.
// Required fields are enforced by struct tags; the product must be known and
// a registered location must be a valid coordinate.
func (f *Farm) Validate() error {
	if f == nil {
		return NewAppError(ErrCodeValidationMissingField, "farm is required", nil)
	}
	if err := structValidator.Struct(f); err != nil {
		return translateValidationError(err)
	}
	if !f.Product.Valid() {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidField,
			fmt.Sprintf("unknown product %q", f.Product), nil,
			map[string]any{"field": "product"})
	}
	if f.Location != nil {
		if err := f.Location.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// translateValidationError turns the first validator.FieldError into an
// AppError naming the offending field.
func translateValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewAppError(ErrCodeValidationInvalidField, "invalid farm record", err)
	}
	fe := fieldErrs[0]
	field := fe.Field()
	code := ErrCodeValidationInvalidField
	if fe.Tag() == "required" {
		code = ErrCodeValidationMissingField
	}
	return NewAppErrorWithDetails(code,
		fmt.Sprintf("field %s failed %s validation", field, fe.Tag()), err,
		map[string]any{"field": field, "rule": fe.Tag()})
}
