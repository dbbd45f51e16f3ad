package core

import (
	"errors"
	"testing"

	"agriweather/internal/types"
)

type locationDTO struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lon *float64 `json:"lon" validate:"required,longitude"`
}

type farmDTO struct {
	Name    string `json:"name" validate:"required,max=10"`
	Product string `json:"product" validate:"required,product"`
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := NewValidator(discardLogger())
	f := func(x float64) *float64 { return &x }

	tests := []struct {
		name      string
		dto       any
		wantCode  types.ErrorCode
		wantField string
	}{
		{"valid location", locationDTO{Lat: f(30.4), Lon: f(56)}, "", ""},
		{"missing lat", locationDTO{Lon: f(56)}, types.ErrCodeValidationMissingField, "lat"},
		{"bad lat", locationDTO{Lat: f(91), Lon: f(56)}, types.ErrCodeValidationInvalidLat, "lat"},
		{"bad lon", locationDTO{Lat: f(30), Lon: f(-181)}, types.ErrCodeValidationInvalidLon, "lon"},
		{"valid farm", farmDTO{Name: "North", Product: "pistachio"}, "", ""},
		{"unknown product", farmDTO{Name: "North", Product: "saffron"}, types.ErrCodeValidationInvalidField, "product"},
		{"long name", farmDTO{Name: "North Orchard", Product: "almond"}, types.ErrCodeValidationInvalidField, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.dto)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, appErr.Code)
			}
			if appErr.Details["field"] != tt.wantField {
				t.Errorf("expected field %s, got %v", tt.wantField, appErr.Details["field"])
			}
		})
	}
}

func TestValidator_NotAStruct(t *testing.T) {
	v := NewValidator(discardLogger())
	if got := types.CodeOf(v.ValidateStruct(42)); got != types.ErrCodeInternalUnexpected {
		t.Errorf("expected internal error, got %s", got)
	}
}
