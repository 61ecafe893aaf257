package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/calibrate"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/structure"
)

// ApiError is the body of every error response.
type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Missing lists display names of missing fields, when that is the cause.
	Missing []string `json:"missing,omitempty"`
	// Invalid lists display names of supplied values that could not be read.
	Invalid []string `json:"invalid,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeMissingFields     = "MISSING_FIELDS"
	ErrCodeInvalidFields     = "INVALID_FIELDS"
	ErrCodeUnknownSchema     = "UNKNOWN_SCHEMA"
	ErrCodeInvalidLegSpec    = "INVALID_LEG_SPEC"
	ErrCodeUnknownStructure  = "UNKNOWN_STRUCTURE"
	ErrCodeRateCheckFailed   = "RATE_CHECK_FAILED"
	ErrCodeUnsupportedLeg    = "UNSUPPORTED_LEG_FAMILY"
	ErrCodeMissingValue      = "MISSING_VALUE"
	ErrCodeNoRoot            = "NO_ROOT"
	ErrCodeMarketUnavailable = "MARKET_UNAVAILABLE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

func writeJsonError(w http.ResponseWriter, statusCode int, apiErr ApiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]ApiError{"error": apiErr})
}

// classify maps an error from the engine packages to a status code and ApiError.
func classify(err error) (int, ApiError) {
	var (
		mfe *resolver.MissingFieldsError
		ife *resolver.InvalidFieldsError
		fre *resolver.FragmentError
		ume *resolver.UnknownMethodError
		use *schema.UnknownSchemaError
		uev *schema.UnknownEnumValueError
		ile *structure.InvalidLegSpecError
		upe *structure.UnknownPackageError
		ude *structure.UnknownSideError
		rce *assembler.RateCheckFailedError
		ufe *assembler.UnsupportedLegFamilyError
		mve *assembler.MissingValueError
	)
	msg := err.Error()
	switch {
	case errors.As(err, &mfe):
		return http.StatusUnprocessableEntity, ApiError{Code: ErrCodeMissingFields, Message: msg, Missing: mfe.Missing}
	case errors.As(err, &ife):
		return http.StatusBadRequest, ApiError{Code: ErrCodeInvalidFields, Message: msg, Invalid: ife.Fields()}
	case errors.As(err, &fre), errors.As(err, &uev):
		return http.StatusBadRequest, ApiError{Code: ErrCodeInvalidInput, Message: msg}
	case errors.As(err, &use), errors.As(err, &ume):
		return http.StatusBadRequest, ApiError{Code: ErrCodeUnknownSchema, Message: msg}
	case errors.As(err, &ile):
		return http.StatusBadRequest, ApiError{Code: ErrCodeInvalidLegSpec, Message: msg}
	case errors.As(err, &upe), errors.As(err, &ude):
		return http.StatusNotFound, ApiError{Code: ErrCodeUnknownStructure, Message: msg}
	case errors.As(err, &rce):
		return http.StatusUnprocessableEntity, ApiError{Code: ErrCodeRateCheckFailed, Message: msg}
	case errors.As(err, &ufe):
		return http.StatusUnprocessableEntity, ApiError{Code: ErrCodeUnsupportedLeg, Message: msg}
	case errors.As(err, &mve):
		return http.StatusUnprocessableEntity, ApiError{Code: ErrCodeMissingValue, Message: msg, Missing: []string{mve.Name}}
	case errors.Is(err, calibrate.ErrNoRoot):
		return http.StatusUnprocessableEntity, ApiError{Code: ErrCodeNoRoot, Message: msg}
	default:
		return http.StatusInternalServerError, ApiError{Code: ErrCodeInternalError, Message: msg}
	}
}
