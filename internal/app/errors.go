package app

import (
	"errors"
	"fmt"
	"net/http"

	"polarlab/api/internal/calculator"
	"polarlab/api/internal/export"
	"polarlab/api/internal/measure"
	"polarlab/api/internal/reconcile"
	"polarlab/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrTableNotFound):
		return http.StatusNotFound, "TABLE_NOT_FOUND", "Table not found", nil
	case errors.Is(err, store.ErrDistributionNotFound):
		return http.StatusNotFound, "DISTRIBUTION_NOT_FOUND", "Distribution not found", nil
	case errors.Is(err, store.ErrReadOnlyTable):
		return http.StatusConflict, "READ_ONLY_TABLE", "The reference table cannot be edited", nil
	case errors.Is(err, store.ErrIndexOutOfRange):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "index out of range", nil
	case errors.Is(err, measure.ErrUnrecognizedName):
		return http.StatusUnprocessableEntity, "UNRECOGNIZED_NAME", "Measure name not recognized", nil
	case errors.Is(err, calculator.ErrTooFewPoints), errors.Is(err, calculator.ErrInvalidWeight):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, calculator.ErrNotReady):
		return http.StatusConflict, "NOT_READY", "No computed result for the current inputs yet", nil
	case errors.Is(err, reconcile.ErrNothingToSave):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "select a table or name a new one", nil
	case errors.Is(err, export.ErrNothingToExport):
		return http.StatusConflict, "NOTHING_TO_EXPORT", "No table has distributions", nil
	case errors.Is(err, export.ErrUploadDisabled):
		return http.StatusNotImplemented, "UPLOAD_DISABLED", "Object storage is not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
