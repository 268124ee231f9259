package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationError(message string) *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: message}
}

func conflictError(message string) *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func forbiddenError(message string) *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: message}
}

func notFoundError(message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func storageCorruptError(message string) *DomainError {
	return &DomainError{Status: http.StatusInternalServerError, Code: "STORAGE_CORRUPT", Message: message}
}
