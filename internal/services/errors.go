package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError carries the HTTP status a handler should answer with
type ServiceError struct {
	Status  int
	Message string
	Details interface{}
}

func (e ServiceError) Error() string {
	return e.Message
}

func ErrBadRequest(msg string) error {
	return ServiceError{Status: http.StatusBadRequest, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Status: http.StatusUnauthorized, Message: msg}
}

func ErrForbidden(msg string) error {
	return ServiceError{Status: http.StatusForbidden, Message: msg}
}

func ErrNotFound(msg string) error {
	return ServiceError{Status: http.StatusNotFound, Message: msg}
}

func ErrConflict(msg string) error {
	return ServiceError{Status: http.StatusConflict, Message: msg}
}

// AsServiceError unwraps err into a ServiceError when it is one
func AsServiceError(err error) (ServiceError, bool) {
	var se ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return ServiceError{}, false
}

func wrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
