package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"category-tree/internal/model"
)

type APIError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Details    string        `json:"details,omitempty"`
	Issues     []model.Issue `json:"issues,omitempty"`
	HTTPStatus int           `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// FromError explains err to a caller. A refused move carries its full issue list.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	out := classify(err)
	out.Details = err.Error()

	var moveErr *model.MoveError
	if errors.As(err, &moveErr) {
		out.Issues = moveErr.Issues
		messages := make([]string, 0, len(moveErr.Issues))
		for _, issue := range moveErr.Issues {
			messages = append(messages, issue.Message)
		}
		if len(messages) > 0 {
			out.Message = strings.Join(messages, "; ")
		}
	}

	return out
}

func classify(err error) *APIError {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return New("NOT_FOUND", "category not found", "", http.StatusNotFound)
	case errors.Is(err, model.ErrConcurrentModification):
		return New("CONFLICT", "a concurrent edit changed this subtree, please retry", "", http.StatusConflict)
	case errors.Is(err, model.ErrConstraintViolation):
		return New("CONSTRAINT_VIOLATION", "the move breaks a business constraint", "", http.StatusUnprocessableEntity)
	case errors.Is(err, model.ErrInvalidOperation):
		return New("INVALID_OPERATION", "the operation is not allowed", "", http.StatusUnprocessableEntity)
	case errors.Is(err, model.ErrInvalidInput):
		return New("BAD_REQUEST", "invalid input", "", http.StatusBadRequest)
	case errors.Is(err, model.ErrStoreFailure):
		return New("STORE_FAILURE", "the store failed; no changes were applied", "", http.StatusServiceUnavailable)
	default:
		return New("INTERNAL_ERROR", "unexpected error", "", http.StatusInternalServerError)
	}
}
