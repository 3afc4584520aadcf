package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/boxfi/boxd/internal/vault"
)

type ErrorType string

const (
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrAccounting     ErrorType = "ACCOUNTING_VIOLATION"
	ErrGovernance     ErrorType = "GOVERNANCE_REJECT"
	ErrLifecycle      ErrorType = "LIFECYCLE_REJECT"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrReadOnly       ErrorType = "READ_ONLY"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the HTTP surface.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewAuthFailed(msg string) *AppError {
	return New(ErrAuthFailed, msg, nil)
}

// Wrap classifies an engine error into the HTTP taxonomy. Every violated
// invariant surfaces as a full-operation failure; nothing is retried here.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(classify(err), err.Error(), err)
}

func classify(err error) ErrorType {
	switch {
	case errors.Is(err, vault.ErrNotOwner),
		errors.Is(err, vault.ErrNotCurator),
		errors.Is(err, vault.ErrNotGuardian),
		errors.Is(err, vault.ErrNotAllocator),
		errors.Is(err, vault.ErrNotFeeder):
		return ErrAuthFailed
	case errors.Is(err, vault.ErrZeroAmount),
		errors.Is(err, vault.ErrNilAdapter),
		errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, vault.ErrTokenNotListed),
		errors.Is(err, vault.ErrMissingPrice),
		errors.Is(err, vault.ErrPayloadTooShort):
		return ErrInvalidRequest
	case errors.Is(err, vault.ErrOverspent),
		errors.Is(err, vault.ErrAllocationShort),
		errors.Is(err, vault.ErrSlippageBudget),
		errors.Is(err, vault.ErrInsufficientValue),
		errors.Is(err, vault.ErrZeroValue),
		errors.Is(err, vault.ErrFlashNotRepaid),
		errors.Is(err, vault.ErrValuationInFlight):
		return ErrAccounting
	case errors.Is(err, vault.ErrNotScheduled),
		errors.Is(err, vault.ErrNotMatured),
		errors.Is(err, vault.ErrAlreadyScheduled),
		errors.Is(err, vault.ErrUnknownSelector),
		errors.Is(err, vault.ErrTimelockDecrease),
		errors.Is(err, vault.ErrTimelockCap):
		return ErrGovernance
	case errors.Is(err, vault.ErrShutdown),
		errors.Is(err, vault.ErrNotShutdown),
		errors.Is(err, vault.ErrAlreadyShutdown),
		errors.Is(err, vault.ErrTokenInUse),
		errors.Is(err, vault.ErrFacilityInUse),
		errors.Is(err, vault.ErrAdapterInUse),
		errors.Is(err, vault.ErrReentrancy),
		errors.Is(err, vault.ErrFlashInFlight):
		return ErrLifecycle
	case errors.Is(err, vault.ErrFacilityNotFound):
		return ErrNotFound
	default:
		return ErrInternal
	}
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrAccounting:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrGovernance, ErrLifecycle:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrReadOnly:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAuthFailed:
		return "Check the API key and the role it maps to."
	case ErrAccounting:
		return "Reduce the trade size or wait for the slippage epoch to reset."
	case ErrGovernance:
		return "Submit the action first and wait for the timelock to mature."
	case ErrLifecycle:
		return "Check the vault's shutdown state before retrying."
	default:
		return ""
	}
}
