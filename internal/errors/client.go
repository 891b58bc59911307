package errors

import (
	"fmt"
	"net"
)

// Client-specific error constructors

// NetworkError creates an error for transport-level failures
func NetworkError(operation string, cause error) *AppError {
	code := "NETWORK_ERROR"
	severity := SeverityMedium
	userMessage := "Network error. Please check your connection."

	if netErr, ok := cause.(net.Error); ok && netErr.Timeout() {
		code = "NETWORK_TIMEOUT"
		userMessage = "The request timed out. Please try again."
	} else if opErr, ok := cause.(*net.OpError); ok && opErr.Op == "dial" {
		code = "NETWORK_DIAL_FAILED"
		severity = SeverityHigh
		userMessage = "Could not reach the server."
	}

	return Wrap(cause, ErrorTypeNetwork, code, fmt.Sprintf("network %s failed", operation)).
		WithSeverity(severity).
		WithUserMessage(userMessage)
}

// TimeoutError creates an error for a request that exceeded the client timeout.
// Kept distinct from server errors so callers can tell the two apart.
func TimeoutError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeTimeout, "REQUEST_TIMEOUT", fmt.Sprintf("%s timed out", operation)).
		WithSeverity(SeverityMedium).
		WithUserMessage("The request timed out. Please try again.")
}

// UnauthorizedError creates an error for a 401 response
func UnauthorizedError(operation string) *AppError {
	return New(ErrorTypeAuthentication, "UNAUTHORIZED", fmt.Sprintf("unauthorized response during %s", operation)).
		WithSeverity(SeverityMedium).
		WithUserMessage("Your session has expired. Please log in again.")
}

// ForbiddenError creates an error for a 403 response
func ForbiddenError(operation string) *AppError {
	return New(ErrorTypeAuthorization, "ACCESS_DENIED", fmt.Sprintf("access denied for %s", operation)).
		WithSeverity(SeverityMedium).
		WithUserMessage("You don't have permission to perform this action.")
}

// ValidationError carries server-provided validation text verbatim when
// present, with a generic fallback otherwise.
func ValidationError(operation, serverMessage string) *AppError {
	user := serverMessage
	if user == "" {
		user = "The request was rejected. Please check your input."
	}
	return New(ErrorTypeValidation, "REQUEST_REJECTED", fmt.Sprintf("%s rejected by server", operation)).
		WithSeverity(SeverityLow).
		WithDetails(serverMessage).
		WithUserMessage(user)
}

// NotFoundError creates an error for a 404 response
func NotFoundError(operation string) *AppError {
	return New(ErrorTypeNotFound, "NOT_FOUND", fmt.Sprintf("%s: resource not found", operation)).
		WithSeverity(SeverityLow).
		WithUserMessage("The requested item no longer exists.")
}

// ServerError creates an error for a 5xx response
func ServerError(operation string, status int) *AppError {
	return New(ErrorTypeExternal, "SERVER_ERROR", fmt.Sprintf("%s failed with status %d", operation, status)).
		WithSeverity(SeverityHigh).
		WithUserMessage("The server is having trouble. Please try again later.")
}

// RealtimeError creates an error for the event channel. These are logged,
// never surfaced to the UI (stale data is the visible symptom).
func RealtimeError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeRealtime, "REALTIME_ERROR", fmt.Sprintf("realtime %s failed", operation)).
		WithSeverity(SeverityLow)
}

// StorageError creates an error for the device key-value store
func StorageError(operation, key string, cause error) *AppError {
	return Wrap(cause, ErrorTypeStorage, "STORAGE_ERROR", fmt.Sprintf("storage %s failed for %q", operation, key)).
		WithSeverity(SeverityHigh).
		WithUserMessage("Could not access local storage.")
}

// DecodeError creates an error for an unparseable server response
func DecodeError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeExternal, "DECODE_ERROR", fmt.Sprintf("decode %s response", operation)).
		WithSeverity(SeverityMedium).
		WithUserMessage("The server sent an unexpected response.")
}

// IsRecoverable determines if an error is recoverable (can be retried)
func IsRecoverable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		switch appErr.Type {
		case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeRealtime:
			return appErr.Severity != SeverityCritical
		case ErrorTypeExternal:
			return true
		case ErrorTypeValidation, ErrorTypeAuthentication, ErrorTypeAuthorization, ErrorTypeNotFound:
			return false
		case ErrorTypeInternal, ErrorTypeStorage:
			return appErr.Severity == SeverityLow || appErr.Severity == SeverityMedium
		}
	}
	return false
}

// ShouldRetry determines if an operation should be retried based on the error
func ShouldRetry(err error, attemptCount int, maxAttempts int) bool {
	if attemptCount >= maxAttempts {
		return false
	}
	return IsRecoverable(err)
}
