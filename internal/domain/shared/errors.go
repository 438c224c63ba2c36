package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrValidation          = NewDomainError("VALIDATION_ERROR", "Invalid input provided")
	ErrConstraintViolation = NewDomainError("CONSTRAINT_VIOLATION", "Operation violates a domain constraint")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientHistory = NewDomainError("INSUFFICIENT_HISTORY", "Not enough usage history to forecast")
	ErrExternalService     = NewDomainError("EXTERNAL_SERVICE", "External service call failed")
	ErrInvalidSignature    = NewDomainError("SIGNATURE_INVALID", "Event signature verification failed")
)
