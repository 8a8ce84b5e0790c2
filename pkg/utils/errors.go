package utils

const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeConflict           = "CONFLICT"
)

// AppError is the wire shape for errors returned by the API. Code is a stable
// machine-readable identifier; Details carries optional context for debugging.
type AppError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code, message string, details ...interface{}) *AppError {
	appErr := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		appErr.Details = details[0]
	}
	return appErr
}
