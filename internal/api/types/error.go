package types

// Error codes returned in the envelope.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeInternal   = "INTERNAL_ERROR"
)

// Error describes why a request failed.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorResponse wraps an error in the envelope.
func ErrorResponse(code, message, details string) Response {
	return Response{Error: &Error{Code: code, Message: message, Details: details}}
}

// ValidationErrorResponse is returned for malformed ids and bodies.
func ValidationErrorResponse(details string) Response {
	return ErrorResponse(CodeValidation, "Invalid input data", details)
}

// NotFoundErrorResponse names the missing resource.
func NotFoundErrorResponse(resource string) Response {
	return ErrorResponse(CodeNotFound, "Resource not found", resource+" not found")
}

// ConflictErrorResponse is returned when the resource state forbids the change.
func ConflictErrorResponse(details string) Response {
	return ErrorResponse(CodeConflict, "Resource conflict", details)
}

// InternalErrorResponse hides the cause; the handler logs it.
func InternalErrorResponse(details string) Response {
	return ErrorResponse(CodeInternal, "Internal server error", details)
}
