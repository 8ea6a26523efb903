package engine

import (
	"fmt"

	"adminkit/internal/mapping"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Path    string `json:"path,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(typeName, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", typeName, id),
	}
}

func UnknownTypeError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_TYPE",
		Status:  404,
		Message: fmt.Sprintf("Unknown type: %s", name),
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

// ValidationError renders the mapper's accumulated field errors. Entries keep
// encounter order; multiple errors may share a path.
func ValidationError(errs *mapping.Errors) *AppError {
	details := make([]ErrorDetail, 0, errs.Len())
	for _, fe := range errs.All() {
		details = append(details, ErrorDetail{
			Path:    fe.Path,
			Rule:    fe.Code,
			Message: fe.Message,
		})
	}
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}
