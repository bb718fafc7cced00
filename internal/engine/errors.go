package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"rocket-relations/internal/instrument"
	"rocket-relations/internal/record"
	"rocket-relations/internal/relation"
	"rocket-relations/internal/store"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
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

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
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

// ToAppError classifies domain errors; it returns nil for errors that
// should surface as internal errors.
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var unknownAttr *relation.UnknownAttributeError
	var relErr *relation.RelationError
	switch {
	case errors.As(err, &unknownAttr):
		return &AppError{
			Code:    "UNKNOWN_FIELD",
			Status:  400,
			Message: err.Error(),
			Details: []ErrorDetail{{Field: unknownAttr.Attribute, Message: "unknown attribute"}},
		}
	case errors.Is(err, record.ErrComputed):
		return &AppError{Code: "READ_ONLY_FIELD", Status: 400, Message: err.Error()}
	case errors.Is(err, record.ErrUnknownField):
		return &AppError{Code: "UNKNOWN_FIELD", Status: 400, Message: err.Error()}
	case relation.IsUndeclaredRelation(err):
		return &AppError{Code: "UNKNOWN_RELATION", Status: 404, Message: err.Error()}
	case relation.IsUnsupportedRelation(err):
		return &AppError{Code: "UNSUPPORTED_RELATION", Status: 400, Message: err.Error()}
	case errors.As(err, &relErr):
		return &AppError{Code: "RELATION_CONSTRAINT", Status: 409, Message: err.Error()}
	case relation.IsSchemaError(err):
		return &AppError{Code: "SCHEMA_ERROR", Status: 500, Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: err.Error()}
	case errors.Is(err, store.ErrUniqueViolation):
		return ConflictError("A record with this value already exists")
	case errors.Is(err, store.ErrForeignKey):
		return &AppError{Code: "RELATION_CONSTRAINT", Status: 409, Message: "A referenced record does not exist or is still referenced"}
	}
	return nil
}

// NewErrorHandler renders AppErrors and classified domain errors; anything
// else is logged and reported as an internal error.
func NewErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr := ToAppError(err); appErr != nil {
			return respondError(c, appErr)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return respondError(c, &AppError{Code: "HTTP_ERROR", Status: fiberErr.Code, Message: fiberErr.Message})
		}

		instrument.Logger(c.UserContext(), logger).Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return respondError(c, &AppError{
			Code:    "INTERNAL_ERROR",
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
		})
	}
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}
