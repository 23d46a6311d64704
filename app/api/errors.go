package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"ragchat/rag"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiError Error
	if errors.As(err, &apiError) {
		return c.Status(apiError.Code).JSON(apiError)
	}

	var valError ValidationError
	if errors.As(err, &valError) {
		return c.Status(valError.Status).JSON(valError)
	}

	var fiberError *fiber.Error
	switch {
	case errors.As(err, &fiberError):
		apiError = NewError(fiberError.Code, fiberError.Message)
	case errors.Is(err, sql.ErrNoRows):
		apiError = NewError(fiber.StatusNotFound, "not found")
	case errors.Is(err, rag.ErrCompletionRejected):
		apiError = NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, rag.ErrEmbeddingUnavailable), errors.Is(err, rag.ErrCompletionUnavailable):
		apiError = NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		apiError = NewError(fiber.StatusInternalServerError, err.Error())
	}

	log.Printf("Request failed with code %d and message: %s\n", apiError.Code, apiError.Message)
	return c.Status(apiError.Code).JSON(apiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
