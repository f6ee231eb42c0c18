// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Kiriban/app/dto"
	"github.com/amirphl/Kiriban/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultRequestTimeout = 10 * time.Second

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:      errorCode,
			RequestID: c.GetRespHeader("X-Request-ID"),
			Details:   details,
		},
	})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func validationErrors(err error) []string {
	var messages []string
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			messages = append(messages, getValidationErrorMessage(fe))
		}
		return messages
	}
	return []string{err.Error()}
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "printascii", "excludesall":
		return err.Field() + " contains characters that are not allowed"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// createRequestContext detaches the flow from the fiber request and carries
// the request id for flow logs. The caller must invoke the returned cancel func.
func createRequestContext(c fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.GetRespHeader("X-Request-ID"))
	return ctx, cancel
}
