package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-book-system/internal/service"
)

// respondServiceError maps a service error onto the transport:
// Validation 400, NotFound 404, Conflict 409, Business 422, anything
// unrecognized is logged with the request id and masked as 500.
func respondServiceError(c *fiber.Ctx, err error, event string, fields func(e *zerolog.Event) *zerolog.Event) error {
	switch service.KindOf(err) {
	case service.KindValidation:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case service.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case service.KindConflict:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case service.KindBusiness:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	e := log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path())
	if fields != nil {
		e = fields(e)
	}
	e.Msg(event)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// formatValidationError converts validator errors into per-field
// messages. Unknown fields get a descriptive fallback.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := jsonFieldName(fe.Field())
			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be whitespace only"
			case "max":
				return "invalid request: " + field + " exceeds maximum of " + fe.Param()
			case "min":
				return "invalid request: " + field + " is below minimum of " + fe.Param()
			case "gte":
				return "invalid request: " + field + " must be at least " + fe.Param()
			case "lte":
				return "invalid request: " + field + " must be at most " + fe.Param()
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// jsonFieldName maps exported struct field names onto their JSON keys
// for error messages.
func jsonFieldName(field string) string {
	switch field {
	case "Name":
		return "name"
	case "Description":
		return "description"
	case "ValidFrom":
		return "valid_from"
	case "ValidUntil":
		return "valid_until"
	case "MaxRedemptionsPerUser":
		return "max_redemptions_per_user"
	case "MaxAssignmentsPerUser":
		return "max_assignments_per_user"
	case "CodePattern":
		return "code_pattern"
	case "MaxCodes":
		return "max_codes"
	case "Codes":
		return "codes"
	case "Count":
		return "count"
	case "BookID":
		return "coupon_book_id"
	case "UserID":
		return "user_id"
	case "DurationSeconds":
		return "duration_seconds"
	default:
		return field
	}
}
