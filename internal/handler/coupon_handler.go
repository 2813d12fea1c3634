package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-book-system/internal/codegen"
	"github.com/fairyhunter13/coupon-book-system/internal/model"
)

// CouponServiceInterface defines the interface for coupon lifecycle business logic.
type CouponServiceInterface interface {
	AssignRandom(ctx context.Context, bookID uuid.UUID, userID string) (*model.AssignmentResult, error)
	AssignSpecific(ctx context.Context, code, userID string) (*model.AssignmentResult, error)
	Lock(ctx context.Context, code, userID string, durationSeconds int) (*model.LockResult, error)
	Unlock(ctx context.Context, code, userID string) error
	Redeem(ctx context.Context, code, userID string, metadata map[string]any) (*model.RedeemResult, error)
	GetStatus(ctx context.Context, code, userID string) (*model.CouponStatusResult, error)
	GetUserCoupons(ctx context.Context, userID string, page, limit int) (*model.UserCouponsResponse, error)
}

// CouponHandler handles HTTP requests for coupon lifecycle operations.
// Authentication happens upstream; the subject identifier arrives in
// the request body for mutations and in the X-User-ID header for reads.
type CouponHandler struct {
	service   CouponServiceInterface
	validator *validator.Validate
}

// NewCouponHandler creates a new CouponHandler with the given service and validator.
func NewCouponHandler(svc CouponServiceInterface, v *validator.Validate) *CouponHandler {
	return &CouponHandler{service: svc, validator: v}
}

func couponLogFields(code, userID string) func(e *zerolog.Event) *zerolog.Event {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Str("code", code).Str("user_id", userID)
	}
}

// AssignRandom handles POST /api/coupons/assign/random.
func (h *CouponHandler) AssignRandom(c *fiber.Ctx) error {
	var req model.AssignRandomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.AssignRandom(c.Context(), req.BookID, req.UserID)
	if err != nil {
		return respondServiceError(c, err, "failed to assign random coupon", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("book_id", req.BookID.String()).Str("user_id", req.UserID)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("code", result.Code).
		Str("user_id", req.UserID).
		Msg("coupon assigned")

	return c.JSON(result)
}

// AssignSpecific handles POST /api/coupons/assign/:code.
func (h *CouponHandler) AssignSpecific(c *fiber.Ctx) error {
	code := codegen.Normalize(c.Params("code"))

	var req model.AssignSpecificRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.AssignSpecific(c.Context(), code, req.UserID)
	if err != nil {
		return respondServiceError(c, err, "failed to assign coupon", couponLogFields(code, req.UserID))
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("code", code).
		Str("user_id", req.UserID).
		Msg("coupon assigned")

	return c.JSON(result)
}

// Lock handles POST /api/coupons/:code/lock.
func (h *CouponHandler) Lock(c *fiber.Ctx) error {
	code := codegen.Normalize(c.Params("code"))

	var req model.LockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	duration := 0
	if req.DurationSeconds != nil {
		duration = *req.DurationSeconds
	}
	result, err := h.service.Lock(c.Context(), code, req.UserID, duration)
	if err != nil {
		return respondServiceError(c, err, "failed to lock coupon", couponLogFields(code, req.UserID))
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("code", code).
		Str("user_id", req.UserID).
		Time("lock_expires_at", result.LockExpiresAt).
		Msg("coupon locked")

	return c.JSON(result)
}

// Unlock handles POST /api/coupons/:code/unlock.
func (h *CouponHandler) Unlock(c *fiber.Ctx) error {
	code := codegen.Normalize(c.Params("code"))

	var req model.UnlockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	if err := h.service.Unlock(c.Context(), code, req.UserID); err != nil {
		return respondServiceError(c, err, "failed to unlock coupon", couponLogFields(code, req.UserID))
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("code", code).
		Str("user_id", req.UserID).
		Msg("coupon unlocked")

	return c.JSON(fiber.Map{"code": code, "status": model.StatusAssigned})
}

// Redeem handles POST /api/coupons/:code/redeem.
func (h *CouponHandler) Redeem(c *fiber.Ctx) error {
	code := codegen.Normalize(c.Params("code"))

	var req model.RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.Redeem(c.Context(), code, req.UserID, req.Metadata)
	if err != nil {
		return respondServiceError(c, err, "failed to redeem coupon", couponLogFields(code, req.UserID))
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("code", code).
		Str("user_id", req.UserID).
		Int("redemption_count", result.RedemptionCount).
		Bool("fully_redeemed", result.FullyRedeemed).
		Msg("coupon redeemed")

	return c.JSON(result)
}

// GetStatus handles GET /api/coupons/:code/status.
func (h *CouponHandler) GetStatus(c *fiber.Ctx) error {
	code := codegen.Normalize(c.Params("code"))
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: X-User-ID header is required"})
	}

	result, err := h.service.GetStatus(c.Context(), code, userID)
	if err != nil {
		return respondServiceError(c, err, "failed to get coupon status", couponLogFields(code, userID))
	}
	return c.JSON(result)
}

// MyCoupons handles GET /api/coupons/my-coupons.
func (h *CouponHandler) MyCoupons(c *fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: X-User-ID header is required"})
	}
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	result, err := h.service.GetUserCoupons(c.Context(), userID, page, limit)
	if err != nil {
		return respondServiceError(c, err, "failed to list user coupons", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("user_id", userID)
		})
	}
	return c.JSON(result)
}
