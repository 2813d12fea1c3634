package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-book-system/internal/model"
)

// BookServiceInterface defines the interface for coupon book business logic.
type BookServiceInterface interface {
	CreateBook(ctx context.Context, req *model.CreateBookRequest) (*model.CouponBook, error)
	GetBook(ctx context.Context, id uuid.UUID) (*model.BookResponse, error)
	ListBooks(ctx context.Context, page, limit int) (*model.BookListResponse, error)
	ListCoupons(ctx context.Context, bookID uuid.UUID, page, limit int) (*model.CouponListResponse, error)
	DeactivateBook(ctx context.Context, id uuid.UUID) error
	UploadCodes(ctx context.Context, bookID uuid.UUID, codes []string) (*model.CodeBatchResult, error)
	GenerateCodes(ctx context.Context, bookID uuid.UUID, count int) (*model.CodeBatchResult, error)
}

// BookHandler handles HTTP requests for coupon book operations.
type BookHandler struct {
	service   BookServiceInterface
	validator *validator.Validate
}

// NewBookHandler creates a new BookHandler with the given service and validator.
func NewBookHandler(svc BookServiceInterface, v *validator.Validate) *BookHandler {
	return &BookHandler{service: svc, validator: v}
}

func parseBookID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// CreateBook handles POST /api/coupon-books.
func (h *BookHandler) CreateBook(c *fiber.Ctx) error {
	var req model.CreateBookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	book, err := h.service.CreateBook(c.Context(), &req)
	if err != nil {
		return respondServiceError(c, err, "failed to create coupon book", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("book_name", req.Name)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("book_id", book.ID.String()).
		Str("book_name", book.Name).
		Msg("coupon book created")

	return c.Status(fiber.StatusCreated).JSON(book)
}

// ListBooks handles GET /api/coupon-books.
func (h *BookHandler) ListBooks(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	resp, err := h.service.ListBooks(c.Context(), page, limit)
	if err != nil {
		return respondServiceError(c, err, "failed to list coupon books", nil)
	}
	return c.JSON(resp)
}

// GetBook handles GET /api/coupon-books/:id.
func (h *BookHandler) GetBook(c *fiber.Ctx) error {
	id, err := parseBookID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid book id"})
	}

	resp, err := h.service.GetBook(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err, "failed to get coupon book", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("book_id", id.String())
		})
	}
	return c.JSON(resp)
}

// DeactivateBook handles DELETE /api/coupon-books/:id.
func (h *BookHandler) DeactivateBook(c *fiber.Ctx) error {
	id, err := parseBookID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid book id"})
	}

	if err := h.service.DeactivateBook(c.Context(), id); err != nil {
		return respondServiceError(c, err, "failed to deactivate coupon book", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("book_id", id.String())
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("book_id", id.String()).
		Msg("coupon book deactivated")

	return c.JSON(fiber.Map{"id": id, "active": false})
}

// ListCoupons handles GET /api/coupon-books/:id/coupons.
func (h *BookHandler) ListCoupons(c *fiber.Ctx) error {
	id, err := parseBookID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid book id"})
	}
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	resp, err := h.service.ListCoupons(c.Context(), id, page, limit)
	if err != nil {
		return respondServiceError(c, err, "failed to list coupons", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("book_id", id.String())
		})
	}
	return c.JSON(resp)
}

// UploadCodes handles POST /api/coupon-books/:id/codes.
func (h *BookHandler) UploadCodes(c *fiber.Ctx) error {
	id, err := parseBookID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid book id"})
	}

	var req model.UploadCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.UploadCodes(c.Context(), id, req.Codes)
	if err != nil {
		return respondServiceError(c, err, "failed to upload codes", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("book_id", id.String()).Int("codes", len(req.Codes))
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("book_id", id.String()).
		Int("uploaded", result.Uploaded).
		Int("duplicates", result.Duplicates).
		Int("invalid", result.Invalid).
		Msg("codes uploaded")

	return c.Status(fiber.StatusCreated).JSON(result)
}

// GenerateCodes handles POST /api/coupon-books/:id/codes/generate.
func (h *BookHandler) GenerateCodes(c *fiber.Ctx) error {
	id, err := parseBookID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid book id"})
	}

	var req model.GenerateCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.GenerateCodes(c.Context(), id, req.Count)
	if err != nil {
		return respondServiceError(c, err, "failed to generate codes", func(e *zerolog.Event) *zerolog.Event {
			return e.Str("book_id", id.String()).Int("count", req.Count)
		})
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("book_id", id.String()).
		Int("generated", result.Uploaded).
		Msg("codes generated")

	return c.Status(fiber.StatusCreated).JSON(result)
}
