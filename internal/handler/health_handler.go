package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness of the persistence and cache planes.
type HealthHandler struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Check handles GET /health. The cache plane being down degrades
// throughput but not correctness, so it is reported without failing
// the check; the database being down fails it.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbOK := h.db.Ping(c.Context()) == nil
	cacheOK := h.cache.Ping(c.Context()) == nil

	status := fiber.StatusOK
	if !dbOK {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"database": dbOK,
		"cache":    cacheOK,
	})
}
