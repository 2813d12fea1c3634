package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-book-system/internal/cache"
	"github.com/fairyhunter13/coupon-book-system/internal/config"
	"github.com/fairyhunter13/coupon-book-system/internal/handler"
	"github.com/fairyhunter13/coupon-book-system/internal/repository"
	"github.com/fairyhunter13/coupon-book-system/internal/service"
	"github.com/fairyhunter13/coupon-book-system/internal/validator"
	"github.com/fairyhunter13/coupon-book-system/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Cache plane client. A dead Redis does not abort startup: the
	// services fail closed on cache errors and the database stays
	// authoritative.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr()).Msg("cache plane unreachable at startup")
	}
	store := cache.NewRedisStore(redisClient)

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Coupon Book System",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    2 * 1024 * 1024,   // 2MB: a 10k-code upload fits comfortably
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := validator.New()

	// Initialize components (layered architecture)
	bookRepo := repository.NewBookRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)

	bookService := service.NewBookService(pool, bookRepo, couponRepo)
	couponService := service.NewCouponService(pool, bookRepo, couponRepo, assignmentRepo, store)

	bookHandler := handler.NewBookHandler(bookService, validate)
	couponHandler := handler.NewCouponHandler(couponService, validate)
	healthHandler := handler.NewHealthHandler(pool, store)

	app.Get("/health", healthHandler.Check)

	// Coupon book routes
	api := app.Group("/api")
	api.Post("/coupon-books", bookHandler.CreateBook)
	api.Get("/coupon-books", bookHandler.ListBooks)
	api.Get("/coupon-books/:id", bookHandler.GetBook)
	api.Delete("/coupon-books/:id", bookHandler.DeactivateBook)
	api.Get("/coupon-books/:id/coupons", bookHandler.ListCoupons)
	api.Post("/coupon-books/:id/codes", bookHandler.UploadCodes)
	api.Post("/coupon-books/:id/codes/generate", bookHandler.GenerateCodes)

	// Coupon lifecycle routes. my-coupons must register before :code
	// routes so the literal path wins.
	api.Get("/coupons/my-coupons", couponHandler.MyCoupons)
	api.Post("/coupons/assign/random", couponHandler.AssignRandom)
	api.Post("/coupons/assign/:code", couponHandler.AssignSpecific)
	api.Post("/coupons/:code/lock", couponHandler.Lock)
	api.Post("/coupons/:code/unlock", couponHandler.Unlock)
	api.Post("/coupons/:code/redeem", couponHandler.Redeem)
	api.Get("/coupons/:code/status", couponHandler.GetStatus)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close backends AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("error closing cache client")
	}
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
