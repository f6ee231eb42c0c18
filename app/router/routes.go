// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"encoding/json"
	"log"
	"time"

	"github.com/amirphl/Kiriban/app/dto"
	"github.com/amirphl/Kiriban/app/handlers"
	"github.com/amirphl/Kiriban/app/middleware"
	"github.com/amirphl/Kiriban/config"
	"github.com/amirphl/Kiriban/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	cfg            *config.ProductionConfig
	counterHandler handlers.CounterHandlerInterface
	assetHandler   handlers.AssetHandlerInterface
	healthHandler  *handlers.HealthHandler
	logger         *log.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	counterHandler handlers.CounterHandlerInterface,
	assetHandler handlers.AssetHandlerInterface,
	healthHandler *handlers.HealthHandler,
	logger *log.Logger,
) Router {
	if logger == nil {
		logger = log.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:      "Kiriban",
		ServerHeader: "Kiriban",
		ErrorHandler: errorHandler(logger),
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ProxyHeader:  cfg.Server.ProxyHeader,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:            app,
		cfg:            cfg,
		counterHandler: counterHandler,
		assetHandler:   assetHandler,
		healthHandler:  healthHandler,
		logger:         logger,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.logger.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Embeddable counter image and token assets
	r.app.Get("/counter/:counterId", r.counterHandler.Image)
	assets := r.app.Group("/assets")
	assets.Get("/metadata/:counterId/:tokenId", r.assetHandler.Metadata)
	assets.Get("/image/:counterId/:tokenFile", r.assetHandler.Image)

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthHandler.Check)

	api.Post("/counters", r.counterHandler.Create)
	api.Get("/counters/:counterId", r.counterHandler.Get)
	api.Post("/counters/:counterId/milestones/:count/retry", r.counterHandler.RetryMilestone)

	api.Post("/assets/:counterId/:tokenId/regenerate", r.assetHandler.Regenerate)

	r.app.Use(r.notFoundHandler)

	r.logger.Println("Routes configured successfully")
}

func (r *FiberRouter) setupMiddleware() {
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.GetRespHeader("X-Request-ID"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))

	// Request ID middleware must run before logging
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))

	// Counter and asset images are embedded on third-party pages
	r.app.Use(helmet.New(helmet.Config{
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.cfg.Security.AllowedOrigins,
		AllowMethods: r.cfg.Security.AllowedMethods,
		AllowHeaders: r.cfg.Security.AllowedHeaders,
		ExposeHeaders: []string{
			"X-Request-ID",
			"X-Kiriban-Outcome",
			"X-Kiriban-Token-ID",
		},
		MaxAge: r.cfg.Security.CORSMaxAge,
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Stream:     r.logger.Writer(),
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))

	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics())
	}

	r.app.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code:      "RATE_LIMIT_EXCEEDED",
					RequestID: c.GetRespHeader("X-Request-ID"),
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath || c.Path() == r.cfg.Metrics.Path
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code:      "NOT_FOUND",
			RequestID: c.GetRespHeader("X-Request-ID"),
			Details: fiber.Map{
				"path":   c.Path(),
				"method": c.Method(),
			},
		},
	})
}

func errorHandler(logger *log.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An internal server error occurred"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		logger.Printf("Error %d: %v", code, err)

		return c.Status(code).JSON(dto.APIResponse{
			Success: false,
			Message: message,
			Error: dto.ErrorDetail{
				Code:      "INTERNAL_ERROR",
				RequestID: c.GetRespHeader("X-Request-ID"),
				Details: fiber.Map{
					"timestamp": utils.UTCNow().Unix(),
				},
			},
		})
	}
}
