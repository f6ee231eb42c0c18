package handlers

import (
	"context"
	"time"

	"github.com/amirphl/Kiriban/app/dto"
	"github.com/amirphl/Kiriban/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthHandler reports database and cache reachability
type HealthHandler struct {
	db      *gorm.DB
	rc      *redis.Client
	version string
}

// NewHealthHandler creates the health handler. rc may be nil.
func NewHealthHandler(db *gorm.DB, rc *redis.Client, version string) *HealthHandler {
	return &HealthHandler{db: db, rc: rc, version: version}
}

func (h *HealthHandler) Check(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unreachable"
		healthy = false
	}
	if h.rc != nil {
		checks["cache"] = "ok"
		if err := h.rc.Ping(ctx).Err(); err != nil {
			checks["cache"] = "unreachable"
			healthy = false
		}
	}

	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: utils.UTCNow().Unix(),
		Version:   h.version,
		Service:   "kiriban",
		Checks:    checks,
	}
	if !healthy {
		resp.Status = "degraded"
		return errorResponse(c, fiber.StatusServiceUnavailable, "Service is degraded", "SERVICE_DEGRADED", resp)
	}
	return successResponse(c, fiber.StatusOK, "Service is healthy", resp)
}
