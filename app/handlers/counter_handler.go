package handlers

import (
	"log"
	"strconv"
	"strings"

	"github.com/amirphl/Kiriban/app/dto"
	"github.com/amirphl/Kiriban/app/services"
	businessflow "github.com/amirphl/Kiriban/business_flow"
	"github.com/amirphl/Kiriban/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CounterHandlerInterface defines the contract for counter handlers
type CounterHandlerInterface interface {
	Create(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	Image(c fiber.Ctx) error
	RetryMilestone(c fiber.Ctx) error
}

// CounterHandler serves counter images and counter management endpoints
type CounterHandler struct {
	counterFlow   businessflow.CounterFlow
	visitFlow     businessflow.VisitFlow
	renderer      services.ImageRenderer
	publicBaseURL string
	validator     *validator.Validate
	logger        *log.Logger
}

// NewCounterHandler creates a new counter handler
func NewCounterHandler(
	counterFlow businessflow.CounterFlow,
	visitFlow businessflow.VisitFlow,
	renderer services.ImageRenderer,
	publicBaseURL string,
	logger *log.Logger,
) *CounterHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &CounterHandler{
		counterFlow:   counterFlow,
		visitFlow:     visitFlow,
		renderer:      renderer,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		validator:     validator.New(),
		logger:        logger,
	}
}

// Create registers a new counter
// @Router /api/v1/counters [post]
func (h *CounterHandler) Create(c fiber.Ctx) error {
	var req dto.CreateCounterRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	ctx, cancel := createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	counter, err := h.counterFlow.Create(ctx, businessflow.CreateCounterInput{
		CounterID:     req.CounterID,
		InitialCount:  req.InitialCount,
		DigitWidth:    req.DigitWidth,
		MilestoneKind: req.MilestoneKind,
	})
	if err != nil {
		if businessflow.IsAlreadyExists(err) {
			return errorResponse(c, fiber.StatusConflict, "Counter already exists", "COUNTER_ALREADY_EXISTS", nil)
		}
		if businessflow.IsValidationError(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", []string{err.Error()})
		}
		h.logger.Printf("create counter failed: %v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to create counter", "COUNTER_CREATE_FAILED", nil)
	}

	return successResponse(c, fiber.StatusCreated, "Counter created successfully", h.toResponse(counter))
}

// Get returns a counter without counting a visit
// @Router /api/v1/counters/{counterId} [get]
func (h *CounterHandler) Get(c fiber.Ctx) error {
	counterID := c.Params("counterId")

	ctx, cancel := createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	counter, err := h.counterFlow.Get(ctx, counterID)
	if err != nil {
		if businessflow.IsCounterNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Counter not found", "COUNTER_NOT_FOUND", nil)
		}
		h.logger.Printf("get counter %s failed: %v", counterID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to get counter", "COUNTER_LOOKUP_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Counter retrieved successfully", h.toResponse(counter))
}

// Image counts one visit and returns the rendered tally. The optional address
// query parameter is the visitor's account for milestone issuance.
// @Produce png
// @Router /counter/{counterId} [get]
func (h *CounterHandler) Image(c fiber.Ctx) error {
	counterID := c.Params("counterId")
	var ownerID *string
	if address := strings.TrimSpace(c.Query("address")); address != "" {
		ownerID = &address
	}

	ctx, cancel := createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.visitFlow.RecordVisit(ctx, counterID, c.IP(), ownerID)
	if err != nil {
		if businessflow.IsCounterNotFound(err) {
			return c.Status(fiber.StatusNotFound).SendString("counter not found")
		}
		h.logger.Printf("record visit for counter %s failed: %v", counterID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	image, err := h.renderer.RenderCounter(res.Count, res.DigitWidth, res.Issued)
	if err != nil {
		h.logger.Printf("render counter %s failed: %v", counterID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Kiriban-Outcome", string(res.Outcome))
	if res.TokenID != "" {
		c.Set("X-Kiriban-Token-ID", res.TokenID)
	}
	return c.Status(fiber.StatusOK).Send(image)
}

// RetryMilestone re-attempts issuance of a milestone the counter already passed
// @Router /api/v1/counters/{counterId}/milestones/{count}/retry [post]
func (h *CounterHandler) RetryMilestone(c fiber.Ctx) error {
	counterID := c.Params("counterId")
	count, err := strconv.ParseInt(c.Params("count"), 10, 64)
	if err != nil || count < 0 {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid milestone count", "INVALID_COUNT", nil)
	}

	var req dto.RetryMilestoneRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	ctx, cancel := createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	res, err := h.visitFlow.RetryMilestone(ctx, counterID, count, req.OwnerID)
	if err != nil {
		if businessflow.IsCounterNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Counter not found", "COUNTER_NOT_FOUND", nil)
		}
		if businessflow.IsValidationError(err) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_MILESTONE", nil)
		}
		h.logger.Printf("retry milestone %s#%d failed: %v", counterID, count, err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to retry milestone", "MILESTONE_RETRY_FAILED", nil)
	}

	resp := dto.RetryMilestoneResponse{
		CounterID: counterID,
		Count:     count,
		Outcome:   string(res.Outcome),
	}
	if res.TokenID != "" {
		resp.TokenID = &res.TokenID
	}
	if res.Outcome == businessflow.OutcomeFailed {
		return errorResponse(c, fiber.StatusBadGateway, businessflow.ErrIssuanceFailed.Error(), "ISSUANCE_FAILED", resp)
	}
	return successResponse(c, fiber.StatusOK, "Milestone retry processed", resp)
}

func (h *CounterHandler) toResponse(counter *models.Counter) dto.CounterResponse {
	return dto.CounterResponse{
		CounterID:     counter.CounterID,
		Count:         counter.Count,
		DigitWidth:    counter.DigitWidth,
		MilestoneKind: string(counter.MilestoneKind),
		ImageURL:      h.publicBaseURL + "/counter/" + counter.CounterID,
		CreatedAt:     counter.CreatedAt,
	}
}
