package handlers

import (
	"log"
	"strings"

	businessflow "github.com/amirphl/Kiriban/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AssetHandlerInterface defines the contract for token asset handlers
type AssetHandlerInterface interface {
	Metadata(c fiber.Ctx) error
	Image(c fiber.Ctx) error
	Regenerate(c fiber.Ctx) error
}

// AssetHandler serves stored token metadata and images
type AssetHandler struct {
	flow   businessflow.AssetFlow
	logger *log.Logger
}

func NewAssetHandler(flow businessflow.AssetFlow, logger *log.Logger) *AssetHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &AssetHandler{flow: flow, logger: logger}
}

// Metadata returns the token metadata document as stored at issuance
// @Router /assets/metadata/{counterId}/{tokenId} [get]
func (h *AssetHandler) Metadata(c fiber.Ctx) error {
	counterID := c.Params("counterId")
	tokenID := c.Params("tokenId")

	ctx, cancel := createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	meta, err := h.flow.Metadata(ctx, counterID, tokenID)
	if err != nil {
		if businessflow.IsNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "Asset not found", "ASSET_NOT_FOUND", nil)
		}
		h.logger.Printf("asset metadata %s/%s failed: %v", counterID, tokenID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to load asset", "ASSET_LOOKUP_FAILED", nil)
	}
	return c.Status(fiber.StatusOK).JSON(meta)
}

// Image returns the commemorative PNG. The last path segment is <tokenId>.png.
// @Produce png
// @Router /assets/image/{counterId}/{tokenFile} [get]
func (h *AssetHandler) Image(c fiber.Ctx) error {
	counterID := c.Params("counterId")
	tokenID, ok := strings.CutSuffix(c.Params("tokenFile"), ".png")
	if !ok || tokenID == "" {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	ctx, cancel := createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	image, err := h.flow.Image(ctx, counterID, tokenID)
	if err != nil {
		if businessflow.IsAssetNotFound(err) {
			return c.Status(fiber.StatusNotFound).SendString("not found")
		}
		h.logger.Printf("asset image %s/%s failed: %v", counterID, tokenID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.Status(fiber.StatusOK).Send(image)
}

// Regenerate stores the asset of an issued token whose asset write was lost
// @Router /api/v1/assets/{counterId}/{tokenId}/regenerate [post]
func (h *AssetHandler) Regenerate(c fiber.Ctx) error {
	counterID := c.Params("counterId")
	tokenID := c.Params("tokenId")

	ctx, cancel := createRequestContext(c, defaultRequestTimeout)
	defer cancel()

	asset, err := h.flow.Regenerate(ctx, counterID, tokenID)
	if err != nil {
		if businessflow.IsIssuanceNotCompleted(err) {
			return errorResponse(c, fiber.StatusNotFound, "No completed issuance for this token", "ISSUANCE_NOT_COMPLETED", nil)
		}
		h.logger.Printf("regenerate asset %s/%s failed: %v", counterID, tokenID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to regenerate asset", "ASSET_REGENERATE_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Asset available", fiber.Map{
		"counter_id":      asset.CounterID,
		"token_id":        asset.TokenID,
		"milestone_count": asset.MilestoneCount,
	})
}
