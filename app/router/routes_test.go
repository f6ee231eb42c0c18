package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/Kiriban/app/handlers"
	"github.com/amirphl/Kiriban/app/router"
	"github.com/amirphl/Kiriban/app/services"
	businessflow "github.com/amirphl/Kiriban/business_flow"
	"github.com/amirphl/Kiriban/config"
	"github.com/amirphl/Kiriban/repository"
	testingutil "github.com/amirphl/Kiriban/testing"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Error   map[string]any `json:"error"`
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = testDB.TeardownTestDB() })

	cfg := config.DefaultConfig()
	cfg.Server.ProxyHeader = ""
	cfg.Security.GlobalRateLimit = 10000
	cfg.Assets.PublicBaseURL = "https://kiriban.example.com"

	logger := log.New(io.Discard, "", 0)
	renderer, err := services.NewImageRenderer()
	require.NoError(t, err)

	counterRepo := repository.NewCounterRepository(testDB.DB)
	issuanceRepo := repository.NewIssuanceRecordRepository(testDB.DB)
	assetRepo := repository.NewTokenAssetRepository(testDB.DB)

	assetFlow := businessflow.NewAssetFlow(assetRepo, issuanceRepo, renderer, nil, cfg.Cache, cfg.Assets.PublicBaseURL, logger)
	visitFlow := businessflow.NewVisitFlow(counterRepo, businessflow.NewDBIssuanceGuard(issuanceRepo), services.NewMockIssuanceClient(0), assetFlow, time.Minute, logger)
	counterFlow := businessflow.NewCounterFlow(counterRepo)

	r := router.NewFiberRouter(
		cfg,
		handlers.NewCounterHandler(counterFlow, visitFlow, renderer, cfg.Assets.PublicBaseURL, logger),
		handlers.NewAssetHandler(assetFlow, logger),
		handlers.NewHealthHandler(testDB.DB, nil, "test"),
		logger,
	)
	r.SetupRoutes()
	return r.GetApp()
}

func do(t *testing.T, app *fiber.App, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func decode(t *testing.T, data []byte) apiResponse {
	t.Helper()
	var out apiResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestCounterRoutes(t *testing.T) {
	app := newTestApp(t)

	t.Run("CreateCounter", func(t *testing.T) {
		resp, data := do(t, app, http.MethodPost, "/api/v1/counters", map[string]any{
			"counter_id":    "blog",
			"initial_count": 999,
			"digit_width":   4,
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		out := decode(t, data)
		assert.True(t, out.Success)
		assert.Equal(t, "blog", out.Data["counter_id"])
		assert.Equal(t, "https://kiriban.example.com/counter/blog", out.Data["image_url"])
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		resp, data := do(t, app, http.MethodPost, "/api/v1/counters", map[string]any{
			"counter_id":  "blog",
			"digit_width": 4,
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "COUNTER_ALREADY_EXISTS", decode(t, data).Error["code"])
	})

	t.Run("CreateInvalid", func(t *testing.T) {
		resp, data := do(t, app, http.MethodPost, "/api/v1/counters", map[string]any{
			"digit_width":    9,
			"milestone_kind": "fibonacci",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, data).Error["code"])
	})

	t.Run("VisitIssuesOnMilestone", func(t *testing.T) {
		resp, data := do(t, app, http.MethodGet, "/counter/blog?address=0xabc", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.Equal(t, "issued", resp.Header.Get("X-Kiriban-Outcome"))
		assert.Equal(t, "0", resp.Header.Get("X-Kiriban-Token-ID"))
		assert.Equal(t, []byte("\x89PNG"), data[:4])
	})

	t.Run("VisitWithoutOwner", func(t *testing.T) {
		resp, _ := do(t, app, http.MethodGet, "/counter/blog", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "skipped", resp.Header.Get("X-Kiriban-Outcome"))

		_, data := do(t, app, http.MethodGet, "/api/v1/counters/blog", nil)
		assert.EqualValues(t, 1001, decode(t, data).Data["count"])
	})

	t.Run("VisitUnknownCounter", func(t *testing.T) {
		resp, _ := do(t, app, http.MethodGet, "/counter/missing", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("AssetMetadata", func(t *testing.T) {
		resp, data := do(t, app, http.MethodGet, "/assets/metadata/blog/0", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var meta map[string]any
		require.NoError(t, json.Unmarshal(data, &meta))
		assert.Equal(t, "Kiriban #0", meta["name"])
		assert.Equal(t, "https://kiriban.example.com/assets/image/blog/0.png", meta["image"])

		resp, _ = do(t, app, http.MethodGet, "/assets/metadata/blog/42", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("AssetImage", func(t *testing.T) {
		resp, data := do(t, app, http.MethodGet, "/assets/image/blog/0.png", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.NotEmpty(t, data)

		resp, _ = do(t, app, http.MethodGet, "/assets/image/blog/0", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("RetryMilestone", func(t *testing.T) {
		resp, data := do(t, app, http.MethodPost, "/api/v1/counters/blog/milestones/1000/retry", map[string]any{"owner_id": "0xdef"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "already_seen", decode(t, data).Data["outcome"])

		resp, data = do(t, app, http.MethodPost, "/api/v1/counters/blog/milestones/1111/retry", map[string]any{"owner_id": "0xdef"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_MILESTONE", decode(t, data).Error["code"])

		resp, _ = do(t, app, http.MethodPost, "/api/v1/counters/blog/milestones/1000/retry", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Health", func(t *testing.T) {
		resp, data := do(t, app, http.MethodGet, "/api/v1/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", decode(t, data).Data["status"])
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, data := do(t, app, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(data), "kiriban_http_requests_total")
	})

	t.Run("NotFound", func(t *testing.T) {
		resp, data := do(t, app, http.MethodGet, "/nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		out := decode(t, data)
		assert.Equal(t, "NOT_FOUND", out.Error["code"])
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		assert.Equal(t, resp.Header.Get("X-Request-ID"), out.Error["request_id"])
	})
}
