// Package services provides external service integrations and technical concerns like token issuance and image rendering
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrIssuerUnavailable is returned for any failure of the external issuer
var ErrIssuerUnavailable = errors.New("issuer unavailable")

// IssuanceClient issues one collectible token to an owner and returns its id
type IssuanceClient interface {
	Issue(ctx context.Context, ownerID string) (string, error)
}

// HTTPIssuanceClient calls an issuance gateway over HTTP.
// POST {BaseURL}/issue with {"owner_id": ...}; the token id is read from the
// JSON response at TokenIDPath.
type HTTPIssuanceClient struct {
	BaseURL     string
	APIKey      string
	TokenIDPath string
	HTTPClient  *http.Client
	limiter     *rate.Limiter
}

func NewHTTPIssuanceClient(baseURL, apiKey, tokenIDPath string, timeout time.Duration, ratePerSecond float64, burst int) *HTTPIssuanceClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tokenIDPath == "" {
		tokenIDPath = "token_id"
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &HTTPIssuanceClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		TokenIDPath: tokenIDPath,
		HTTPClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
	}
}

type issueRequest struct {
	OwnerID string `json:"owner_id"`
}

func (c *HTTPIssuanceClient) Issue(ctx context.Context, ownerID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrIssuerUnavailable, err)
	}

	payload, err := json.Marshal(issueRequest{OwnerID: ownerID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/issue", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIssuerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrIssuerUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", ErrIssuerUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: invalid JSON response", ErrIssuerUnavailable)
	}

	tokenID := gjson.GetBytes(body, c.TokenIDPath)
	if !tokenID.Exists() || tokenID.String() == "" {
		return "", fmt.Errorf("%w: no token id at %q", ErrIssuerUnavailable, c.TokenIDPath)
	}
	return tokenID.String(), nil
}

// MockIssuanceClient hands out sequential token ids without any network call
type MockIssuanceClient struct {
	next     atomic.Int64
	failRate float64
	mu       sync.Mutex
	rnd      *rand.Rand
}

func NewMockIssuanceClient(failRate float64) *MockIssuanceClient {
	return &MockIssuanceClient{
		failRate: failRate,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *MockIssuanceClient) Issue(ctx context.Context, ownerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.failRate > 0 {
		c.mu.Lock()
		fail := c.rnd.Float64() < c.failRate
		c.mu.Unlock()
		if fail {
			return "", fmt.Errorf("%w: simulated failure", ErrIssuerUnavailable)
		}
	}
	return fmt.Sprintf("%d", c.next.Add(1)-1), nil
}
