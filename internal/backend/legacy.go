package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kiranshivaraju/m365dash/pkg/models"
)

// The single-tenant endpoints below predate tenant management. Current
// backends answer them with 400 and a hint to use the per-tenant routes.

// Token calls GET /token and returns the raw body.
func (c *HTTPClient) Token(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/token", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Users calls GET /users.
func (c *HTTPClient) Users(ctx context.Context) ([]models.User, error) {
	var body struct {
		Value []models.User `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, &body); err != nil {
		return nil, err
	}
	return body.Value, nil
}

// LegacyMetrics calls GET /metrics.
func (c *HTTPClient) LegacyMetrics(ctx context.Context) (*models.Metrics, error) {
	var m models.Metrics
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
