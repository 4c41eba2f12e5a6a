package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"meterflow/backend/services/meter-service/internal/models"
)

// BackendClient fetches the meter payload from the upstream backend.
type BackendClient struct {
	base       *BaseClient
	metersPath string
}

// NewBackendClient returns client instance.
func NewBackendClient(baseURL, metersPath string, httpClient HTTPDoer) *BackendClient {
	if metersPath == "" {
		metersPath = "/api/meters"
	}
	return &BackendClient{base: NewBaseClient(baseURL, httpClient), metersPath: metersPath}
}

// FetchMeters loads the grouped measurements.
func (c *BackendClient) FetchMeters(ctx context.Context) (*models.MeterResponse, error) {
	body, err := c.base.Do(ctx, http.MethodGet, c.metersPath, nil, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}
	var resp models.MeterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode meters response: %w", err)
	}
	return &resp, nil
}
