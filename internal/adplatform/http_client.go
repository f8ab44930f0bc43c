package adplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/pkg/httpretry"
)

// HTTPClient talks to the platform gateway service over HTTP with retries.
type HTTPClient struct {
	baseURL string
	token   string
	client  httpretry.HTTPDoer
}

// NewHTTPClient creates a gateway client. A nil doer gets a retrying client
// with sane defaults.
func NewHTTPClient(baseURL, token string, doer httpretry.HTTPDoer) *HTTPClient {
	if doer == nil {
		doer = httpretry.NewRetryClient(&http.Client{Timeout: 20 * time.Second}, 3)
	}
	return &HTTPClient{baseURL: baseURL, token: token, client: doer}
}

type budgetUpdateRequest struct {
	Platform    string  `json:"ad_platform"`
	AssetType   string  `json:"ad_asset_type"`
	DailyBudget float64 `json:"daily_budget"`
}

type budgetUpdateResponse struct {
	ConfirmedBudget float64 `json:"confirmed_budget"`
}

func (c *HTTPClient) UpdateBudget(ctx context.Context, asset *domain.AdAsset, newBudget float64) (float64, error) {
	body, _ := json.Marshal(budgetUpdateRequest{
		Platform:    asset.Platform,
		AssetType:   string(asset.AssetType),
		DailyBudget: newBudget,
	})

	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/assets/%s/budget", c.baseURL, asset.PlatformAssetID), body)
	if err != nil {
		return 0, fmt.Errorf("update budget for %s: %w", asset.PlatformAssetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("update budget for %s: gateway returned %d: %s",
			asset.PlatformAssetID, resp.StatusCode, msg)
	}

	var out budgetUpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("update budget for %s: decode response: %w", asset.PlatformAssetID, err)
	}
	return out.ConfirmedBudget, nil
}

func (c *HTTPClient) PauseAsset(ctx context.Context, asset *domain.AdAsset) error {
	body, _ := json.Marshal(map[string]string{
		"ad_platform":   asset.Platform,
		"ad_asset_type": string(asset.AssetType),
	})

	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/assets/%s/pause", c.baseURL, asset.PlatformAssetID), body)
	if err != nil {
		return fmt.Errorf("pause %s: %w", asset.PlatformAssetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pause %s: gateway returned %d: %s", asset.PlatformAssetID, resp.StatusCode, msg)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	// GetBody lets the retry layer replay the request.
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return c.client.Do(req)
}
