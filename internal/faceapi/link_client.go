package faceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/example/liveness-server/internal/logging"
)

// LinkClient asks the liveness website for a short link bound to a session auth token.
type LinkClient struct {
	website    string
	httpClient *http.Client
}

// NewLinkClient returns a client for the website's short link endpoint.
func NewLinkClient(website string, httpClient *http.Client) *LinkClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LinkClient{website: website, httpClient: httpClient}
}

// ShortenSessionURL returns the URL fragment the website issued for authToken.
// The fragment is empty when the website did not return one.
func (c *LinkClient) ShortenSessionURL(ctx context.Context, authToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.website+"/api/s", nil)
	if err != nil {
		return "", logging.NewOperationError("faceapi.shorten_url", "", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", logging.NewOperationError("faceapi.shorten_url", "", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", logging.NewOperationError("faceapi.shorten_url", "", decodeAPIError(resp))
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", logging.NewOperationError("faceapi.shorten_url", "", fmt.Errorf("failed to decode response: %w", err))
	}
	return out.URL, nil
}
