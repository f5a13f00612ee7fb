// Package users talks to the user service that owns registration.
package users

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/fitcoach/internal/domain"
)

// Client validates user ids against the user service.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient constructs a Client for the user service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ValidateUser calls GET /api/users/{id}/validateUser, which answers with a
// JSON boolean. A 404 maps to domain.ErrUserNotFound; transport failures and
// server errors map to domain.ErrUserServiceUnavailable.
func (c *Client) ValidateUser(ctx context.Context, userID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/users/%s/validateUser", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrUserServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: status %d: %s", domain.ErrUserServiceUnavailable, resp.StatusCode, body)
	}

	var valid bool
	if err := json.NewDecoder(resp.Body).Decode(&valid); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", domain.ErrUserServiceUnavailable, err)
	}
	return valid, nil
}
