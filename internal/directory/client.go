// Package directory предоставляет доступ к внешнему справочнику поставщиков.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mmeshcher/supplier-orders/internal/model"
)

// StatusError возвращается, если справочник ответил кодом, отличным от 200.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("directory request status: %d, retry after %s", e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("directory request status: %d", e.Code)
}

// Client инкапсулирует HTTP-взаимодействие со справочником поставщиков.
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient создаёт HTTP-клиент для обращения к справочнику по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		http: resty.New().
			SetTimeout(5 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// ListProviders запрашивает поставщиков компании.
func (c *Client) ListProviders(ctx context.Context, company string) ([]model.Provider, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("directory client not configured")
	}

	endpoint := fmt.Sprintf("%s/api/companies/%s/providers", c.baseURL, url.PathEscape(company))

	resp, err := c.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNoContent:
		return []model.Provider{}, nil
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header().Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &StatusError{Code: resp.StatusCode(), RetryAfter: retryAfter}
	default:
		return nil, &StatusError{Code: resp.StatusCode()}
	}

	var providers []model.Provider
	if err := json.Unmarshal(resp.Body(), &providers); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return providers, nil
}
