// Package piano is the client for the Piano Composer reporting API.
// Every call carries a bearer token captured elsewhere; the client only
// transports it, it never mints or refreshes credentials.
package piano

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arizent/composer-insights/internal/models"
)

const userAgent = "composer-insights/1.0"

// HTTPDoer is the subset of http.Client the client needs. Tests inject
// their own implementation.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Piano reporting endpoints.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *zap.Logger
}

// New builds a Client for the given conversion-report base URL.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetHTTPDoer replaces the underlying HTTP client. Intended for tests.
func (c *Client) SetHTTPDoer(d HTTPDoer) { c.http = d }

// ReportQuery identifies one conversion-report fetch. BaseURL, when
// set, overrides the client's configured endpoint for this call only.
type ReportQuery struct {
	AID     string
	ExpID   string
	Locale  string
	From    string
	To      string
	BaseURL string
}

// StatusError is returned when the upstream responds with a non-2xx
// status. The body is retained (truncated) for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("piano: upstream status %d: %s", e.StatusCode, e.Body)
}

var authErrorPattern = regexp.MustCompile(`(?i)token|bearer|auth|unauthor`)

// IsAuthError reports whether err looks like a credential problem: a
// 401/403 status, or an error message in the auth vocabulary. Callers
// use this to decide whether to demand a fresh token instead of
// retrying.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StatusError); ok {
		if se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden {
			return true
		}
	}
	return authErrorPattern.MatchString(err.Error())
}

// FetchReport retrieves the conversion report for the query, returning
// both the decoded payload and the raw body. The raw body is what
// /api/report relays verbatim.
func (c *Client) FetchReport(ctx context.Context, q ReportQuery, bearer string) (*models.ReportData, json.RawMessage, error) {
	params := url.Values{}
	params.Set("expId", q.ExpID)
	params.Set("aid", q.AID)
	if q.Locale != "" {
		params.Set("ln", q.Locale)
	}
	if q.From != "" {
		params.Set("from", q.From)
	}
	if q.To != "" {
		params.Set("to", q.To)
	}

	base := c.baseURL
	if q.BaseURL != "" {
		base = strings.TrimRight(q.BaseURL, "/")
	}

	body, err := c.doRequest(ctx, base+"?"+params.Encode(), bearer)
	if err != nil {
		return nil, nil, err
	}

	var data models.ReportData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, nil, fmt.Errorf("piano: decode report: %w", err)
	}
	return &data, body, nil
}

// Experience is one experience summary from the dashboard listing.
type Experience struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Type   string `json:"type,omitempty"`
}

// FetchExperiences lists experiences for a brand via the dashboard API.
func (c *Client) FetchExperiences(ctx context.Context, dashboardURL, aid, bearer string) ([]Experience, error) {
	params := url.Values{}
	params.Set("aid", aid)

	body, err := c.doRequest(ctx, strings.TrimRight(dashboardURL, "/")+"?"+params.Encode(), bearer)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Experiences []Experience `json:"experiences"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		// Some deployments return a bare array.
		var list []Experience
		if err2 := json.Unmarshal(body, &list); err2 == nil {
			return list, nil
		}
		return nil, fmt.Errorf("piano: decode experiences: %w", err)
	}
	return payload.Experiences, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("piano: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piano: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("piano: read response: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("piano request",
			zap.String("url", fullURL),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
