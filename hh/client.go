package hh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"hhscan/metrics"
	"hhscan/retry"
)

const (
	DefaultBaseURL   = "https://api.hh.ru"
	DefaultText      = "python OR SQL OR fastapi"
	DefaultArea      = "1"
	DefaultPageSize  = 100
	MaxPageSize      = 100
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
	retry      retry.Policy
	search     SearchParams
	logger     *slog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithTimeout bounds every single attempt, not the whole retried call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRequestRate paces attempts (retries included). rate.Inf disables pacing.
func WithRequestRate(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, max(1, burst))
	}
}

func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithSearch replaces the fixed query sent with every page request. The page
// index is always taken from FetchPage.
func WithSearch(params SearchParams) Option {
	return func(c *Client) {
		c.search = params
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		userAgent:  "hhscan/0.1 (vacancy-salary-scan)",
		timeout:    DefaultTimeout,
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
		retry:      retry.DefaultPolicy(),
		search:     DefaultSearchParams(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.retry.Logger == nil {
		client.retry.Logger = client.logger
	}
	return client
}

type SearchParams struct {
	Text           string
	Area           string
	PerPage        int
	Page           int
	OnlyWithSalary bool
}

func DefaultSearchParams() SearchParams {
	return SearchParams{
		Text:           DefaultText,
		Area:           DefaultArea,
		PerPage:        DefaultPageSize,
		OnlyWithSalary: true,
	}
}

func (p SearchParams) Encode() (url.Values, error) {
	if p.Page < 0 {
		return nil, fmt.Errorf("hh: page must not be negative, got %d", p.Page)
	}
	if p.PerPage > MaxPageSize {
		return nil, fmt.Errorf("hh: per_page must be at most %d, got %d", MaxPageSize, p.PerPage)
	}

	values := url.Values{}
	if strings.TrimSpace(p.Text) != "" {
		values.Set("text", p.Text)
	}
	if strings.TrimSpace(p.Area) != "" {
		values.Set("area", p.Area)
	}
	perPage := p.PerPage
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	values.Set("per_page", strconv.Itoa(perPage))
	values.Set("page", strconv.Itoa(p.Page))
	if p.OnlyWithSalary {
		values.Set("only_with_salary", "true")
	}
	return values, nil
}

// FetchPage requests one page of vacancies. It never returns an error; every
// failure is folded into the Outcome so the caller decides whether to stop.
func (c *Client) FetchPage(ctx context.Context, page int) Outcome {
	out := c.fetchPage(ctx, page)
	metrics.PageOutcomes.WithLabelValues(out.Kind.String()).Inc()
	return out
}

func (c *Client) fetchPage(ctx context.Context, page int) Outcome {
	if c == nil {
		return NetworkError(errors.New("hh: client is nil"))
	}
	params := c.search
	params.Page = page
	values, err := params.Encode()
	if err != nil {
		return NetworkError(err)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/vacancies"
	query := values.Encode()

	resp, err := c.retry.Do(ctx, func(ctx context.Context) (retry.Response, error) {
		return c.doRequest(ctx, endpoint, query)
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			c.logger.Error("page request exhausted retries", "page", page, "error", err)
			return Exhausted(err)
		}
		c.logger.Error("page request failed", "page", page, "error", err)
		return NetworkError(err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp.StatusCode, resp.Body)
		c.logger.Error("page request rejected", "page", page, "status", resp.StatusCode, "error", apiErr)
		return HTTPError(resp.StatusCode, apiErr)
	}

	var out Page
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		c.logger.Error("page body is not valid json", "page", page, "error", err)
		return DecodeError(fmt.Errorf("hh: decode page %d: %w", page, err))
	}
	c.logger.Info("vacancies page fetched", "page", page, "items", len(out.Items), "pages", out.Pages, "found", out.Found)
	return Success(&out)
}

func (c *Client) doRequest(ctx context.Context, endpoint, query string) (retry.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Response{}, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Response{}, err
	}
	req.URL.RawQuery = query
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(c.userAgent) != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.HTTPLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HTTPRequests.WithLabelValues("error").Inc()
		return retry.Response{}, err
	}
	defer resp.Body.Close()
	metrics.HTTPRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Response{}, fmt.Errorf("hh: read body: %w", err)
	}
	return retry.Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func decodeAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	var payload APIErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}
	apiErr.Description = payload.Description
	apiErr.RequestID = payload.RequestID
	if len(payload.Errors) > 0 {
		apiErr.Type = payload.Errors[0].Type
		apiErr.Value = payload.Errors[0].Value
	}
	return apiErr
}
