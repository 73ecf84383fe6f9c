package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"AssistChat/internal/auth"
	"AssistChat/internal/config"
	"AssistChat/internal/session"
	"AssistChat/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrTransport marks failures to reach the service or read its answer.
var ErrTransport = errors.New("transport failure")

// StatusError is returned when the service answers with a non-success status
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Status, e.Body)
}

// Client talks to the remote conversation service
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTelemetry sets the tracer and meter used for API calls.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(c *Client) {
		c.tracer = tracer
		c.meter = meter
	}
}

// NewClient creates a client for the service at cfg.BaseURL
func NewClient(cfg config.APIConfig, tokens oauth2.TokenSource, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		tracer:     otel.Tracer("assistchat/backend"),
		meter:      otel.Meter("assistchat/backend"),
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Info("created conversation API client", "url", cfg.BaseURL)
	return c, nil
}

// Query sends text to the service, continuing sessionID when it is set.
func (c *Client) Query(ctx context.Context, sessionID, text string) (session.Reply, error) {
	reqBody := QueryRequest{Query: text, ChatID: ID(sessionID)}

	var resp QueryResponse
	if err := c.sendRequest(ctx, "query_api_call", http.MethodPost, "/query", reqBody, &resp); err != nil {
		return session.Reply{}, err
	}

	return session.Reply{
		SessionID: string(resp.ChatID),
		MessageID: string(resp.MessageID),
		Text:      payloadText(resp.Response),
	}, nil
}

// History fetches the stored exchanges of sessionID in service order.
func (c *Client) History(ctx context.Context, sessionID string) ([]session.Exchange, error) {
	var resp HistoryResponse
	path := "/history/" + url.PathEscape(sessionID)
	if err := c.sendRequest(ctx, "history_api_call", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	exchanges := make([]session.Exchange, 0, len(resp.Conversations))
	for _, rec := range resp.Conversations {
		exchanges = append(exchanges, rec.exchange())
	}
	return exchanges, nil
}

// Feedback persists the annotation of a turn. FeedbackNone clears it.
func (c *Client) Feedback(ctx context.Context, sessionID, turnID string, value session.Feedback) error {
	reqBody := FeedbackRequest{MessageID: turnID, ChatID: ID(sessionID)}
	if value != session.FeedbackNone {
		v := string(value)
		reqBody.Feedback = &v
	}
	return c.sendRequest(ctx, "feedback_api_call", http.MethodPost, "/feedback", reqBody, nil)
}

// ListChats returns the conversations of the authenticated user.
func (c *Client) ListChats(ctx context.Context) ([]session.ChatSummary, error) {
	var resp ChatsResponse
	if err := c.sendRequest(ctx, "user_chats_api_call", http.MethodGet, "/user_chats", nil, &resp); err != nil {
		return nil, err
	}

	chats := make([]session.ChatSummary, 0, len(resp.Chats))
	for _, ch := range resp.Chats {
		chats = append(chats, session.ChatSummary{ID: string(ch.ChatID), Name: ch.ChatName})
	}
	return chats, nil
}

// sendRequest performs one authenticated JSON call. result may be nil
// when the response body is not needed.
func (c *Client) sendRequest(ctx context.Context, spanName, method, path string, body interface{}, result interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	defer telemetry.HistogramMS(ctx, c.meter, "http.client.request.duration", start,
		metric.WithAttributes(attribute.String("endpoint", spanName)))

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w: %w", ErrTransport, err)
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain credential: %w", err)
	}
	if tok.AccessToken == "" {
		return auth.ErrNoCredential
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w: %w", ErrTransport, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("conversation API rejected request", "path", path, "status", resp.StatusCode)
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(respBody)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w: %w", ErrTransport, err)
	}

	c.logger.Debug("conversation API call succeeded", "path", path, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
