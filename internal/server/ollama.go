package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"AssistChat/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const ollamaSystemPrompt = "Tu es un assistant client. Réponds en français, de façon claire et concise."

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// OllamaTagsResponse represents the response from Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// OllamaAnswerer answers queries with an Ollama chat model
type OllamaAnswerer struct {
	baseURL    string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewOllamaAnswerer creates an answerer for the Ollama server at baseURL.
func NewOllamaAnswerer(baseURL, model string, timeout time.Duration) *OllamaAnswerer {
	return &OllamaAnswerer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("assistchat/server"),
		meter:      otel.Meter("assistchat/server"),
	}
}

func (o *OllamaAnswerer) Answer(ctx context.Context, query string) (Answer, error) {
	ctx, span := o.tracer.Start(ctx, "ollama_api_call", trace.WithAttributes(
		attribute.String("ollama.model", o.model),
	))
	defer span.End()

	start := time.Now()

	reqBody := OllamaRequest{
		Model: o.model,
		Messages: []map[string]string{
			{"role": "system", "content": ollamaSystemPrompt},
			{"role": "user", "content": query},
		},
		Stream: false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return Answer{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Answer{}, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp OllamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Answer{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	telemetry.HistogramMS(ctx, o.meter, "http.client.request.duration", start,
		metric.WithAttributes(attribute.String("backend", "ollama")))

	return Answer{Text: apiResp.Message.Content, Category: "llm"}, nil
}

// ListModels returns the models installed on the Ollama server.
func (o *OllamaAnswerer) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var tagsResp OllamaTagsResponse
	if err := json.Unmarshal(body, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return tagsResp.Models, nil
}

// HasModel reports whether the configured model is installed.
func (o *OllamaAnswerer) HasModel(ctx context.Context) (bool, error) {
	models, err := o.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == o.model {
			return true, nil
		}
	}
	return false, nil
}
