package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
)

// Completer produces text from a prompt. AnthropicClient implements it; tests fake it.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is one user turn, optionally with an image.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
	Image     *ImageInput
}

// ImageInput is an inline image for vision requests.
type ImageInput struct {
	MediaType string
	Data      []byte
}

// AnthropicConfig configures AnthropicClient.
type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Version string
	Model   string
	Timeout time.Duration
}

// AnthropicClient calls the Messages API.
type AnthropicClient struct {
	cfg        AnthropicConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAnthropicClient creates an AnthropicClient.
func NewAnthropicClient(cfg AnthropicConfig, logger *zap.Logger) *AnthropicClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Version == "" {
		cfg.Version = "2023-06-01"
	}
	return &AnthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("anthropic"),
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one message and returns the text of content[0].
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", apperr.New(apperr.CodeUpstreamCredentials, "anthropic api key not configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	content := make([]anthropicContent, 0, 2)
	if req.Image != nil {
		content = append(content, anthropicContent{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: req.Image.MediaType,
				Data:      base64.StdEncoding.EncodeToString(req.Image.Data),
			},
		})
	}
	content = append(content, anthropicContent{Type: "text", Text: req.Prompt})

	payload, err := json.Marshal(anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", c.cfg.Version)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("non-2xx response", zap.Int("status", resp.StatusCode))
		return "", &apperr.UpstreamError{Service: "anthropic", StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrUnparseable, err)
	}
	if parsed.Error != nil {
		return "", &apperr.UpstreamError{Service: "anthropic", StatusCode: resp.StatusCode, Body: parsed.Error.Message}
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Type != "text" {
		return "", fmt.Errorf("%w: no text content", apperr.ErrUnparseable)
	}

	text := strings.TrimSpace(parsed.Content[0].Text)
	c.logger.Debug("completion done", zap.Duration("took", time.Since(start)), zap.Int("len", len(text)))
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
