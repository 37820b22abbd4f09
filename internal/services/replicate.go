package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
)

// ReplicateClient runs predictions against one model version.
type ReplicateClient struct {
	baseURL      string
	token        string
	version      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewReplicateClient creates a ReplicateClient.
func NewReplicateClient(baseURL, token, version string, logger *zap.Logger) *ReplicateClient {
	return &ReplicateClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		version:      version,
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		pollInterval: time.Second,
		logger:       logger.Named("replicate"),
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// Run creates a prediction, waiting up to 60s server side, then polls until it
// succeeds, fails or ctx ends. The output is returned as text.
func (c *ReplicateClient) Run(ctx context.Context, input map[string]any) (string, error) {
	if c.token == "" {
		return "", apperr.New(apperr.CodeUpstreamCredentials, "replicate api token not configured")
	}

	payload, err := json.Marshal(map[string]any{"version": c.version, "input": input})
	if err != nil {
		return "", fmt.Errorf("marshal prediction: %w", err)
	}

	var pred prediction
	if err := c.do(ctx, http.MethodPost, "/v1/predictions", payload, &pred); err != nil {
		return "", err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		switch pred.Status {
		case "succeeded":
			return predictionText(pred.Output), nil
		case "failed", "canceled":
			c.logger.Warn("prediction did not succeed", zap.String("id", pred.ID), zap.String("status", pred.Status), zap.Any("error", pred.Error))
			return "", fmt.Errorf("%w: prediction %s", apperr.ErrUnparseable, pred.Status)
		}
		if pred.ID == "" {
			return "", fmt.Errorf("%w: prediction without id", apperr.ErrUnparseable)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		if err := c.do(ctx, http.MethodGet, "/v1/predictions/"+pred.ID, nil, &pred); err != nil {
			return "", err
		}
	}
}

func (c *ReplicateClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait=60")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.UpstreamError{Service: "replicate", StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUnparseable, err)
	}
	return nil
}

// predictionText joins array output, or renders scalar output as text.
func predictionText(output json.RawMessage) string {
	var parts []any
	if err := json.Unmarshal(output, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			fmt.Fprint(&b, p)
		}
		return b.String()
	}
	var s string
	if err := json.Unmarshal(output, &s); err == nil {
		return s
	}
	return string(output)
}
