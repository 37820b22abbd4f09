package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HeaderPolicy builds the outbound headers from the inbound ones.
type HeaderPolicy func(in http.Header) http.Header

// ProxyTarget is one upstream API reachable through the proxy.
type ProxyTarget struct {
	Name    string
	BaseURL string
	Headers HeaderPolicy
	// AllowHeaders is the preflight Access-Control-Allow-Headers value.
	// Empty means "Content-Type".
	AllowHeaders string
}

// ProxyRequestOpts describes the inbound request to forward.
type ProxyRequestOpts struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// ProxyResponse is the upstream answer, returned unchanged.
type ProxyResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// ProxyService forwards requests to an upstream with server-side credentials.
// It does not retry.
type ProxyService struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(timeout time.Duration, logger *zap.Logger) *ProxyService {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ProxyService{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("proxy"),
	}
}

// Forward sends opts to target. Only transport failures return an error; upstream
// statuses of every kind come back in the response.
func (p *ProxyService) Forward(ctx context.Context, target ProxyTarget, opts ProxyRequestOpts) (*ProxyResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(target.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s base URL: %w", target.Name, err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(opts.Path, "/")
	u.RawQuery = opts.RawQuery

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead && len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	inbound := opts.Header
	if inbound == nil {
		inbound = http.Header{}
	}
	req.Header = target.Headers(inbound.Clone())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("upstream unreachable", zap.String("target", target.Name), zap.String("path", u.Path), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", target.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", target.Name, err)
	}

	p.logger.Debug("forwarded",
		zap.String("target", target.Name),
		zap.String("method", method),
		zap.String("path", u.Path),
		zap.Int("status", resp.StatusCode),
	)
	return &ProxyResponse{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// AnthropicHeaders drops every inbound header and sets only the JSON content type,
// the API key and the API version.
func AnthropicHeaders(apiKey, version string) HeaderPolicy {
	return func(http.Header) http.Header {
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		h.Set("x-api-key", apiKey)
		h.Set("anthropic-version", version)
		return h
	}
}

// ReplicateHeaders keeps the inbound headers except Host and hop-by-hop ones and
// replaces Authorization with the server token.
func ReplicateHeaders(token string) HeaderPolicy {
	return func(in http.Header) http.Header {
		for _, k := range hopHeaders {
			in.Del(k)
		}
		in.Del("Host")
		in.Set("Authorization", "Bearer "+token)
		return in
	}
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Accept-Encoding",
}

// IsTimeout reports whether err is a client-side timeout.
func IsTimeout(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
