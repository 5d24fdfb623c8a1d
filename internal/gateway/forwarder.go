// Package gateway relays inbound messages to an external HTTP endpoint.
// A forward is a single request: no retry, no backoff.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smsgate/internal/domain"
	"smsgate/internal/metrics"
)

const maxResponseBytes = 64 << 10

// ResponseSummary is what a successful forward reports. It is logged, never
// interpreted.
type ResponseSummary struct {
	StatusCode int
	Body       string
}

// Config configures a Forwarder.
type Config struct {
	Method  string        // GET (query string) or POST (form body); default GET
	Timeout time.Duration // bound on the whole round trip; default 30s
	Client  *http.Client  // optional; built from Timeout when nil
	Logger  *slog.Logger
}

// Forwarder issues gateway requests.
type Forwarder struct {
	method string
	client *http.Client
	logger *slog.Logger
}

func NewForwarder(cfg Config) *Forwarder {
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method != http.MethodPost {
		method = http.MethodGet
	}
	if cfg.Client == nil {
		cfg.Client = NewHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Forwarder{
		method: method,
		client: cfg.Client,
		logger: cfg.Logger,
	}
}

// Method returns the HTTP method in use.
func (f *Forwarder) Method() string { return f.method }

// Forward sends req to the gateway. Every failure, including a panic in the
// transport, comes back as a *Error.
func (f *Forwarder) Forward(ctx context.Context, req domain.GatewayRequest) (summary *ResponseSummary, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = &Error{Op: "panic", Err: fmt.Errorf("%v", r)}
		}
		metrics.GatewayLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.GatewayForwards.WithLabelValues("error").Inc()
		} else {
			metrics.GatewayForwards.WithLabelValues("ok").Inc()
		}
	}()

	httpReq, err := f.buildRequest(ctx, req)
	if err != nil {
		return nil, &Error{Op: "build", Err: err}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	text := strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: "status", StatusCode: resp.StatusCode, Body: text}
	}

	f.logger.Debug("gateway responded",
		"status", resp.StatusCode,
		"response", text,
		"latency", time.Since(start),
	)
	return &ResponseSummary{StatusCode: resp.StatusCode, Body: text}, nil
}

func (f *Forwarder) buildRequest(ctx context.Context, req domain.GatewayRequest) (*http.Request, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported gateway URL scheme %q", u.Scheme)
	}

	params := url.Values{}
	params.Set("source", req.Source)
	params.Set("subject", req.Subject)
	params.Set("body", req.Body)

	var httpReq *http.Request
	switch f.method {
	case http.MethodPost:
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(params.Encode()))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		q := u.Query()
		for k, v := range params {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
	}

	if req.Credential != "" {
		httpReq.Header.Set("Authorization", req.Credential)
	}
	return httpReq, nil
}
