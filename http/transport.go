package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openpayments "github.com/ilpay/openpayments-go"
)

// Response is a fully read response: status, headers and the body bytes.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports whether the status is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport executes a prepared request. Implementations must honour ctx and
// return a network error for anything that prevents a complete response.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*Response, error)
}

// HTTPTransport is the net/http backed Transport. The connect timeout bounds
// dialing and the request timeout bounds the whole exchange, body included.
// Failed requests are never retried.
type HTTPTransport struct {
	client         *http.Client
	base           http.RoundTripper
	logger         *slog.Logger
	connectTimeout time.Duration
	requestTimeout time.Duration
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport) error

// NewHTTPTransport creates a transport with the timeouts from opts.
func NewHTTPTransport(opts openpayments.Options, options ...TransportOption) (*HTTPTransport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	t := &HTTPTransport{
		logger:         slog.Default(),
		connectTimeout: opts.ConnectTimeout,
		requestTimeout: opts.RequestTimeout,
	}

	for _, opt := range options {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	if t.base == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.DialContext = (&net.Dialer{Timeout: t.connectTimeout}).DialContext
		base.TLSHandshakeTimeout = t.connectTimeout
		t.base = base
	}
	t.client = &http.Client{
		Transport: &LoggingTransport{Base: t.base, Logger: t.logger},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return t, nil
}

// WithRoundTripper sets the underlying round tripper, for example the one of
// an httptest TLS server. The connect timeout is then the round tripper's concern.
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(t *HTTPTransport) error {
		if rt == nil {
			return fmt.Errorf("%w: round tripper cannot be nil", openpayments.ErrInvalidConfig)
		}
		t.base = rt
		return nil
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *HTTPTransport) error {
		if logger != nil {
			t.logger = logger
		}
		return nil
	}
}

// Do sends req and reads the whole response body.
func (t *HTTPTransport) Do(ctx context.Context, req *http.Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()

	target := req.Method + " " + req.URL.String()

	resp, err := t.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, networkError(target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(target, fmt.Errorf("failed to read response body: %w", err))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func networkError(target string, err error) *openpayments.Error {
	e := openpayments.NewNetworkError(target, err)
	if errors.Is(err, context.DeadlineExceeded) {
		e.WithDetails("timeout", true)
	}
	return e
}

// LoggingTransport is a RoundTripper that logs every exchange. A summary is
// logged at debug; headers and bodies are dumped at openpayments.LevelTrace.
type LoggingTransport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Logger receives the log records. Defaults to slog.Default().
	Logger *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx := req.Context()

	if logger.Enabled(ctx, openpayments.LevelTrace) {
		logger.Log(ctx, openpayments.LevelTrace, "http request",
			"method", req.Method,
			"url", req.URL.String(),
			"headers", redactHeaders(req.Header),
			"body", string(requestBody(req)),
		)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		logger.DebugContext(ctx, "http request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration", duration,
			"error", err,
		)
		return nil, err
	}

	logger.DebugContext(ctx, "http exchange",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration", duration,
	)

	if logger.Enabled(ctx, openpayments.LevelTrace) {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if readErr != nil {
			return nil, readErr
		}
		logger.Log(ctx, openpayments.LevelTrace, "http response",
			"status", resp.StatusCode,
			"headers", resp.Header,
			"body", string(body),
		)
	}

	return resp, nil
}

// redactHeaders returns a copy of h with the Authorization credentials
// masked. The scheme is kept, e.g. "GNAP ***".
func redactHeaders(h http.Header) http.Header {
	auth := h.Get("Authorization")
	if auth == "" {
		return h
	}
	out := h.Clone()
	scheme, _, found := strings.Cut(auth, " ")
	if !found {
		scheme = ""
	} else {
		scheme += " "
	}
	out.Set("Authorization", scheme+"***")
	return out
}

// requestBody returns a copy of the request body without consuming it.
func requestBody(req *http.Request) []byte {
	if req.GetBody == nil {
		return nil
	}
	rc, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	return b
}
