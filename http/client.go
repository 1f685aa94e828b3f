// Package http sends Open Payments requests: it executes signed requests
// over a Transport, decodes 2xx bodies through the codec and classifies
// everything else into remote errors.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/encoding"
	"github.com/ilpay/openpayments-go/httpsig"
)

// Client sends signed and unsigned Open Payments requests. It holds no
// per-flow state and is safe for concurrent use.
type Client struct {
	transport Transport
	signer    *httpsig.Signer
	codec     *encoding.Codec
	logger    *slog.Logger
	options   openpayments.Options
	now       func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a client that signs with signer. Without WithTransport an
// HTTPTransport is built from the client's options.
func NewClient(signer *httpsig.Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil {
		return nil, openpayments.NewSigningError("create client", openpayments.ErrInvalidKey)
	}

	c := &Client{
		signer:  signer,
		codec:   encoding.NewCodec(),
		logger:  slog.Default(),
		options: openpayments.DefaultOptions(),
		now:     time.Now,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.options.Validate(); err != nil {
		return nil, err
	}

	if c.transport == nil {
		t, err := NewHTTPTransport(c.options, WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.transport = t
	}

	return c, nil
}

// WithTransport sets the transport requests are executed on.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) error {
		if t == nil {
			return fmt.Errorf("%w: transport cannot be nil", openpayments.ErrInvalidConfig)
		}
		c.transport = t
		return nil
	}
}

// WithCodec sets the codec used for request and response bodies.
func WithCodec(codec *encoding.Codec) ClientOption {
	return func(c *Client) error {
		if codec == nil {
			return fmt.Errorf("%w: codec cannot be nil", openpayments.ErrInvalidConfig)
		}
		c.codec = codec
		return nil
	}
}

// WithOptions sets timeouts and the incoming payment expiry.
func WithOptions(opts openpayments.Options) ClientOption {
	return func(c *Client) error {
		c.options = opts
		return nil
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithClock sets the time source used for signature creation timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", openpayments.ErrInvalidConfig)
		}
		c.now = now
		return nil
	}
}

// Options returns the client's options.
func (c *Client) Options() openpayments.Options { return c.options }

// Codec returns the codec the client encodes bodies with.
func (c *Client) Codec() *encoding.Codec { return c.codec }

// Signer returns the request signer.
func (c *Client) Signer() *httpsig.Signer { return c.signer }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Now returns the current time from the client's clock.
func (c *Client) Now() time.Time { return c.now() }

// NewRequest starts a fresh signed request builder.
func (c *Client) NewRequest() httpsig.RequestBuilder {
	return httpsig.NewRequestBuilder(c.signer, c.codec)
}

// Send finalizes b at the current time, executes it and decodes a 2xx body
// into out.
func (c *Client) Send(ctx context.Context, b httpsig.RequestBuilder, out any) error {
	req, err := b.Finalize(c.now())
	if err != nil {
		return err
	}
	return c.SendRequest(ctx, req, out)
}

// SendRequest executes an already signed request.
func (c *Client) SendRequest(ctx context.Context, req *httpsig.Request, out any) error {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return openpayments.NewSigningError("build request", err)
	}
	return c.exchange(ctx, httpReq, out)
}

// Get performs an unsigned GET, as used for wallet address lookups.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return openpayments.NewNetworkError("create request", err)
	}
	req.Header.Set(httpsig.HeaderAccept, "application/json")
	return c.exchange(ctx, req, out)
}

func (c *Client) exchange(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return err
	}

	if !resp.Success() {
		e := Classify(resp)
		e.Method = req.Method
		e.URL = req.URL.String()
		logRemoteError(c.logger, e)
		return e
	}

	if out == nil {
		return nil
	}
	return c.codec.Decode(resp.Body, out)
}

// Do is a typed helper around Client.Send.
func Do[T any](ctx context.Context, c *Client, b httpsig.RequestBuilder) (*T, error) {
	var v T
	if err := c.Send(ctx, b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Fetch is a typed helper around Client.Get.
func Fetch[T any](ctx context.Context, c *Client, url string) (*T, error) {
	var v T
	if err := c.Get(ctx, url, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
