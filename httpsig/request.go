package httpsig

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	openpayments "github.com/ilpay/openpayments-go"
)

// Header names emitted on signed requests.
const (
	HeaderAccept         = "Accept"
	HeaderContentType    = "Content-Type"
	HeaderContentDigest  = "Content-Digest"
	HeaderAuthorization  = "Authorization"
	HeaderSignatureInput = "Signature-Input"
	HeaderSignature      = "Signature"
	mediaTypeJSON        = "application/json"
	authorizationScheme  = "GNAP "
)

// Encoder turns a resource into the exact bytes sent as a request body.
type Encoder interface {
	Encode(v any) ([]byte, error)
}

// RequestBuilder accumulates the parts of one signed request. It is a value:
// every method returns an updated copy, and Finalize consumes it into an
// immutable *Request. The first misuse is remembered and returned by Finalize.
type RequestBuilder struct {
	signer  *Signer
	encoder Encoder

	method  string
	target  string
	body    []byte
	headers []Component
	token   string

	err error
}

// NewRequestBuilder starts a request signed by signer with bodies encoded by enc.
func NewRequestBuilder(signer *Signer, enc Encoder) RequestBuilder {
	return RequestBuilder{signer: signer, encoder: enc}
}

func (b RequestBuilder) fail(err error) RequestBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Method sets the HTTP method. It may be set once.
func (b RequestBuilder) Method(m string) RequestBuilder {
	if b.method != "" {
		return b.fail(fmt.Errorf("%w: method already set to %s", openpayments.ErrBuilderState, b.method))
	}
	if err := CheckMethod(m); err != nil {
		return b.fail(err)
	}
	b.method = m
	return b
}

// Target sets the request URI, normalized as NormalizeTarget does. It may be set once.
func (b RequestBuilder) Target(uri string) RequestBuilder {
	if b.target != "" {
		return b.fail(fmt.Errorf("%w: target already set to %s", openpayments.ErrBuilderState, b.target))
	}
	normalized, err := NormalizeTarget(uri)
	if err != nil {
		return b.fail(err)
	}
	b.target = normalized
	return b
}

// JSONBody encodes v and records Content-Type, Content-Length and
// Content-Digest over the encoded bytes.
func (b RequestBuilder) JSONBody(v any) RequestBuilder {
	if b.body != nil {
		return b.fail(fmt.Errorf("%w: body already set", openpayments.ErrBuilderState))
	}
	if b.encoder == nil {
		return b.fail(fmt.Errorf("%w: no encoder configured", openpayments.ErrBuilderState))
	}
	body, err := b.encoder.Encode(v)
	if err != nil {
		return b.fail(err)
	}
	return b.RawJSONBody(body)
}

// RawJSONBody uses body as the already encoded JSON request body.
func (b RequestBuilder) RawJSONBody(body []byte) RequestBuilder {
	if b.body != nil {
		return b.fail(fmt.Errorf("%w: body already set", openpayments.ErrBuilderState))
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return b.fail(openpayments.NewSigningError("digest body", openpayments.ErrEmptyBody))
	}
	digest, err := ContentDigest(body)
	if err != nil {
		return b.fail(openpayments.NewSigningError("digest body", err))
	}

	b.body = slices.Clone(body)
	b.headers = append(slices.Clip(b.headers),
		Component{Name: ComponentContentDigest, Value: digest},
		Component{Name: ComponentContentLength, Value: strconv.Itoa(len(body))},
		Component{Name: ComponentContentType, Value: mediaTypeJSON},
	)
	return b
}

// BearerToken adds "Authorization: GNAP <token>".
func (b RequestBuilder) BearerToken(token string) RequestBuilder {
	if b.token != "" {
		return b.fail(fmt.Errorf("%w: bearer token already set", openpayments.ErrBuilderState))
	}
	if token == "" {
		return b.fail(fmt.Errorf("%w: bearer token cannot be empty", openpayments.ErrMissingAccessToken))
	}
	b.token = token
	b.headers = append(slices.Clip(b.headers), Component{Name: ComponentAuthorization, Value: authorizationScheme + token})
	return b
}

// Finalize signs the request as created at the given time.
func (b RequestBuilder) Finalize(created time.Time) (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.method == "" {
		return nil, fmt.Errorf("%w: method not set", openpayments.ErrBuilderState)
	}
	if b.target == "" {
		return nil, fmt.Errorf("%w: target not set", openpayments.ErrBuilderState)
	}
	if b.signer == nil {
		return nil, openpayments.NewSigningError("sign request", openpayments.ErrInvalidKey)
	}

	sig, err := b.signer.Sign(b.method, b.target, b.headers, created.Unix())
	if err != nil {
		return nil, err
	}

	return &Request{
		method:    b.method,
		target:    b.target,
		body:      b.body,
		token:     b.token,
		created:   created.Unix(),
		signature: sig,
	}, nil
}

// Build finalizes the request with the current time.
func (b RequestBuilder) Build() (*Request, error) {
	return b.Finalize(time.Now())
}

// Request is a signed, ready to send request. It cannot be modified.
type Request struct {
	method    string
	target    string
	body      []byte
	token     string
	created   int64
	signature Signature
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// Target returns the normalized target URI.
func (r *Request) Target() string { return r.target }

// Body returns a copy of the body bytes, or nil.
func (r *Request) Body() []byte { return slices.Clone(r.body) }

// Created returns the signature creation time in Unix seconds.
func (r *Request) Created() int64 { return r.created }

// Signature returns the computed signature.
func (r *Request) Signature() Signature { return r.signature }

// Headers returns the request headers in their fixed order: Accept,
// Content-Type, Content-Digest, Authorization, Signature-Input, Signature.
func (r *Request) Headers() []Component {
	headers := []Component{{Name: HeaderAccept, Value: mediaTypeJSON}}
	if r.body != nil {
		digest, _ := ContentDigest(r.body)
		headers = append(headers,
			Component{Name: HeaderContentType, Value: mediaTypeJSON},
			Component{Name: HeaderContentDigest, Value: digest},
		)
	}
	if r.token != "" {
		headers = append(headers, Component{Name: HeaderAuthorization, Value: authorizationScheme + r.token})
	}
	return append(headers,
		Component{Name: HeaderSignatureInput, Value: r.signature.InputHeader()},
		Component{Name: HeaderSignature, Value: r.signature.Header()},
	)
}

// HTTPRequest converts the request into an *http.Request bound to ctx.
// Content-Length is carried on the request, not in the header map.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body *bytes.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, r.method, r.target, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, r.method, r.target, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for _, h := range r.Headers() {
		req.Header.Set(h.Name, h.Value)
	}
	if r.body != nil {
		req.ContentLength = int64(len(r.body))
	}
	return req, nil
}
