package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openpayments "github.com/ilpay/openpayments-go"
)

// recordingTransport returns a canned response and keeps the request.
type recordingTransport struct {
	resp *Response
	err  error
	req  *http.Request
	body []byte
}

func (r *recordingTransport) Do(ctx context.Context, req *http.Request) (*Response, error) {
	r.req = req
	if req.Body != nil {
		r.body, _ = io.ReadAll(req.Body)
	}
	return r.resp, r.err
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(nil); !openpayments.IsSigning(err) {
		t.Errorf("NewClient(nil) error = %v, want signing error", err)
	}

	signer := newTestSigner(t)

	tests := []struct {
		name    string
		opts    []ClientOption
		wantErr error
	}{
		{"defaults", nil, nil},
		{"nil transport", []ClientOption{WithTransport(nil)}, openpayments.ErrInvalidConfig},
		{"nil codec", []ClientOption{WithCodec(nil)}, openpayments.ErrInvalidConfig},
		{"nil clock", []ClientOption{WithClock(nil)}, openpayments.ErrInvalidConfig},
		{"bad options", []ClientOption{WithOptions(openpayments.Options{})}, openpayments.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(signer, tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewClient() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			if c.Options() != openpayments.DefaultOptions() {
				t.Errorf("Options() = %+v", c.Options())
			}
		})
	}
}

func TestClient_SendSignedRequest(t *testing.T) {
	rt := &recordingTransport{resp: &Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"access_token":{"value":"tok-123","manage":"https://auth.example/token/1"},"unknown":true}`),
	}}
	created := time.Unix(1741002284, 0)

	c, err := NewClient(newTestSigner(t), WithTransport(rt), WithClock(func() time.Time { return created }))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	grant := openpayments.NewIncomingPaymentGrantRequest("https://ilp.interledger-test.dev/andrejfliqatestwallet")
	b := c.NewRequest().Method(http.MethodPost).Target("https://auth.interledger-test.dev").JSONBody(grant)

	got, err := Do[openpayments.AccessGrant](context.Background(), c, b)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got.Token() != "tok-123" {
		t.Errorf("Token() = %q, want tok-123", got.Token())
	}

	if rt.req.URL.String() != "https://auth.interledger-test.dev/" {
		t.Errorf("URL = %s", rt.req.URL)
	}
	wantSig := "sig1=:OIkhKLdHSgK9EalHj9bYUd8fael+gkzctFJdynEb0vOS8qXLPtRYHPXGFSCs8G6CV4YGOP0pMUx0oNp7mkCeCA==:"
	if rt.req.Header.Get("Signature") != wantSig {
		t.Errorf("Signature = %q, want %q", rt.req.Header.Get("Signature"), wantSig)
	}
	if !strings.HasSuffix(rt.req.Header.Get("Signature-Input"), `created=1741002284`) {
		t.Errorf("Signature-Input = %q", rt.req.Header.Get("Signature-Input"))
	}
	if rt.req.ContentLength != int64(len(rt.body)) {
		t.Errorf("ContentLength = %d, body %d bytes", rt.req.ContentLength, len(rt.body))
	}
}

func TestClient_RemoteError(t *testing.T) {
	rt := &recordingTransport{resp: &Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{},
		Body:       []byte("forbidden"),
	}}

	c, err := NewClient(newTestSigner(t), WithTransport(rt))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	b := c.NewRequest().Method(http.MethodGet).Target("https://ilp.interledger-test.dev/incoming-payments/abc").BearerToken("tok")
	_, err = Do[openpayments.IncomingPayment](context.Background(), c, b)
	if !openpayments.IsRemote(err) {
		t.Fatalf("Do() error = %v, want remote error", err)
	}

	e, _ := openpayments.AsError(err)
	if e.Description == "" {
		t.Error("Description is empty")
	}
	if e.Method != http.MethodGet {
		t.Errorf("Method = %q", e.Method)
	}
	if e.URL != "https://ilp.interledger-test.dev/incoming-payments/abc/" {
		t.Errorf("URL = %q", e.URL)
	}
}

func TestClient_DecodeError(t *testing.T) {
	rt := &recordingTransport{resp: &Response{StatusCode: http.StatusOK, Body: []byte(`{"id":`)}}

	c, err := NewClient(newTestSigner(t), WithTransport(rt))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = Fetch[openpayments.PaymentPointer](context.Background(), c, "https://ilp.interledger-test.dev/wallet")
	if !openpayments.IsCodec(err) {
		t.Fatalf("Fetch() error = %v, want codec error", err)
	}
	e, _ := openpayments.AsError(err)
	if string(e.Body) != `{"id":` {
		t.Errorf("Body = %q, want raw content", e.Body)
	}
}

func TestClient_NetworkErrorPassesThrough(t *testing.T) {
	netErr := openpayments.NewNetworkError("GET https://x", errors.New("connection reset"))
	rt := &recordingTransport{err: netErr}

	c, err := NewClient(newTestSigner(t), WithTransport(rt))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := c.Get(context.Background(), "https://x", nil); !openpayments.IsNetwork(err) {
		t.Errorf("Get() error = %v, want network error", err)
	}
}

func TestClient_BuilderErrorStopsSend(t *testing.T) {
	rt := &recordingTransport{}

	c, err := NewClient(newTestSigner(t), WithTransport(rt))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	b := c.NewRequest().Method("PATCH").Target("https://x.example")
	if err := c.Send(context.Background(), b, nil); !errors.Is(err, openpayments.ErrUnsupportedMethod) {
		t.Errorf("Send() error = %v, want ErrUnsupportedMethod", err)
	}
	if rt.req != nil {
		t.Error("request was sent")
	}
}

func TestClient_UnsignedGetOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Signature") != "" {
			t.Error("wallet lookup must not be signed")
		}
		_, _ = w.Write([]byte(`{"id":"https://ilp.interledger-test.dev/wallet","assetCode":"EUR","assetScale":2,"authServer":"https://auth.interledger-test.dev","resourceServer":"https://ilp.interledger-test.dev"}`))
	}))
	defer server.Close()

	c, err := NewClient(newTestSigner(t))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	wallet, err := Fetch[openpayments.PaymentPointer](context.Background(), c, server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if wallet.AssetCode != "EUR" || wallet.AssetScale != 2 {
		t.Errorf("wallet = %+v", wallet)
	}
}
