package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/encoding"
)

func samplePending() *Pending {
	return &Pending{
		ID:       "flow-1",
		State:    StateAwaitingInteraction,
		Sender:   &openpayments.PaymentPointer{ID: "https://ilp.interledger-test.dev/sender", AssetCode: "EUR", AssetScale: 2, AuthServer: "https://auth.interledger-test.dev"},
		Receiver: &openpayments.PaymentPointer{ID: "https://ilp.interledger-test.dev/receiver", AssetCode: "USD", AssetScale: 2},
		IncomingGrant: &openpayments.AccessGrant{
			AccessToken: &openpayments.AccessToken{Value: "incoming-token"},
		},
		IncomingGrantAt: openpayments.NewInstant(time.Date(2025, 3, 3, 11, 44, 44, 0, time.UTC)),
		IncomingPayment: &openpayments.IncomingPayment{ID: "https://ilp.interledger-test.dev/incoming-payments/ip-1"},
		Quote:           &openpayments.Quote{ID: "https://ilp.interledger-test.dev/quotes/q-1", Method: "ilp"},
		Continue: &openpayments.AccessContinue{
			AccessToken: &openpayments.AccessToken{Value: "continue-token"},
			URI:         "https://auth.interledger-test.dev/continue/1",
		},
		Nonce:       "5b4c8b6e-0a4f-4e0b-9c51-7d1d1c3b8f0e",
		RedirectURL: "https://auth.interledger-test.dev/interact/1",
		FinishNonce: "finish-nonce",
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrUnknownFlow) {
		t.Errorf("Load(missing) error = %v, want ErrUnknownFlow", err)
	}
	if err := store.Save(ctx, &Pending{}); err == nil {
		t.Error("Save() without id succeeded")
	}

	p := samplePending()
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	p.State = StateDeclined

	got, err := store.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.State != StateAwaitingInteraction {
		t.Errorf("stored flow aliased the caller's value: %s", got.State)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	if err := store.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, p.ID); !errors.Is(err, ErrUnknownFlow) {
		t.Errorf("Load() after Delete error = %v", err)
	}
}

func TestPending_EncodeDecode(t *testing.T) {
	codec := encoding.NewCodec()
	p := samplePending()

	s, err := EncodePending(codec, p)
	if err != nil {
		t.Fatalf("EncodePending() error = %v", err)
	}
	got, err := DecodePending(codec, s)
	if err != nil {
		t.Fatalf("DecodePending() error = %v", err)
	}

	if got.ID != p.ID || got.State != p.State || got.Nonce != p.Nonce || got.FinishNonce != p.FinishNonce {
		t.Errorf("decoded = %+v", got)
	}
	if got.Continue.Token() != "continue-token" || got.Sender.AuthServer != p.Sender.AuthServer {
		t.Errorf("continuation or sender lost: %+v %+v", got.Continue, got.Sender)
	}
	if !got.IncomingGrantAt.Equal(p.IncomingGrantAt.Time) {
		t.Errorf("IncomingGrantAt = %v, want %v", got.IncomingGrantAt, p.IncomingGrantAt)
	}

	if _, err := EncodePending(codec, nil); !openpayments.IsCodec(err) {
		t.Errorf("EncodePending(nil) error = %v, want codec error", err)
	}
	if _, err := DecodePending(codec, "!!"); !openpayments.IsCodec(err) {
		t.Errorf("DecodePending(garbage) error = %v, want codec error", err)
	}
}

func TestReturnURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{"plain", "https://shop.example/return", "https://shop.example/return?flow=flow-1", false},
		{"keeps query", "https://shop.example/return?order=7", "https://shop.example/return?flow=flow-1&order=7", false},
		{"relative", "/return", "", true},
		{"unparsable", "://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReturnURL(tt.base, "flow-1")
			if tt.wantErr {
				if !errors.Is(err, openpayments.ErrInvalidConfig) {
					t.Errorf("ReturnURL() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReturnURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReturnURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
