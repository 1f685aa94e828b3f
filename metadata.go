package openpayments

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MetadataItem is one key/value pair attached to a payment. Value may be empty
// for a bare flag.
type MetadataItem struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// MetadataItems is a set of items, serialized sorted by key then value.
type MetadataItems []MetadataItem

// MarshalJSON implements json.Marshaler.
func (m MetadataItems) MarshalJSON() ([]byte, error) {
	items := slices.Clone(m)
	slices.SortFunc(items, func(a, b MetadataItem) int {
		if c := strings.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	items = slices.Compact(items)
	if items == nil {
		items = MetadataItems{}
	}
	return json.Marshal([]MetadataItem(items))
}

// Metadata is free-form payment context used for reconciliation.
type Metadata struct {
	ExternalID string        `json:"externalId,omitempty"`
	Items      MetadataItems `json:"value,omitempty"`
}

// PaymentRequest creates an incoming payment on the receiver's resource server.
type PaymentRequest struct {
	WalletAddress  WalletAddress     `json:"walletAddress"`
	IncomingAmount InterledgerAmount `json:"incomingAmount"`
	ExpiresAt      *Instant          `json:"expiresAt,omitempty"`
	Metadata       *Metadata         `json:"metadata,omitempty"`
}

// NewPaymentRequest builds an incoming payment request for receiver, with the
// amount scaled to the receiver's asset and expiring at now+expiresIn.
func NewPaymentRequest(receiver PaymentPointer, amount decimal.Decimal, expiresIn time.Duration, now time.Time, metadata *Metadata) (PaymentRequest, error) {
	if receiver.ID == "" {
		return PaymentRequest{}, fmt.Errorf("%w: missing receiver address", ErrInvalidWalletAddress)
	}
	if amount.IsNegative() {
		return PaymentRequest{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidAmount)
	}
	if expiresIn <= 0 {
		return PaymentRequest{}, fmt.Errorf("%w: expiry must be greater than 0", ErrInvalidConfig)
	}
	incoming, err := BuildScaledAmount(&amount, receiver.AssetCode, receiver.AssetScale)
	if err != nil {
		return PaymentRequest{}, err
	}
	return PaymentRequest{
		WalletAddress:  receiver.ID,
		IncomingAmount: incoming,
		ExpiresAt:      NewInstant(now.Add(expiresIn)),
		Metadata:       metadata,
	}, nil
}
