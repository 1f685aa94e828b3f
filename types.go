package openpayments

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// WalletAddress identifies an Interledger account. It serializes as the bare URL string.
type WalletAddress string

// ParseWalletAddress validates raw as an absolute http(s) URL.
func ParseWalletAddress(raw string) (WalletAddress, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: wallet address cannot be empty", ErrInvalidWalletAddress)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWalletAddress, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidWalletAddress, raw)
	}
	return WalletAddress(raw), nil
}

// String returns the address URL.
func (w WalletAddress) String() string { return string(w) }

// InstantFormat is the single timestamp layout used on the wire.
const InstantFormat = "2006-01-02T15:04:05.999999999Z07:00"

// Instant is a UTC timestamp encoded with InstantFormat.
type Instant struct {
	time.Time
}

// NewInstant returns t as an Instant.
func NewInstant(t time.Time) *Instant {
	return &Instant{Time: t.UTC()}
}

// MarshalJSON implements json.Marshaler.
func (i Instant) MarshalJSON() ([]byte, error) {
	return []byte(`"` + i.UTC().Format(InstantFormat) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Instant) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	t, err := time.Parse(InstantFormat, s)
	if err != nil {
		return fmt.Errorf("invalid instant %q: %w", s, err)
	}
	i.Time = t.UTC()
	return nil
}

// PaymentPointer is the metadata published at a wallet address.
type PaymentPointer struct {
	ID             WalletAddress `json:"id"`
	PublicName     string        `json:"publicName,omitempty"`
	AssetCode      string        `json:"assetCode"`
	AssetScale     int           `json:"assetScale"`
	AuthServer     string        `json:"authServer"`
	ResourceServer string        `json:"resourceServer"`
}

// Limits bound what an outgoing-payment grant may spend.
type Limits struct {
	Receiver      string             `json:"receiver,omitempty"`
	ReceiveAmount *InterledgerAmount `json:"receiveAmount,omitempty"`
	DebitAmount   *InterledgerAmount `json:"debitAmount,omitempty"`
	Interval      string             `json:"interval,omitempty"`
}

// AccessItem is one requested or granted capability.
type AccessItem struct {
	Type       AccessItemType `json:"type"`
	Actions    ActionSet      `json:"actions"`
	Identifier string         `json:"identifier,omitempty"`
	Limits     *Limits        `json:"limits,omitempty"`
}

// AccessToken is an issued (or requested) GNAP access token.
type AccessToken struct {
	Value     string       `json:"value,omitempty"`
	Manage    string       `json:"manage,omitempty"`
	ExpiresIn *int64       `json:"expires_in,omitempty"`
	Access    []AccessItem `json:"access,omitempty"`
}

// AccessContinue describes how to continue a pending grant.
type AccessContinue struct {
	AccessToken *AccessToken `json:"access_token,omitempty"`
	URI         string       `json:"uri"`
	Wait        *int64       `json:"wait,omitempty"`
}

// Token returns the continuation access token value.
func (c *AccessContinue) Token() string {
	if c == nil || c.AccessToken == nil {
		return ""
	}
	return c.AccessToken.Value
}

// AccessGrant is the auth server's answer to a grant request or continuation.
type AccessGrant struct {
	AccessToken *AccessToken    `json:"access_token,omitempty"`
	Continue    *AccessContinue `json:"continue,omitempty"`
}

// Token returns the access token value, or "" when none was issued.
func (g *AccessGrant) Token() string {
	if g == nil || g.AccessToken == nil {
		return ""
	}
	return g.AccessToken.Value
}

// Expired reports whether the grant's token, obtained at obtainedAt, has expired by now.
// Tokens without expires_in never expire.
func (g *AccessGrant) Expired(obtainedAt, now time.Time) bool {
	if g == nil || g.AccessToken == nil || g.AccessToken.ExpiresIn == nil {
		return false
	}
	deadline := obtainedAt.Add(time.Duration(*g.AccessToken.ExpiresIn) * time.Second)
	return !now.Before(deadline)
}

// InteractFinish tells the auth server where to send the user after interaction.
type InteractFinish struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Nonce  string `json:"nonce"`
}

// AccessInteract requests an interaction as part of a grant.
type AccessInteract struct {
	Start  []string        `json:"start"`
	Finish *InteractFinish `json:"finish,omitempty"`
}

// GrantAccessRequest is posted to an auth server to obtain a grant.
type GrantAccessRequest struct {
	Client      WalletAddress   `json:"client"`
	AccessToken AccessToken     `json:"access_token"`
	Interact    *AccessInteract `json:"interact,omitempty"`
}

// InteractResponse carries the redirect the user must visit.
type InteractResponse struct {
	Redirect string `json:"redirect"`
	Finish   string `json:"finish"`
}

// OutgoingPayment is the result of an interactive outgoing-payment grant request.
type OutgoingPayment struct {
	Continue    *AccessContinue   `json:"continue,omitempty"`
	Interact    *InteractResponse `json:"interact,omitempty"`
	AccessToken *AccessToken      `json:"access_token,omitempty"`
}

// InteractRef is posted to the continuation URI once the user has returned.
type InteractRef struct {
	InteractRef string `json:"interact_ref"`
}

// QuoteRequest asks the sender's resource server for a quote.
type QuoteRequest struct {
	WalletAddress WalletAddress `json:"walletAddress"`
	Receiver      string        `json:"receiver"`
	Method        string        `json:"method"`
}

// Quote is a priced estimate of a transfer.
type Quote struct {
	ID            string             `json:"id"`
	WalletAddress WalletAddress      `json:"walletAddress"`
	Receiver      string             `json:"receiver"`
	Method        string             `json:"method"`
	DebitAmount   *InterledgerAmount `json:"debitAmount,omitempty"`
	ReceiveAmount *InterledgerAmount `json:"receiveAmount,omitempty"`
	CreatedAt     *Instant           `json:"createdAt,omitempty"`
	ExpiresAt     *Instant           `json:"expiresAt,omitempty"`
}

// Expired reports whether the quote's validity window has closed by now.
func (q *Quote) Expired(now time.Time) bool {
	if q == nil || q.ExpiresAt == nil {
		return false
	}
	return !now.Before(q.ExpiresAt.Time)
}

// PaymentMethod is one way to deliver funds to an incoming payment.
type PaymentMethod struct {
	Type         string `json:"type"`
	ILPAddress   string `json:"ilpAddress,omitempty"`
	SharedSecret string `json:"sharedSecret,omitempty"`
}

// IncomingPayment is a payment the receiver's wallet expects.
type IncomingPayment struct {
	ID             string             `json:"id"`
	WalletAddress  WalletAddress      `json:"walletAddress"`
	Completed      bool               `json:"completed"`
	IncomingAmount *InterledgerAmount `json:"incomingAmount,omitempty"`
	ReceivedAmount *InterledgerAmount `json:"receivedAmount,omitempty"`
	Methods        []PaymentMethod    `json:"methods,omitempty"`
	Metadata       *Metadata          `json:"metadata,omitempty"`
	CreatedAt      *Instant           `json:"createdAt,omitempty"`
	UpdatedAt      *Instant           `json:"updatedAt,omitempty"`
	ExpiresAt      *Instant           `json:"expiresAt,omitempty"`
}

// OutgoingPaymentRequest asks the sender's resource server to execute a quote.
type OutgoingPaymentRequest struct {
	WalletAddress   WalletAddress      `json:"walletAddress"`
	QuoteID         string             `json:"quoteId,omitempty"`
	Metadata        *Metadata          `json:"metadata,omitempty"`
	IncomingPayment string             `json:"incomingPayment,omitempty"`
	DebitAmount     *InterledgerAmount `json:"debitAmount,omitempty"`
}

// Payment is a finalized outgoing payment.
type Payment struct {
	ID                      string             `json:"id"`
	WalletAddress           WalletAddress      `json:"walletAddress"`
	QuoteID                 string             `json:"quoteId,omitempty"`
	Failed                  bool               `json:"failed"`
	Receiver                string             `json:"receiver"`
	ReceiveAmount           *InterledgerAmount `json:"receiveAmount,omitempty"`
	DebitAmount             *InterledgerAmount `json:"debitAmount,omitempty"`
	SentAmount              *InterledgerAmount `json:"sentAmount,omitempty"`
	GrantSpentDebitAmount   *InterledgerAmount `json:"grantSpentDebitAmount,omitempty"`
	GrantSpentReceiveAmount *InterledgerAmount `json:"grantSpentReceiveAmount,omitempty"`
	Metadata                *Metadata          `json:"metadata,omitempty"`
	CreatedAt               *Instant           `json:"createdAt,omitempty"`
	UpdatedAt               *Instant           `json:"updatedAt,omitempty"`
}

// ApiError is the error envelope returned by wallet servers.
type ApiError struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// ApiErrorEnvelope is the root-wrapped form {"error": {...}}.
type ApiErrorEnvelope struct {
	Error *ApiError `json:"error"`
}
