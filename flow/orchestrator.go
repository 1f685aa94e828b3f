// Package flow sequences the Open Payments calls that move money from a
// sender wallet to a receiver wallet: wallet lookup, grants, incoming
// payment, quote, the interactive outgoing grant and the final payment.
//
// Every step is a method that takes the values earlier steps returned and
// yields the next value or an error. The Orchestrator keeps no per-flow
// state, so one Orchestrator can drive many flows at once.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openpayments "github.com/ilpay/openpayments-go"
	ophttp "github.com/ilpay/openpayments-go/http"
	"github.com/ilpay/openpayments-go/validation"
	"github.com/shopspring/decimal"
)

// Payment method used for quotes.
const methodILP = "ilp"

// Orchestrator runs flow steps on behalf of a client wallet.
type Orchestrator struct {
	client       *ophttp.Client
	clientWallet openpayments.WalletAddress
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets the logger steps are logged to.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// New creates an orchestrator that requests grants as clientWallet.
func New(client *ophttp.Client, clientWallet openpayments.WalletAddress, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client cannot be nil", openpayments.ErrInvalidConfig)
	}
	if _, err := openpayments.ParseWalletAddress(clientWallet.String()); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		client:       client,
		clientWallet: clientWallet,
		logger:       client.Logger(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// ClientWallet returns the wallet grants are requested for.
func (o *Orchestrator) ClientWallet() openpayments.WalletAddress {
	return o.clientWallet
}

// Client returns the underlying request client.
func (o *Orchestrator) Client() *ophttp.Client {
	return o.client
}

// ResolveWallet fetches the metadata published at address. The lookup is
// unsigned; metadata without usable servers or asset is a codec error.
func (o *Orchestrator) ResolveWallet(ctx context.Context, address openpayments.WalletAddress) (*openpayments.PaymentPointer, error) {
	if _, err := openpayments.ParseWalletAddress(address.String()); err != nil {
		return nil, openpayments.NewFlowStateError("resolve wallet", err)
	}
	o.logger.Debug("resolve wallet", "address", address)

	wallet, err := ophttp.Fetch[openpayments.PaymentPointer](ctx, o.client, address.String())
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePaymentPointer(*wallet); err != nil {
		return nil, openpayments.NewCodecError("resolve wallet", nil, err)
	}
	return wallet, nil
}

// RequestIncomingGrant asks the receiver's auth server for a non-interactive
// grant to read, complete and create incoming payments. The grant must carry
// an access token.
func (o *Orchestrator) RequestIncomingGrant(ctx context.Context, receiver *openpayments.PaymentPointer) (*openpayments.AccessGrant, error) {
	if err := requireWallet("request incoming grant", receiver); err != nil {
		return nil, err
	}
	o.logger.Debug("request incoming payment grant", "receiver", receiver.ID)

	grant, err := o.requestGrant(ctx, receiver.AuthServer, openpayments.NewIncomingPaymentGrantRequest(o.clientWallet))
	if err != nil {
		return nil, err
	}
	if grant.Token() == "" {
		return nil, openpayments.NewFlowStateError("request incoming grant", openpayments.ErrMissingAccessToken)
	}
	return grant, nil
}

// IncomingPaymentOption adjusts the incoming payment request.
type IncomingPaymentOption func(*openpayments.PaymentRequest)

// WithMetadata attaches metadata to the incoming payment.
func WithMetadata(m *openpayments.Metadata) IncomingPaymentOption {
	return func(r *openpayments.PaymentRequest) {
		r.Metadata = m
	}
}

// CreateIncomingPayment creates an incoming payment for amount on the
// receiver's resource server. The amount is scaled to the receiver's asset
// scale and the payment expires after the client's configured offset.
func (o *Orchestrator) CreateIncomingPayment(ctx context.Context, receiver *openpayments.PaymentPointer, grant *openpayments.AccessGrant, amount decimal.Decimal, opts ...IncomingPaymentOption) (*openpayments.IncomingPayment, error) {
	const step = "create incoming payment"
	if err := requireWallet(step, receiver); err != nil {
		return nil, err
	}
	token, err := requireToken(step, grant)
	if err != nil {
		return nil, err
	}

	req, err := openpayments.NewPaymentRequest(*receiver, amount, o.client.Options().IncomingPaymentExpiry, o.client.Now(), nil)
	if err != nil {
		return nil, openpayments.NewFlowStateError(step, err)
	}
	for _, opt := range opts {
		opt(&req)
	}
	o.logger.Debug(step, "receiver", receiver.ID, "amount", req.IncomingAmount.String())

	b := o.client.NewRequest().
		Method(http.MethodPost).
		Target(resourceURL(receiver.ResourceServer, "/incoming-payments")).
		JSONBody(req).
		BearerToken(token)
	return ophttp.Do[openpayments.IncomingPayment](ctx, o.client, b)
}

// RequestQuoteGrant asks the sender's auth server for a grant to create and read quotes.
func (o *Orchestrator) RequestQuoteGrant(ctx context.Context, sender *openpayments.PaymentPointer) (*openpayments.AccessGrant, error) {
	if err := requireWallet("request quote grant", sender); err != nil {
		return nil, err
	}
	o.logger.Debug("request quote grant", "sender", sender.ID)

	grant, err := o.requestGrant(ctx, sender.AuthServer, openpayments.NewQuoteGrantRequest(o.clientWallet))
	if err != nil {
		return nil, err
	}
	if grant.Token() == "" {
		return nil, openpayments.NewFlowStateError("request quote grant", openpayments.ErrMissingAccessToken)
	}
	return grant, nil
}

// CreateQuote quotes paying incoming from the sender's wallet over ILP.
func (o *Orchestrator) CreateQuote(ctx context.Context, grant *openpayments.AccessGrant, sender *openpayments.PaymentPointer, incoming *openpayments.IncomingPayment) (*openpayments.Quote, error) {
	const step = "create quote"
	if err := requireWallet(step, sender); err != nil {
		return nil, err
	}
	token, err := requireToken(step, grant)
	if err != nil {
		return nil, err
	}
	if incoming == nil || incoming.ID == "" {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("incoming payment is missing"))
	}
	o.logger.Debug(step, "sender", sender.ID, "incoming_payment", incoming.ID)

	b := o.client.NewRequest().
		Method(http.MethodPost).
		Target(resourceURL(sender.ResourceServer, "/quotes")).
		JSONBody(openpayments.QuoteRequest{
			WalletAddress: sender.ID,
			Receiver:      incoming.ID,
			Method:        methodILP,
		}).
		BearerToken(token)

	quote, err := ophttp.Do[openpayments.Quote](ctx, o.client, b)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateQuote(*quote); err != nil {
		return nil, openpayments.NewCodecError(step, nil, err)
	}
	return quote, nil
}

// RequestOutgoingGrant asks the sender's auth server for an interactive grant
// to pay quote. The user is sent back to returnURL with nonce once they have
// decided. The result carries the continuation and either a redirect or an
// immediately usable token.
func (o *Orchestrator) RequestOutgoingGrant(ctx context.Context, sender *openpayments.PaymentPointer, quote *openpayments.Quote, returnURL, nonce string) (*openpayments.OutgoingPayment, error) {
	const step = "request outgoing grant"
	if err := requireWallet(step, sender); err != nil {
		return nil, err
	}
	if err := o.checkQuote(step, quote); err != nil {
		return nil, err
	}
	if returnURL == "" || nonce == "" {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("return url and nonce are required"))
	}
	o.logger.Debug(step, "sender", sender.ID, "quote", quote.ID)

	req := openpayments.NewOutgoingPaymentGrantRequest(o.clientWallet, sender.ID, quote.DebitAmount, returnURL, nonce)
	b := o.client.NewRequest().
		Method(http.MethodPost).
		Target(sender.AuthServer).
		JSONBody(req)

	outgoing, err := ophttp.Do[openpayments.OutgoingPayment](ctx, o.client, b)
	if err != nil {
		return nil, err
	}
	if outgoing.Continue == nil || outgoing.Continue.URI == "" {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("grant has no continuation"))
	}
	if outgoing.Interact == nil && (outgoing.AccessToken == nil || outgoing.AccessToken.Value == "") {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("grant has neither interaction nor access token"))
	}
	return outgoing, nil
}

// ContinueGrant posts the interaction reference the user returned with to the
// continuation URI. A response without an access token means the user
// declined; that is reported as a flow state error wrapping ErrGrantDeclined.
func (o *Orchestrator) ContinueGrant(ctx context.Context, cont *openpayments.AccessContinue, interactRef string) (*openpayments.AccessGrant, error) {
	const step = "continue grant"
	if cont == nil || cont.URI == "" {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("continuation is missing"))
	}
	if cont.Token() == "" {
		return nil, openpayments.NewFlowStateError(step, openpayments.ErrMissingAccessToken)
	}
	if interactRef == "" {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("interaction reference is required"))
	}
	o.logger.Debug(step, "uri", cont.URI)

	b := o.client.NewRequest().
		Method(http.MethodPost).
		Target(cont.URI).
		JSONBody(openpayments.InteractRef{InteractRef: interactRef}).
		BearerToken(cont.Token())

	grant, err := ophttp.Do[openpayments.AccessGrant](ctx, o.client, b)
	if err != nil {
		return nil, err
	}
	if grant.Token() == "" {
		o.logger.Info("outgoing payment grant declined", "uri", cont.URI)
		return grant, openpayments.NewFlowStateError(step, openpayments.ErrGrantDeclined)
	}
	return grant, nil
}

// ExecuteOutgoingPayment creates the outgoing payment for quote with the
// finalized grant. A payment the wallet marks as failed is returned together
// with a flow state error wrapping ErrPaymentFailed.
func (o *Orchestrator) ExecuteOutgoingPayment(ctx context.Context, grant *openpayments.AccessGrant, sender *openpayments.PaymentPointer, quote *openpayments.Quote) (*openpayments.Payment, error) {
	const step = "execute outgoing payment"
	token, err := requireToken(step, grant)
	if err != nil {
		return nil, err
	}
	if err := requireWallet(step, sender); err != nil {
		return nil, err
	}
	if err := o.checkQuote(step, quote); err != nil {
		return nil, err
	}
	o.logger.Debug(step, "sender", sender.ID, "quote", quote.ID)

	b := o.client.NewRequest().
		Method(http.MethodPost).
		Target(resourceURL(sender.ResourceServer, "/outgoing-payments")).
		JSONBody(openpayments.OutgoingPaymentRequest{
			WalletAddress: sender.ID,
			QuoteID:       quote.ID,
		}).
		BearerToken(token)

	payment, err := ophttp.Do[openpayments.Payment](ctx, o.client, b)
	if err != nil {
		return nil, err
	}
	if payment.Failed {
		o.logger.Warn("outgoing payment failed", "payment", payment.ID, "quote", quote.ID)
		return payment, openpayments.NewFlowStateError(step, openpayments.ErrPaymentFailed)
	}
	return payment, nil
}

// GetIncomingPaymentStatus re-reads incoming with the incoming payment grant.
// It is idempotent and may be repeated freely.
func (o *Orchestrator) GetIncomingPaymentStatus(ctx context.Context, incoming *openpayments.IncomingPayment, grant *openpayments.AccessGrant) (*openpayments.IncomingPayment, error) {
	const step = "get incoming payment"
	if incoming == nil || incoming.ID == "" {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("incoming payment is missing"))
	}
	token, err := requireToken(step, grant)
	if err != nil {
		return nil, err
	}
	o.logger.Debug(step, "id", incoming.ID)

	b := o.client.NewRequest().
		Method(http.MethodGet).
		Target(incoming.ID).
		BearerToken(token)
	return ophttp.Do[openpayments.IncomingPayment](ctx, o.client, b)
}

func (o *Orchestrator) requestGrant(ctx context.Context, authServer string, req openpayments.GrantAccessRequest) (*openpayments.AccessGrant, error) {
	b := o.client.NewRequest().
		Method(http.MethodPost).
		Target(authServer).
		JSONBody(req)
	return ophttp.Do[openpayments.AccessGrant](ctx, o.client, b)
}

// checkQuote refuses a missing or expired quote.
func (o *Orchestrator) checkQuote(step string, quote *openpayments.Quote) error {
	if quote == nil || quote.ID == "" {
		return openpayments.NewFlowStateError(step, fmt.Errorf("quote is missing"))
	}
	if quote.Expired(o.client.Now()) {
		return openpayments.NewFlowStateError(step, fmt.Errorf("%w: quote %s expired at %s", openpayments.ErrExpired, quote.ID, quote.ExpiresAt.Format(openpayments.InstantFormat)))
	}
	return nil
}

func requireWallet(step string, w *openpayments.PaymentPointer) error {
	if w == nil || w.ID == "" {
		return openpayments.NewFlowStateError(step, fmt.Errorf("wallet is missing"))
	}
	return nil
}

func requireToken(step string, grant *openpayments.AccessGrant) (string, error) {
	token := grant.Token()
	if token == "" {
		return "", openpayments.NewFlowStateError(step, openpayments.ErrMissingAccessToken)
	}
	return token, nil
}

// resourceURL joins a server URL and a path with exactly one slash.
func resourceURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
