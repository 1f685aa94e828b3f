package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/encoding"
	"github.com/shopspring/decimal"
)

// Order describes one payment to run through the flow.
type Order struct {
	// ID keys the flow in a Store. A fresh one is generated when empty.
	ID        string
	Sender    openpayments.WalletAddress
	Receiver  openpayments.WalletAddress
	Amount    decimal.Decimal
	ReturnURL string
	Metadata  *openpayments.Metadata
}

// Pending is everything needed to resume a flow after the user has visited
// the interaction redirect. It is a plain value: callers persist it however
// they like, for example with EncodePending.
type Pending struct {
	ID    string `json:"id"`
	State State  `json:"state"`

	Sender   *openpayments.PaymentPointer `json:"sender"`
	Receiver *openpayments.PaymentPointer `json:"receiver"`

	IncomingGrant   *openpayments.AccessGrant     `json:"incomingGrant"`
	IncomingGrantAt *openpayments.Instant         `json:"incomingGrantAt,omitempty"`
	IncomingPayment *openpayments.IncomingPayment `json:"incomingPayment"`
	Quote           *openpayments.Quote           `json:"quote"`

	Continue *openpayments.AccessContinue `json:"continue,omitempty"`
	// Nonce is the client nonce sent with the interaction request.
	Nonce string `json:"nonce"`
	// RedirectURL is where the user must go to authorize the payment.
	RedirectURL string `json:"redirectUrl,omitempty"`
	// FinishNonce is the auth server's nonce, used to verify the return hash.
	FinishNonce string `json:"finishNonce,omitempty"`

	// Grant is set once an outgoing payment grant is usable. GrantAt is when
	// it was issued, the start of its expires_in.
	Grant   *openpayments.AccessGrant `json:"grant,omitempty"`
	GrantAt *openpayments.Instant     `json:"grantAt,omitempty"`
	Payment *openpayments.Payment     `json:"payment,omitempty"`
}

func (p *Pending) clone() *Pending {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// NewNonce returns a fresh random value, used for client nonces and flow ids.
func NewNonce() string {
	return uuid.NewString()
}

// ReturnURL adds the flow id to base as the "flow" query parameter, so the
// interaction return endpoint can find the flow again.
func ReturnURL(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("%w: return url %q", openpayments.ErrInvalidConfig, base)
	}
	q := u.Query()
	q.Set(FlowParam, id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Query parameters of the interaction return URL. The auth server adds hash
// and interact_ref when it redirects the user back.
const (
	FlowParam        = "flow"
	HashParam        = "hash"
	InteractRefParam = "interact_ref"
)

// Start runs the flow up to the point where the user has to authorize the
// outgoing payment: wallets, incoming grant and payment, quote grant and
// quote, and the interactive outgoing grant. When the auth server issues a
// token without interaction the returned Pending is already GrantFinalized.
func (o *Orchestrator) Start(ctx context.Context, order Order) (*Pending, error) {
	if order.ReturnURL == "" {
		return nil, openpayments.NewFlowStateError("start", fmt.Errorf("return url is required"))
	}

	p := &Pending{ID: order.ID, State: StateStart}
	if p.ID == "" {
		p.ID = NewNonce()
	}

	sender, err := o.ResolveWallet(ctx, order.Sender)
	if err != nil {
		return nil, err
	}
	receiver, err := o.ResolveWallet(ctx, order.Receiver)
	if err != nil {
		return nil, err
	}
	p.Sender, p.Receiver, p.State = sender, receiver, StateWalletsResolved

	incomingGrant, err := o.RequestIncomingGrant(ctx, receiver)
	if err != nil {
		return nil, err
	}
	p.IncomingGrant = incomingGrant
	p.IncomingGrantAt = openpayments.NewInstant(o.client.Now())
	p.State = StateIncomingGrantObtained

	incoming, err := o.CreateIncomingPayment(ctx, receiver, incomingGrant, order.Amount, WithMetadata(order.Metadata))
	if err != nil {
		return nil, err
	}
	p.IncomingPayment, p.State = incoming, StateIncomingPaymentCreated

	quoteGrant, err := o.RequestQuoteGrant(ctx, sender)
	if err != nil {
		return nil, err
	}
	p.State = StateQuoteGrantObtained

	quote, err := o.CreateQuote(ctx, quoteGrant, sender, incoming)
	if err != nil {
		return nil, err
	}
	p.Quote, p.State = quote, StateQuoteObtained

	p.Nonce = NewNonce()
	outgoing, err := o.RequestOutgoingGrant(ctx, sender, quote, order.ReturnURL, p.Nonce)
	if err != nil {
		return nil, err
	}
	p.Continue = outgoing.Continue

	if outgoing.Interact == nil {
		p.Grant = &openpayments.AccessGrant{AccessToken: outgoing.AccessToken, Continue: outgoing.Continue}
		p.GrantAt = openpayments.NewInstant(o.client.Now())
		p.State = StateGrantFinalized
		return p, nil
	}

	p.RedirectURL = outgoing.Interact.Redirect
	p.FinishNonce = outgoing.Interact.Finish
	p.State = StateAwaitingInteraction

	o.logger.Info("payment awaiting interaction",
		"flow", p.ID,
		"sender", sender.ID,
		"receiver", receiver.ID,
		"quote", quote.ID,
	)
	return p, nil
}

// Finish resumes p with the interaction reference the user returned with and
// executes the outgoing payment. When hash is not empty it must match the
// interaction hash for p. The returned Pending reflects the state reached,
// also when an error stopped the flow in a terminal state. When the
// continuation fails without a terminal state p is returned unchanged, so
// Finish can be called again with the same reference.
func (o *Orchestrator) Finish(ctx context.Context, p *Pending, interactRef, hash string) (*Pending, error) {
	const step = "finish"
	if p == nil {
		return nil, openpayments.NewFlowStateError(step, fmt.Errorf("pending flow is missing"))
	}
	if p.Sender == nil || p.Quote == nil {
		return p, openpayments.NewFlowStateError(step, fmt.Errorf("pending flow has no sender or quote"))
	}
	next := p.clone()

	switch p.State {
	case StateAwaitingInteraction, StateInteractionReturned:
		if hash != "" {
			if err := openpayments.VerifyInteractionHash(hash, p.Nonce, p.FinishNonce, interactRef, p.Sender.AuthServer); err != nil {
				return p, openpayments.NewFlowStateError(step, err)
			}
		}
		next.State = StateInteractionReturned

		grant, err := o.ContinueGrant(ctx, p.Continue, interactRef)
		if err != nil {
			if _, ok := StateOf(err); !ok {
				return p, err
			}
			return terminal(next, err)
		}
		next.Grant, next.GrantAt = grant, openpayments.NewInstant(o.client.Now())
		next.State = StateGrantFinalized
	case StateGrantFinalized:
	default:
		return p, openpayments.NewFlowStateError(step, fmt.Errorf("cannot finish a flow in state %s", p.State))
	}

	if next.GrantAt != nil && next.Grant.Expired(next.GrantAt.Time, o.client.Now()) {
		return terminal(next, openpayments.NewFlowStateError(step, fmt.Errorf("%w: outgoing payment grant", openpayments.ErrExpired)))
	}

	payment, err := o.ExecuteOutgoingPayment(ctx, next.Grant, next.Sender, next.Quote)
	next.Payment = payment
	if err != nil {
		return terminal(next, err)
	}
	next.State = StatePaymentExecuted

	o.logger.Info("outgoing payment executed", "payment", payment.ID, "quote", next.Quote.ID)
	return next, nil
}

// Status reads the incoming payment of p once and moves p to Completed when
// the receiver has been paid.
func (o *Orchestrator) Status(ctx context.Context, p *Pending) (*Pending, error) {
	if err := o.checkIncomingGrant(p); err != nil {
		return terminal(p.clone(), err)
	}

	incoming, err := o.GetIncomingPaymentStatus(ctx, p.IncomingPayment, p.IncomingGrant)
	if err != nil {
		return p, err
	}

	next := p.clone()
	next.IncomingPayment = incoming
	if incoming.Completed {
		next.State = StateCompleted
	}
	return next, nil
}

func (o *Orchestrator) checkIncomingGrant(p *Pending) error {
	const step = "check incoming grant"
	if p == nil {
		return openpayments.NewFlowStateError(step, fmt.Errorf("pending flow is missing"))
	}
	if p.IncomingGrantAt != nil && p.IncomingGrant.Expired(p.IncomingGrantAt.Time, o.client.Now()) {
		return openpayments.NewFlowStateError(step, fmt.Errorf("%w: incoming payment grant", openpayments.ErrExpired))
	}
	return nil
}

// terminal records the terminal state implied by err, if any, and returns err.
func terminal(p *Pending, err error) (*Pending, error) {
	if state, ok := StateOf(err); ok && p != nil {
		p.State = state
	}
	return p, err
}

// EncodePending serializes p as a URL safe string.
func EncodePending(codec *encoding.Codec, p *Pending) (string, error) {
	if p == nil {
		return "", openpayments.NewCodecError("encode pending flow", nil, errors.New("nil pending flow"))
	}
	return codec.EncodeString(p)
}

// DecodePending reverses EncodePending.
func DecodePending(codec *encoding.Codec, s string) (*Pending, error) {
	var p Pending
	if err := codec.DecodeString(s, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
