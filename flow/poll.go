package flow

import (
	"context"
	"errors"

	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/retry"
)

// PollIncomingPayment reads incoming until it is completed or cfg's budget is
// spent. Failed reads are not repeated. When the budget runs out the last
// observed payment is returned with an error wrapping ErrNotCompleted.
func (o *Orchestrator) PollIncomingPayment(ctx context.Context, incoming *openpayments.IncomingPayment, grant *openpayments.AccessGrant, cfg retry.Config) (*openpayments.IncomingPayment, error) {
	last, err := retry.Do(ctx, cfg,
		func(err error) bool { return errors.Is(err, openpayments.ErrNotCompleted) },
		func(ctx context.Context, attempt int) (*openpayments.IncomingPayment, error) {
			current, err := o.GetIncomingPaymentStatus(ctx, incoming, grant)
			if err != nil {
				return nil, err
			}
			if !current.Completed {
				o.logger.Debug("incoming payment not completed", "id", current.ID, "attempt", attempt+1)
				return current, openpayments.ErrNotCompleted
			}
			return current, nil
		},
	)
	if err != nil {
		if errors.Is(err, openpayments.ErrNotCompleted) {
			return last, openpayments.NewFlowStateError("poll incoming payment", err)
		}
		return last, err
	}
	return last, nil
}

// Poll polls the incoming payment of p and moves p to Completed once paid.
func (o *Orchestrator) Poll(ctx context.Context, p *Pending, cfg retry.Config) (*Pending, error) {
	if err := o.checkIncomingGrant(p); err != nil {
		return terminal(p.clone(), err)
	}

	incoming, err := o.PollIncomingPayment(ctx, p.IncomingPayment, p.IncomingGrant, cfg)
	next := p.clone()
	if incoming != nil {
		next.IncomingPayment = incoming
	}
	if err != nil {
		return next, err
	}
	next.State = StateCompleted
	return next, nil
}
