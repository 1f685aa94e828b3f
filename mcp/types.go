package mcp

import (
	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/flow"
)

// Tool names exposed by the payment server.
const (
	ToolResolveWallet = "resolve_wallet"
	ToolStartPayment  = "start_payment"
	ToolFinishPayment = "finish_payment"
	ToolPaymentStatus = "payment_status"
)

// Tool argument names.
const (
	ArgWalletAddress = "wallet_address"
	ArgSender        = "sender"
	ArgReceiver      = "receiver"
	ArgAmount        = "amount"
	ArgExternalID    = "external_id"
	ArgFlow          = "flow"
	ArgInteractRef   = "interact_ref"
	ArgHash          = "hash"
)

// FlowSummary is the structured result of the payment tools. RedirectURL is
// set while the user still has to authorize the payment.
type FlowSummary struct {
	Flow            string                        `json:"flow"`
	State           string                        `json:"state"`
	RedirectURL     string                        `json:"redirectUrl,omitempty"`
	Quote           *openpayments.Quote           `json:"quote,omitempty"`
	IncomingPayment *openpayments.IncomingPayment `json:"incomingPayment,omitempty"`
	Payment         *openpayments.Payment         `json:"payment,omitempty"`
}

// Summarize describes p for a tool result.
func Summarize(p *flow.Pending) FlowSummary {
	return FlowSummary{
		Flow:            p.ID,
		State:           p.State.String(),
		RedirectURL:     p.RedirectURL,
		Quote:           p.Quote,
		IncomingPayment: p.IncomingPayment,
		Payment:         p.Payment,
	}
}
