package flow

import (
	"errors"
	"fmt"

	openpayments "github.com/ilpay/openpayments-go"
)

// State is a position in the payment flow.
type State uint8

const (
	StateStart State = iota
	StateWalletsResolved
	StateIncomingGrantObtained
	StateIncomingPaymentCreated
	StateQuoteGrantObtained
	StateQuoteObtained
	StateAwaitingInteraction
	StateInteractionReturned
	StateGrantFinalized
	StatePaymentExecuted

	// Terminal states.
	StateCompleted
	StateDeclined
	StateFailed
	StateExpired
)

var stateNames = map[State]string{
	StateStart:                  "start",
	StateWalletsResolved:        "wallets-resolved",
	StateIncomingGrantObtained:  "incoming-grant-obtained",
	StateIncomingPaymentCreated: "incoming-payment-created",
	StateQuoteGrantObtained:     "quote-grant-obtained",
	StateQuoteObtained:          "quote-obtained",
	StateAwaitingInteraction:    "awaiting-interaction",
	StateInteractionReturned:    "interaction-returned",
	StateGrantFinalized:         "grant-finalized",
	StatePaymentExecuted:        "payment-executed",
	StateCompleted:              "completed",
	StateDeclined:               "declined",
	StateFailed:                 "failed",
	StateExpired:                "expired",
}

var statesByName = func() map[string]State {
	m := make(map[string]State, len(stateNames))
	for s, name := range stateNames {
		m[name] = s
	}
	return m
}()

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further step can follow s.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: flow state %d", openpayments.ErrUnknownEnumValue, uint8(s))
	}
	return []byte(name), nil
}

// UnmarshalText rejects names outside the state table.
func (s *State) UnmarshalText(b []byte) error {
	state, ok := statesByName[string(b)]
	if !ok {
		return fmt.Errorf("%w: flow state %q", openpayments.ErrUnknownEnumValue, b)
	}
	*s = state
	return nil
}

// StateOf maps a step error to the terminal state it implies. ok is false for
// errors that leave the flow where it was.
func StateOf(err error) (state State, ok bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, openpayments.ErrGrantDeclined):
		return StateDeclined, true
	case errors.Is(err, openpayments.ErrPaymentFailed):
		return StateFailed, true
	case errors.Is(err, openpayments.ErrExpired):
		return StateExpired, true
	}
	return 0, false
}
