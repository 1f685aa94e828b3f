// Package helpers holds the interaction return logic shared by the chi and
// gin adapters, so both resume flows and report results the same way.
package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/flow"
)

// Finisher resumes a pending flow once the user is back from the
// interaction redirect. *flow.Orchestrator implements it.
type Finisher interface {
	Finish(ctx context.Context, p *flow.Pending, interactRef, hash string) (*flow.Pending, error)
}

// ReturnParams are the query parameters of an interaction return.
type ReturnParams struct {
	FlowID      string
	InteractRef string
	Hash        string
}

// ErrMissingParam is returned when a required return parameter is absent.
var ErrMissingParam = errors.New("missing query parameter")

// ParseReturn reads the return parameters from q. All three are required:
// the auth server always adds the hash, and without it the interaction
// reference cannot be checked.
func ParseReturn(q url.Values) (ReturnParams, error) {
	p := ReturnParams{
		FlowID:      q.Get(flow.FlowParam),
		InteractRef: q.Get(flow.InteractRefParam),
		Hash:        q.Get(flow.HashParam),
	}
	if p.FlowID == "" {
		return p, fmt.Errorf("%w: %s", ErrMissingParam, flow.FlowParam)
	}
	if p.InteractRef == "" {
		return p, fmt.Errorf("%w: %s", ErrMissingParam, flow.InteractRefParam)
	}
	if p.Hash == "" {
		return p, fmt.Errorf("%w: %s", ErrMissingParam, flow.HashParam)
	}
	return p, nil
}

// Resume loads the flow named by params, finishes it and saves the result.
// The updated flow is saved and returned even when Finish reports an error,
// as long as Finish produced one.
func Resume(ctx context.Context, f Finisher, store flow.Store, params ReturnParams) (*flow.Pending, error) {
	p, err := store.Load(ctx, params.FlowID)
	if err != nil {
		return nil, err
	}

	next, finishErr := f.Finish(ctx, p, params.InteractRef, params.Hash)
	if next != nil && next != p {
		if err := store.Save(ctx, next); err != nil {
			return next, fmt.Errorf("failed to save flow %s: %w", params.FlowID, err)
		}
	}
	return next, finishErr
}

// Result is the JSON body written for an interaction return.
type Result struct {
	Flow    string                `json:"flow,omitempty"`
	State   string                `json:"state,omitempty"`
	Payment *openpayments.Payment `json:"payment,omitempty"`
	Error   string                `json:"error,omitempty"`
	Kind    string                `json:"kind,omitempty"`
}

// NewResult describes p and err for the response body.
func NewResult(p *flow.Pending, err error) Result {
	var r Result
	if p != nil {
		r.Flow = p.ID
		r.State = p.State.String()
		r.Payment = p.Payment
	}
	if err != nil {
		r.Error = err.Error()
		if e, ok := openpayments.AsError(err); ok {
			r.Kind = string(e.Kind)
		}
	}
	return r
}

// StatusFor maps a Resume error to the HTTP status of the return response.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingParam):
		return http.StatusBadRequest
	case errors.Is(err, flow.ErrUnknownFlow):
		return http.StatusNotFound
	case errors.Is(err, openpayments.ErrInteractionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, openpayments.ErrGrantDeclined):
		return http.StatusForbidden
	case errors.Is(err, openpayments.ErrExpired):
		return http.StatusGone
	case errors.Is(err, openpayments.ErrPaymentFailed):
		return http.StatusUnprocessableEntity
	case openpayments.IsFlowState(err):
		return http.StatusConflict
	case openpayments.IsNetwork(err):
		return http.StatusGatewayTimeout
	case openpayments.IsRemote(err), openpayments.IsCodec(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
