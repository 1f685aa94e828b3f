package openpayments

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard Open Payments client error definitions

var (
	// ErrInvalidAmount indicates an amount that cannot be expressed as an InterledgerAmount.
	ErrInvalidAmount = errors.New("openpayments: invalid amount")

	// ErrInvalidAssetCode indicates an asset code that is not a 3 letter ISO 4217 code.
	ErrInvalidAssetCode = errors.New("openpayments: invalid asset code")

	// ErrInvalidAssetScale indicates an asset scale outside 0..255.
	ErrInvalidAssetScale = errors.New("openpayments: invalid asset scale")

	// ErrInvalidWalletAddress indicates a wallet address that is not an absolute URL.
	ErrInvalidWalletAddress = errors.New("openpayments: invalid wallet address")

	// ErrInvalidConfig indicates client options that fail validation.
	ErrInvalidConfig = errors.New("openpayments: invalid configuration")

	// ErrUnknownEnumValue indicates a wire value outside a closed enumeration.
	ErrUnknownEnumValue = errors.New("openpayments: unknown enum value")

	// ErrInvalidKey indicates key material that is not an Ed25519 private key.
	ErrInvalidKey = errors.New("openpayments: invalid private key")

	// ErrInvalidMnemonic indicates a mnemonic that fails BIP-39 validation.
	ErrInvalidMnemonic = errors.New("openpayments: invalid mnemonic phrase")

	// ErrUnsupportedMethod indicates an HTTP method the signer does not sign.
	ErrUnsupportedMethod = errors.New("openpayments: unsupported http method")

	// ErrEmptyBody indicates a request body that is empty where content was expected.
	ErrEmptyBody = errors.New("openpayments: empty request body")

	// ErrBuilderState indicates a request builder used out of order.
	ErrBuilderState = errors.New("openpayments: request builder used out of order")

	// ErrMissingAccessToken indicates a grant that carries no access token.
	ErrMissingAccessToken = errors.New("openpayments: grant has no access token")

	// ErrGrantDeclined indicates the resource owner declined the interactive grant.
	ErrGrantDeclined = errors.New("openpayments: grant declined")

	// ErrPaymentFailed indicates the outgoing payment was marked failed by the wallet.
	ErrPaymentFailed = errors.New("openpayments: outgoing payment failed")

	// ErrExpired indicates a quote or grant used after its expiry.
	ErrExpired = errors.New("openpayments: expired")

	// ErrNotCompleted indicates an incoming payment still incomplete when polling stopped.
	ErrNotCompleted = errors.New("openpayments: incoming payment not completed")

	// ErrInteractionMismatch indicates an interaction hash that does not verify.
	ErrInteractionMismatch = errors.New("openpayments: interaction hash mismatch")
)

// ErrorKind classifies every error surfaced by the client.
type ErrorKind string

const (
	// KindNetwork is a transport failure or timeout. It is never retried internally.
	KindNetwork ErrorKind = "network"
	// KindSigning is bad key material or a failed signature. It is a configuration error.
	KindSigning ErrorKind = "signing"
	// KindCodec is malformed JSON or a schema mismatch.
	KindCodec ErrorKind = "codec"
	// KindRemote is a non-2xx response from a wallet server.
	KindRemote ErrorKind = "remote"
	// KindFlowState is a flow step reached without the values it needs.
	KindFlowState ErrorKind = "flow_state"
)

// Error is the structured error returned by every component of the client.
//
// Remote errors carry the HTTP exchange that failed. For any other kind the
// response fields are zero.
//
// Example usage:
//
//	var opErr *openpayments.Error
//	if errors.As(err, &opErr) && opErr.Kind == openpayments.KindRemote {
//	    log.Printf("wallet rejected request: %d %s", opErr.StatusCode, opErr.Description)
//	}
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error

	// StatusCode is the HTTP status of a remote error.
	StatusCode int
	// Method and URL identify the failed request.
	Method string
	URL    string
	// Header and Body are the raw response, kept for diagnosis.
	Header http.Header
	Body   []byte
	// Code and Description come from the ApiError envelope, when present.
	Code        string
	Description string

	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// WithDetails adds a detail entry and returns the error for chaining.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(message string, err error) *Error {
	return newError(KindNetwork, message, err)
}

// NewSigningError wraps a key or signature failure.
func NewSigningError(message string, err error) *Error {
	return newError(KindSigning, message, err)
}

// NewCodecError wraps an encode or decode failure. The raw content is kept in Body.
func NewCodecError(message string, body []byte, err error) *Error {
	e := newError(KindCodec, message, err)
	e.Body = body
	return e
}

// NewFlowStateError reports a flow step that cannot proceed.
func NewFlowStateError(message string, err error) *Error {
	return newError(KindFlowState, message, err)
}

// NewRemoteError builds the error for a non-2xx response. The message is
// formatted as "[<status>](<code>) <description>" with "no code" and
// "no description" standing in for missing parts.
func NewRemoteError(status int, code, description string) *Error {
	c, d := code, description
	if c == "" {
		c = "no code"
	}
	if d == "" {
		d = "no description"
	}
	return &Error{
		Kind:        KindRemote,
		Message:     fmt.Sprintf("[%d](%s) %s", status, c, d),
		StatusCode:  status,
		Code:        code,
		Description: description,
	}
}

// Kind sentinels for errors.Is.
var (
	errNetwork   = &Error{Kind: KindNetwork}
	errSigning   = &Error{Kind: KindSigning}
	errCodec     = &Error{Kind: KindCodec}
	errRemote    = &Error{Kind: KindRemote}
	errFlowState = &Error{Kind: KindFlowState}
)

// IsNetwork reports whether err is a network error.
func IsNetwork(err error) bool { return errors.Is(err, errNetwork) }

// IsSigning reports whether err is a signing error.
func IsSigning(err error) bool { return errors.Is(err, errSigning) }

// IsCodec reports whether err is a codec error.
func IsCodec(err error) bool { return errors.Is(err, errCodec) }

// IsRemote reports whether err is a remote error.
func IsRemote(err error) bool { return errors.Is(err, errRemote) }

// IsFlowState reports whether err is a flow state error.
func IsFlowState(err error) bool { return errors.Is(err, errFlowState) }

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
