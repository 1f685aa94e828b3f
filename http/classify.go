package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	openpayments "github.com/ilpay/openpayments-go"
)

// knownPhrases are plain-text bodies some wallet servers send instead of the
// JSON error envelope. They are matched against the whole trimmed body,
// ignoring case.
var knownPhrases = []string{
	"unauthorized",
	"forbidden",
	"could not get wallet address",
}

// Classify turns a non-2xx response into a remote *openpayments.Error. The body
// is first read as {"error":{"code":..,"description":..}}; failing that, a
// known plain-text phrase becomes the description. The error always carries
// the status, headers and raw body.
func Classify(resp *Response) *openpayments.Error {
	var code, description string
	if apiErr, ok := parseAPIError(resp.Body); ok {
		code, description = apiErr.Code, apiErr.Description
	} else if phrase, ok := matchPhrase(resp.Body); ok {
		description = phrase
	}

	e := openpayments.NewRemoteError(resp.StatusCode, code, description)
	e.Header = resp.Header.Clone()
	e.Body = slices.Clone(resp.Body)
	return e
}

func parseAPIError(body []byte) (*openpayments.ApiError, bool) {
	var envelope openpayments.ApiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return nil, false
	}
	return envelope.Error, true
}

func matchPhrase(body []byte) (string, bool) {
	text := strings.ToLower(string(bytes.TrimSpace(body)))
	if slices.Contains(knownPhrases, text) {
		return text, true
	}
	return "", false
}

// logRemoteError logs a classified error: client errors at warn, server
// errors at error and anything else at warn.
func logRemoteError(logger *slog.Logger, e *openpayments.Error) {
	attrs := []any{
		"status", e.StatusCode,
		"method", e.Method,
		"url", e.URL,
		"code", e.Code,
		"description", e.Description,
	}
	switch {
	case e.StatusCode >= 400 && e.StatusCode < 500:
		logger.Warn("client error", attrs...)
	case e.StatusCode >= 500 && e.StatusCode < 600:
		logger.Error("server error", attrs...)
	default:
		logger.Warn("unexpected http status", attrs...)
	}
}
