// Package encoding provides the JSON codec for Open Payments resources.
// Request bodies are encoded byte-for-byte deterministically because they are
// digested and signed; responses are decoded tolerantly.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	openpayments "github.com/ilpay/openpayments-go"
)

// Codec encodes and decodes resources. The zero value is not usable; create
// one with NewCodec and pass it to the components that need it.
type Codec struct {
	escapeHTML bool
}

// NewCodec returns a codec that leaves HTML characters unescaped so URLs in
// bodies (return URLs, receivers) are sent verbatim.
func NewCodec() *Codec {
	return &Codec{escapeHTML: false}
}

// Encode marshals v to compact JSON without a trailing newline.
//
// Set-valued fields marshal sorted (see openpayments.ActionSet), and
// timestamps use openpayments.InstantFormat.
func (c *Codec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(c.escapeHTML)
	if err := enc.Encode(v); err != nil {
		return nil, openpayments.NewCodecError(fmt.Sprintf("failed to marshal %T", v), nil, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode unmarshals data into v. Unknown fields are ignored; unknown enum
// values are rejected by the enum types themselves.
func (c *Codec) Decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return openpayments.NewCodecError(fmt.Sprintf("failed to unmarshal %T", v), data, fmt.Errorf("empty body"))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return openpayments.NewCodecError(fmt.Sprintf("failed to unmarshal %T", v), data, err)
	}
	return nil
}

// Decode is a typed helper around Codec.Decode.
func Decode[T any](c *Codec, data []byte) (T, error) {
	var v T
	if err := c.Decode(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

// EncodeString encodes v as base64url JSON, suitable for query parameters,
// cookies and tool arguments.
func (c *Codec) EncodeString(v any) (string, error) {
	b, err := c.Encode(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeString reverses EncodeString.
func (c *Codec) DecodeString(encoded string, v any) error {
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return openpayments.NewCodecError("failed to decode base64", []byte(encoded), err)
	}
	return c.Decode(decoded, v)
}
