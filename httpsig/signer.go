package httpsig

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	openpayments "github.com/ilpay/openpayments-go"
)

// Signer holds the client's Ed25519 key and the key id registered with its
// wallet. A Signer is read-only after construction and safe to share between
// concurrent flows.
type Signer struct {
	keyID string
	key   ed25519.PrivateKey
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a signer for keyID. Exactly one key option must be given.
//
// Example:
//
//	signer, err := httpsig.NewSigner("761fbd9c-16a6-4e19-a4cf-0f4076d78469",
//	    httpsig.WithPEM(pemBytes),
//	)
func NewSigner(keyID string, opts ...SignerOption) (*Signer, error) {
	s := &Signer{keyID: keyID}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, openpayments.NewSigningError("configure signer", err)
		}
	}

	if s.keyID == "" {
		return nil, openpayments.NewSigningError("configure signer", fmt.Errorf("%w: key id cannot be empty", openpayments.ErrInvalidKey))
	}
	if len(s.key) != ed25519.PrivateKeySize {
		return nil, openpayments.NewSigningError("configure signer", openpayments.ErrInvalidKey)
	}

	return s, nil
}

// WithEd25519Key sets the private key directly.
func WithEd25519Key(key ed25519.PrivateKey) SignerOption {
	return func(s *Signer) error {
		if len(key) != ed25519.PrivateKeySize {
			return fmt.Errorf("%w: expected %d byte ed25519 key, got %d", openpayments.ErrInvalidKey, ed25519.PrivateKeySize, len(key))
		}
		s.key = key
		return nil
	}
}

// WithSeed sets the private key from a 32 byte Ed25519 seed.
func WithSeed(seed []byte) SignerOption {
	return func(s *Signer) error {
		if len(seed) != ed25519.SeedSize {
			return fmt.Errorf("%w: expected %d byte seed, got %d", openpayments.ErrInvalidKey, ed25519.SeedSize, len(seed))
		}
		s.key = ed25519.NewKeyFromSeed(seed)
		return nil
	}
}

// KeyID returns the key id sent in Signature-Input.
func (s *Signer) KeyID() string {
	return s.keyID
}

// PublicKey returns the public half of the signing key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Signature is the outcome of signing one request.
type Signature struct {
	// Base is the exact string that was signed.
	Base string
	// Params is the @signature-params value.
	Params string
	// Value is the raw Ed25519 signature.
	Value []byte
}

// InputHeader returns the Signature-Input header value.
func (sig Signature) InputHeader() string {
	return signatureLabel + "=" + sig.Params
}

// Header returns the Signature header value.
func (sig Signature) Header() string {
	return signatureLabel + "=:" + base64.StdEncoding.EncodeToString(sig.Value) + ":"
}

// Encoded returns the base64 signature without the label.
func (sig Signature) Encoded() string {
	return base64.StdEncoding.EncodeToString(sig.Value)
}

// Sign builds the signature base for method, target and the header components
// and signs it. Components are placed in canonical order; the target is
// normalized first. Signing the same input twice yields identical bytes.
func (s *Signer) Sign(method, target string, headers []Component, created int64) (Signature, error) {
	if s == nil || len(s.key) != ed25519.PrivateKeySize {
		return Signature{}, openpayments.NewSigningError("sign request", openpayments.ErrInvalidKey)
	}
	if err := CheckMethod(method); err != nil {
		return Signature{}, openpayments.NewSigningError("sign request", err)
	}
	normalized, err := NormalizeTarget(target)
	if err != nil {
		return Signature{}, openpayments.NewSigningError("sign request", err)
	}

	components := make([]Component, 0, len(headers)+2)
	components = append(components,
		Component{Name: ComponentMethod, Value: method},
		Component{Name: ComponentTargetURI, Value: normalized},
	)
	components = append(components, headers...)
	components = Canonicalize(components)

	base := SignatureBase(components, s.keyID, created)
	return Signature{
		Base:   base,
		Params: SignatureParams(components, s.keyID, created),
		Value:  ed25519.Sign(s.key, []byte(base)),
	}, nil
}

// Verify checks sig against the signer's public key.
func (s *Signer) Verify(sig Signature) bool {
	return ed25519.Verify(s.PublicKey(), []byte(sig.Base), sig.Value)
}
