package httpsig

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	openpayments "github.com/ilpay/openpayments-go"
	"github.com/tyler-smith/go-bip39"
	"gopkg.in/square/go-jose.v2"
)

// WithPEM parses a PKCS#8 Ed25519 private key. Both a full PEM block and the
// bare base64 body (as shown in wallet developer consoles) are accepted.
func WithPEM(data []byte) SignerOption {
	return func(s *Signer) error {
		der, err := pemBytes(data)
		if err != nil {
			return err
		}

		parsed, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return fmt.Errorf("%w: failed to parse private key: %v", openpayments.ErrInvalidKey, err)
		}

		key, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return fmt.Errorf("%w: unsupported private key type %T: must be Ed25519", openpayments.ErrInvalidKey, parsed)
		}
		s.key = key
		return nil
	}
}

// WithPEMFile reads the key file at path and parses it as WithPEM does.
func WithPEMFile(path string) SignerOption {
	return func(s *Signer) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: read key file: %v", openpayments.ErrInvalidKey, err)
		}
		return WithPEM(data)(s)
	}
}

func pemBytes(data []byte) ([]byte, error) {
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}
	raw := strings.Join(strings.Fields(string(data)), "")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty key", openpayments.ErrInvalidKey)
	}
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode PEM block: invalid PEM format", openpayments.ErrInvalidKey)
	}
	return der, nil
}

// WithJWK parses an OKP/Ed25519 private JSON Web Key. When the JWK carries a
// kid and the signer was created without one, the kid is used.
func WithJWK(data []byte) SignerOption {
	return func(s *Signer) error {
		var jwk jose.JSONWebKey
		if err := json.Unmarshal(data, &jwk); err != nil {
			return fmt.Errorf("%w: invalid jwk: %v", openpayments.ErrInvalidKey, err)
		}
		if !jwk.Valid() || jwk.IsPublic() {
			return fmt.Errorf("%w: jwk is not a private key", openpayments.ErrInvalidKey)
		}
		key, ok := jwk.Key.(ed25519.PrivateKey)
		if !ok {
			return fmt.Errorf("%w: unsupported jwk key type %T: must be Ed25519", openpayments.ErrInvalidKey, jwk.Key)
		}
		s.key = key
		if s.keyID == "" {
			s.keyID = jwk.KeyID
		}
		return nil
	}
}

// WithMnemonic derives the key from a BIP-39 mnemonic. The seed is expanded
// with SLIP-10 for ed25519 along the hardened path m/accountIndex'.
func WithMnemonic(mnemonic, passphrase string, accountIndex uint32) SignerOption {
	return func(s *Signer) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return openpayments.ErrInvalidMnemonic
		}

		seed := bip39.NewSeed(mnemonic, passphrase)
		key, chain := slip10Master(seed)
		key, _ = slip10Child(key, chain, accountIndex)

		s.key = ed25519.NewKeyFromSeed(key)
		return nil
	}
}

const hardenedOffset = 0x80000000

func slip10Master(seed []byte) (key, chain []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func slip10Child(key, chain []byte, index uint32) (childKey, childChain []byte) {
	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, key...)
	data = binary.BigEndian.AppendUint32(data, index|hardenedOffset)

	mac := hmac.New(sha512.New, chain)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

// PublicJWK returns the signer's public key as the JWK a wallet provider
// registers for the client (kty OKP, crv Ed25519, alg EdDSA).
func (s *Signer) PublicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       s.PublicKey(),
		KeyID:     s.keyID,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
}

// JWKS renders the public key as a JSON Web Key Set document.
func (s *Signer) JWKS() ([]byte, error) {
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{s.PublicJWK()}}
	b, err := json.Marshal(set)
	if err != nil {
		return nil, openpayments.NewCodecError("encode jwks", nil, err)
	}
	return b, nil
}
