package openpayments

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// InteractionHash computes the GNAP interaction finish hash the auth server
// appends to the return URL:
// base64(SHA-256(clientNonce "\n" finishNonce "\n" interactRef "\n" authServer)).
func InteractionHash(clientNonce, finishNonce, interactRef, authServer string) string {
	if !strings.HasSuffix(authServer, "/") {
		authServer += "/"
	}
	sum := sha256.Sum256([]byte(clientNonce + "\n" + finishNonce + "\n" + interactRef + "\n" + authServer))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyInteractionHash reports whether hash matches the expected interaction hash.
func VerifyInteractionHash(hash, clientNonce, finishNonce, interactRef, authServer string) error {
	want := InteractionHash(clientNonce, finishNonce, interactRef, authServer)
	if subtle.ConstantTimeCompare([]byte(want), []byte(hash)) != 1 {
		return ErrInteractionMismatch
	}
	return nil
}
