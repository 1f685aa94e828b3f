// Package httpsig implements the RFC 9421 HTTP message signatures used by
// Open Payments: an Ed25519 signature over a canonical signature base that
// covers the method, target URI, body digest and authorization header.
package httpsig

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
	"slices"
	"strings"

	openpayments "github.com/ilpay/openpayments-go"
)

// Covered component names, lowercase as they appear in the signature base.
const (
	ComponentMethod        = "@method"
	ComponentTargetURI     = "@target-uri"
	ComponentContentDigest = "content-digest"
	ComponentContentLength = "content-length"
	ComponentContentType   = "content-type"
	ComponentAuthorization = "authorization"

	signatureParams = "@signature-params"
	signatureLabel  = "sig1"
)

// canonicalOrder fixes the position of every known component in the base.
var canonicalOrder = []string{
	ComponentMethod,
	ComponentTargetURI,
	ComponentContentDigest,
	ComponentContentLength,
	ComponentContentType,
	ComponentAuthorization,
}

// Component is one covered name/value pair.
type Component struct {
	Name  string
	Value string
}

// Methods the signer accepts.
var allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "HEAD"}

// CheckMethod reports whether m is a method requests may be signed with.
func CheckMethod(m string) error {
	if strings.TrimSpace(m) == "" {
		return fmt.Errorf("%w: method cannot be empty", openpayments.ErrUnsupportedMethod)
	}
	if !slices.Contains(allowedMethods, m) {
		return fmt.Errorf("%w: %q", openpayments.ErrUnsupportedMethod, m)
	}
	return nil
}

// NormalizeTarget appends "/" to a URI that has no query and no trailing slash.
// Wallet servers canonicalize targets the same way before verifying.
func NormalizeTarget(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target uri %q: %w", target, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("target uri %q must be absolute", target)
	}
	if u.RawQuery == "" && !u.ForceQuery && !strings.HasSuffix(target, "/") {
		return target + "/", nil
	}
	return target, nil
}

// ContentDigest returns the Content-Digest header value for body:
// "sha-512=:<base64 of SHA-512(body)>:".
func ContentDigest(body []byte) (string, error) {
	if len(body) == 0 {
		return "", openpayments.ErrEmptyBody
	}
	sum := sha512.Sum512(body)
	return "sha-512=:" + base64.StdEncoding.EncodeToString(sum[:]) + ":", nil
}

// Canonicalize orders components by their canonical position. Unknown
// components keep their relative order after the known ones.
func Canonicalize(components []Component) []Component {
	out := slices.Clone(components)
	slices.SortStableFunc(out, func(a, b Component) int {
		return rank(a.Name) - rank(b.Name)
	})
	return out
}

func rank(name string) int {
	if i := slices.Index(canonicalOrder, strings.ToLower(name)); i >= 0 {
		return i
	}
	return len(canonicalOrder)
}

// SignatureParams renders the @signature-params value:
// ("<name>" ...);keyid="<keyID>";created=<created>.
func SignatureParams(components []Component, keyID string, created int64) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, c := range components {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(`"` + strings.ToLower(c.Name) + `"`)
	}
	fmt.Fprintf(&sb, `);keyid="%s";created=%d`, keyID, created)
	return sb.String()
}

// SignatureBase builds the string that is signed. Each component becomes a
// line `"<name>": <value>`, lines are joined with "\n" and the last line holds
// the signature params. There is no trailing newline.
func SignatureBase(components []Component, keyID string, created int64) string {
	lines := make([]string, 0, len(components)+1)
	for _, c := range components {
		lines = append(lines, fmt.Sprintf(`"%s": %s`, strings.ToLower(c.Name), c.Value))
	}
	lines = append(lines, fmt.Sprintf(`"%s": %s`, signatureParams, SignatureParams(components, keyID, created)))
	return strings.Join(lines, "\n")
}
