// Package fedtoken decodes the compact identity token issued by the
// federation broker and exposes typed claim lookup.
//
// The token is a three-segment dot-delimited structure (header, payload,
// signature). Only the payload is decoded; the signature is NOT verified.
// Trust in the claims rests on the TLS channel to the issuing endpoint,
// which hands the token back in a direct API response rather than through
// an untrusted intermediary. Callers must not feed tokens from any other
// source into this package.
package fedtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/acme-isv/qindex-broker/pkg/federr"
)

// IdentityContextClaim carries the assertion that scopes an assumed-role
// session to the authenticated end user.
const IdentityContextClaim = "sts:identity_context"

const stepDecode = "token-decode"

// Claims is the decoded payload of a federated identity token.
type Claims struct {
	values map[string]any
}

// Get returns the named claim.
func (c Claims) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// String returns the named claim as a string. ok is false when the claim
// is absent or not a string.
func (c Claims) String(name string) (string, bool) {
	v, ok := c.values[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Federated is a decoded federated identity token. It is single-use:
// produced by an identity-provider exchange and consumed immediately by
// the credential broker.
type Federated struct {
	// Raw is the compact token as issued.
	Raw string

	claims Claims
}

// Claims returns the decoded payload claims.
func (f *Federated) Claims() Claims {
	return f.claims
}

// IdentityContext returns the identity-context assertion. Its absence is
// an integrity failure of the token, not a retryable condition.
func (f *Federated) IdentityContext() (string, error) {
	ctx, ok := f.claims.String(IdentityContextClaim)
	if !ok || ctx == "" {
		return "", federr.AssertionDecode(stepDecode, "token payload is missing the "+IdentityContextClaim+" claim", nil)
	}
	return ctx, nil
}

// Decode parses the payload segment of a compact token. The payload is
// base64url without padding, so it is re-padded to a multiple of four
// characters before decoding.
func Decode(raw string) (*Federated, error) {
	if raw == "" {
		return nil, federr.AssertionDecode(stepDecode, "empty token", nil)
	}

	segments := strings.Split(raw, ".")
	if len(segments) < 2 {
		return nil, federr.AssertionDecode(stepDecode, "compact token has no payload segment", nil)
	}

	payload := segments[1]
	if pad := (4 - len(payload)%4) % 4; pad > 0 {
		payload += strings.Repeat("=", pad)
	}

	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, federr.AssertionDecode(stepDecode, "payload segment is not valid base64url", err)
	}

	var values map[string]any
	if err := json.Unmarshal(decoded, &values); err != nil {
		return nil, federr.AssertionDecode(stepDecode, "payload segment is not a JSON object", err)
	}

	return &Federated{Raw: raw, claims: Claims{values: values}}, nil
}
