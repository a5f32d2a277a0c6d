package broker

import (
	"context"
	"time"

	"github.com/acme-isv/qindex-broker/pkg/fedtoken"
)

// Credentials is a temporary STS credential set. The base (step-1) set is
// only ever used to call the federation broker, never handed to
// collaborators.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// ScopedCredentials is the final credential set, narrowed to the
// authenticated end user by the context-scoped assume-role call. Secret
// material must never be logged.
type ScopedCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Expired reports whether the credentials are unusable at the given time.
// Callers detecting expiry must re-run the flow; scoped credentials are
// never refreshed in place.
func (c ScopedCredentials) Expired(now time.Time) bool {
	return !c.Expiration.IsZero() && now.After(c.Expiration)
}

// TokenSource redeems a provider-specific input (authorization code or
// directory bearer token) into a federated identity token, using the base
// credentials produced by the unscoped assume-role step.
type TokenSource interface {
	FederatedToken(ctx context.Context, base Credentials) (*fedtoken.Federated, error)
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func(ctx context.Context, base Credentials) (*fedtoken.Federated, error)

// FederatedToken calls f.
func (f TokenSourceFunc) FederatedToken(ctx context.Context, base Credentials) (*fedtoken.Federated, error) {
	return f(ctx, base)
}
