// Package broker implements the two-step assume-role chain that turns a
// federated identity token into credentials scoped to the authenticated
// end user.
//
// Step 1 assumes the ISV federation role with no user scoping; its
// credentials exist only to call the federation broker's token endpoint.
// Step 2 re-assumes the same role with the identity-context assertion from
// the decoded token, which narrows the session's effective permissions to
// the end user's entitlements. No partial result is ever exposed: step 2
// does not run unless step 1 and the token redemption both succeeded.
package broker

import (
	"context"
	"regexp"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"go.uber.org/zap"

	"github.com/acme-isv/qindex-broker/pkg/federr"
)

const (
	// identityCenterContextProviderARN is the fixed provider understood by
	// STS for Identity Center context assertions.
	identityCenterContextProviderARN = "arn:aws:iam::aws:contextProvider/IdentityCenter"

	// tenantTagKey carries the ISV tenant/external identifier on both
	// assume-role sessions.
	tenantTagKey = "qbusiness-dataaccessor:ExternalId"

	// roleSessionName is fixed for both steps of the chain.
	roleSessionName = "automated-session"

	stepAssumeBase   = "assume-role-base"
	stepAssumeScoped = "assume-role-scoped"

	defaultCallTimeout = 30 * time.Second
)

// AWS RoleSessionName constraints: 2-64 characters from this set.
var sessionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_+=,.@-]{2,64}$`)

var roleARNPattern = regexp.MustCompile(`^arn:aws:iam::\d{12}:role/.+$`)

// Broker performs the two-step credential chaining for one federation role.
type Broker struct {
	factory     ClientFactory
	roleARN     string
	sessionName string
	tenantID    string
	callTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithTenantID tags both assume-role sessions with the given external
// identifier. Required for the TTI flow; optional otherwise.
func WithTenantID(tenantID string) Option {
	return func(b *Broker) { b.tenantID = tenantID }
}

// WithLogger sets the broker's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// WithCallTimeout bounds each outbound STS call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(b *Broker) { b.callTimeout = timeout }
}

// New creates a Broker for the given federation role. The factory decides
// which credentials back each STS client.
func New(factory ClientFactory, roleARN string, opts ...Option) *Broker {
	b := &Broker{
		factory:     factory,
		roleARN:     roleARN,
		sessionName: roleSessionName,
		callTimeout: defaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Exchange runs the full chain: unscoped assume-role, token redemption via
// the source, identity-context extraction, then the context-scoped
// re-assume on the same role. Assume-role failures are never retried here;
// a stale assertion cannot succeed.
func (b *Broker) Exchange(ctx context.Context, source TokenSource) (ScopedCredentials, error) {
	if err := b.validate(); err != nil {
		return ScopedCredentials{}, err
	}

	base, err := b.assumeBase(ctx)
	if err != nil {
		return ScopedCredentials{}, err
	}
	b.logger.Debug("assumed federation role", zap.String("role_arn", b.roleARN))

	token, err := source.FederatedToken(ctx, base)
	if err != nil {
		return ScopedCredentials{}, err
	}

	identityContext, err := token.IdentityContext()
	if err != nil {
		return ScopedCredentials{}, err
	}
	b.logger.Debug("extracted identity context from federated token")

	scoped, err := b.assumeScoped(ctx, base, identityContext)
	if err != nil {
		return ScopedCredentials{}, err
	}
	b.logger.Debug("issued scoped credentials",
		zap.Time("expiration", scoped.Expiration))

	return scoped, nil
}

func (b *Broker) validate() error {
	if !roleARNPattern.MatchString(b.roleARN) {
		return federr.Configuration(stepAssumeBase, "federation role ARN is not a valid IAM role ARN")
	}
	if !sessionNamePattern.MatchString(b.sessionName) {
		return federr.Configuration(stepAssumeBase, "role session name violates AWS constraints")
	}
	return nil
}

func (b *Broker) assumeBase(ctx context.Context) (Credentials, error) {
	client, err := b.factory.Default(ctx)
	if err != nil {
		return Credentials{}, federr.New(federr.ClassConfiguration, stepAssumeBase, "failed to build STS client", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	out, err := client.AssumeRole(callCtx, &sts.AssumeRoleInput{
		RoleArn:         awsv2.String(b.roleARN),
		RoleSessionName: awsv2.String(b.sessionName),
		Tags:            b.sessionTags(),
	})
	if err != nil {
		return Credentials{}, federr.WrapAWS(federr.ClassAuthorization, stepAssumeBase, err)
	}
	if out.Credentials == nil {
		return Credentials{}, federr.Authorization(stepAssumeBase, "STS returned no credentials", nil)
	}

	return credentialsFrom(out), nil
}

func (b *Broker) assumeScoped(ctx context.Context, base Credentials, identityContext string) (ScopedCredentials, error) {
	client, err := b.factory.WithCredentials(ctx, base)
	if err != nil {
		return ScopedCredentials{}, federr.New(federr.ClassConfiguration, stepAssumeScoped, "failed to build STS client", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	out, err := client.AssumeRole(callCtx, &sts.AssumeRoleInput{
		RoleArn:         awsv2.String(b.roleARN),
		RoleSessionName: awsv2.String(b.sessionName),
		Tags:            b.sessionTags(),
		ProvidedContexts: []ststypes.ProvidedContext{{
			ProviderArn:      awsv2.String(identityCenterContextProviderARN),
			ContextAssertion: awsv2.String(identityContext),
		}},
	})
	if err != nil {
		return ScopedCredentials{}, federr.WrapAWS(federr.ClassAuthorization, stepAssumeScoped, err)
	}
	if out.Credentials == nil {
		return ScopedCredentials{}, federr.Authorization(stepAssumeScoped, "STS returned no credentials", nil)
	}

	creds := credentialsFrom(out)
	return ScopedCredentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Expiration:      creds.Expiration,
	}, nil
}

func (b *Broker) sessionTags() []ststypes.Tag {
	if b.tenantID == "" {
		return nil
	}
	return []ststypes.Tag{{
		Key:   awsv2.String(tenantTagKey),
		Value: awsv2.String(b.tenantID),
	}}
}
