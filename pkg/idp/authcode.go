package idp

import (
	"context"
	"fmt"
	"net/url"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	"go.uber.org/zap"

	"github.com/acme-isv/qindex-broker/pkg/broker"
	"github.com/acme-isv/qindex-broker/pkg/config"
	"github.com/acme-isv/qindex-broker/pkg/federr"
	"github.com/acme-isv/qindex-broker/pkg/fedtoken"
)

const stepTokenExchange = "token-exchange"

// AuthorizationCodeProvider redeems a one-time Identity Center
// authorization code for a federated identity token.
type AuthorizationCodeProvider struct {
	cfg         *config.FederationConfig
	factory     OIDCFactory
	callTimeout time.Duration
	logger      *zap.Logger
}

// AuthCodeOption configures an AuthorizationCodeProvider.
type AuthCodeOption func(*AuthorizationCodeProvider)

// WithAuthCodeLogger sets the provider's logger.
func WithAuthCodeLogger(logger *zap.Logger) AuthCodeOption {
	return func(p *AuthorizationCodeProvider) { p.logger = logger }
}

// WithAuthCodeTimeout bounds the token-redemption call.
func WithAuthCodeTimeout(timeout time.Duration) AuthCodeOption {
	return func(p *AuthorizationCodeProvider) { p.callTimeout = timeout }
}

// NewAuthorizationCodeProvider creates the code-flow provider.
func NewAuthorizationCodeProvider(cfg *config.FederationConfig, factory OIDCFactory, opts ...AuthCodeOption) *AuthorizationCodeProvider {
	p := &AuthorizationCodeProvider{
		cfg:         cfg,
		factory:     factory,
		callTimeout: defaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthorizationURL constructs the Identity Center authorization endpoint
// URL the user's browser navigates to. Pure function of configuration: no
// network call, byte-identical across invocations.
func (p *AuthorizationCodeProvider) AuthorizationURL() string {
	params := url.Values{
		"response_type": {"code"},
		"redirect_uri":  {p.cfg.RedirectURI()},
		"state":         {p.expectedState()},
		"client_id":     {p.cfg.IDCApplicationARN()},
	}
	return fmt.Sprintf("https://oidc.%s.amazonaws.com/authorize?%s",
		p.cfg.IDCRegion(), params.Encode())
}

// expectedState binds the Identity Center application and region into the
// state parameter.
func (p *AuthorizationCodeProvider) expectedState() string {
	return fmt.Sprintf("%s+%s&", p.cfg.IDCApplicationARN(), p.cfg.IDCRegion())
}

// VerifyState recomputes the expected state and compares it with the value
// returned on the redirect, so an injected redirect is rejected before any
// code redemption.
func (p *AuthorizationCodeProvider) VerifyState(state string) error {
	if state != p.expectedState() {
		return federr.Authentication("authorization-redirect", "state parameter does not match this configuration", nil)
	}
	return nil
}

// CodeFromRedirect extracts the one-time authorization code and the state
// from a pasted redirect URL.
func CodeFromRedirect(rawURL string) (code, state string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", federr.Authentication("authorization-redirect", "redirect URL is not parseable", err)
	}

	query := parsed.Query()
	code = query.Get("code")
	if code == "" {
		return "", "", federr.Authentication("authorization-redirect", "redirect URL carries no authorization code", nil)
	}
	return code, query.Get("state"), nil
}

// TokenSource returns a broker token source that redeems the given code.
// Codes are single-use; a redemption failure is never retried.
func (p *AuthorizationCodeProvider) TokenSource(code string) broker.TokenSource {
	return broker.TokenSourceFunc(func(ctx context.Context, base broker.Credentials) (*fedtoken.Federated, error) {
		if code == "" {
			return nil, federr.Authentication(stepTokenExchange, "authorization code is empty", nil)
		}

		client, err := p.factory.WithCredentials(ctx, base)
		if err != nil {
			return nil, federr.New(federr.ClassConfiguration, stepTokenExchange, "failed to build SSO OIDC client", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()

		out, err := client.CreateTokenWithIAM(callCtx, &ssooidc.CreateTokenWithIAMInput{
			ClientId:    awsv2.String(p.cfg.IDCApplicationARN()),
			GrantType:   awsv2.String(grantAuthorizationCode),
			Code:        awsv2.String(code),
			RedirectUri: awsv2.String(p.cfg.RedirectURI()),
		})
		if err != nil {
			return nil, federr.WrapAWS(federr.ClassAuthentication, stepTokenExchange, err)
		}

		idToken := awsv2.ToString(out.IdToken)
		if idToken == "" {
			return nil, federr.Authentication(stepTokenExchange, "token endpoint returned no identity token", nil)
		}
		p.logger.Debug("redeemed authorization code for identity token")

		return fedtoken.Decode(idToken)
	})
}
