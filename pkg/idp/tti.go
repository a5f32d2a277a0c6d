package idp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	cognitotypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	"go.uber.org/zap"

	"github.com/acme-isv/qindex-broker/pkg/broker"
	"github.com/acme-isv/qindex-broker/pkg/config"
	"github.com/acme-isv/qindex-broker/pkg/federr"
	"github.com/acme-isv/qindex-broker/pkg/fedtoken"
)

const stepDirectoryAuth = "directory-auth"

// TrustedIssuerProvider authenticates a user against the ISV's Cognito
// user pool and exchanges the resulting bearer token for a federated
// identity token via the JWT-bearer grant.
type TrustedIssuerProvider struct {
	cfg         *config.FederationConfig
	cognito     CognitoFactory
	oidc        OIDCFactory
	callTimeout time.Duration
	logger      *zap.Logger
}

// TTIOption configures a TrustedIssuerProvider.
type TTIOption func(*TrustedIssuerProvider)

// WithTTILogger sets the provider's logger.
func WithTTILogger(logger *zap.Logger) TTIOption {
	return func(p *TrustedIssuerProvider) { p.logger = logger }
}

// WithTTITimeout bounds each outbound call.
func WithTTITimeout(timeout time.Duration) TTIOption {
	return func(p *TrustedIssuerProvider) { p.callTimeout = timeout }
}

// NewTrustedIssuerProvider creates the TTI-flow provider.
func NewTrustedIssuerProvider(cfg *config.FederationConfig, cognito CognitoFactory, oidc OIDCFactory, opts ...TTIOption) *TrustedIssuerProvider {
	p := &TrustedIssuerProvider{
		cfg:         cfg,
		cognito:     cognito,
		oidc:        oidc,
		callTimeout: defaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authenticate verifies the username/password pair against the directory
// and returns the issued bearer token. Rejected credentials are fatal for
// the attempt; no retry, to avoid amplifying credential stuffing.
func (p *TrustedIssuerProvider) Authenticate(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", federr.Authentication(stepDirectoryAuth, "username and password are required", nil)
	}

	client, err := p.cognito.Default(ctx)
	if err != nil {
		return "", federr.New(federr.ClassConfiguration, stepDirectoryAuth, "failed to build Cognito client", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	out, err := client.AdminInitiateAuth(callCtx, &cognitoidentityprovider.AdminInitiateAuthInput{
		UserPoolId: awsv2.String(p.cfg.CognitoPoolID()),
		ClientId:   awsv2.String(p.cfg.CognitoClientID()),
		AuthFlow:   cognitotypes.AuthFlowTypeAdminUserPasswordAuth,
		AuthParameters: map[string]string{
			"USERNAME":    username,
			"PASSWORD":    password,
			"SECRET_HASH": SecretHash(username, p.cfg.CognitoClientID(), p.cfg.CognitoClientSecret()),
		},
	})
	if err != nil {
		return "", federr.WrapAWS(federr.ClassAuthentication, stepDirectoryAuth, err)
	}

	if out.AuthenticationResult == nil || awsv2.ToString(out.AuthenticationResult.IdToken) == "" {
		return "", federr.Authentication(stepDirectoryAuth, "directory returned no identity token", nil)
	}
	p.logger.Debug("authenticated user against directory", zap.String("username", username))

	return awsv2.ToString(out.AuthenticationResult.IdToken), nil
}

// TokenSource returns a broker token source that exchanges the directory
// bearer token via the JWT-bearer grant.
func (p *TrustedIssuerProvider) TokenSource(bearerToken string) broker.TokenSource {
	return broker.TokenSourceFunc(func(ctx context.Context, base broker.Credentials) (*fedtoken.Federated, error) {
		if bearerToken == "" {
			return nil, federr.Authentication(stepTokenExchange, "bearer token is empty", nil)
		}

		client, err := p.oidc.WithCredentials(ctx, base)
		if err != nil {
			return nil, federr.New(federr.ClassConfiguration, stepTokenExchange, "failed to build SSO OIDC client", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()

		out, err := client.CreateTokenWithIAM(callCtx, &ssooidc.CreateTokenWithIAMInput{
			ClientId:  awsv2.String(p.cfg.IDCApplicationARN()),
			GrantType: awsv2.String(grantJWTBearer),
			Assertion: awsv2.String(bearerToken),
		})
		if err != nil {
			return nil, federr.WrapAWS(federr.ClassAuthentication, stepTokenExchange, err)
		}

		idToken := awsv2.ToString(out.IdToken)
		if idToken == "" {
			return nil, federr.Authentication(stepTokenExchange, "token endpoint returned no identity token", nil)
		}
		p.logger.Debug("exchanged directory token for identity token")

		return fedtoken.Decode(idToken)
	})
}

// SecretHash computes the Cognito SECRET_HASH: base64 of HMAC-SHA256 over
// username+clientID, keyed with the app client secret. Recomputed on every
// attempt; it is user-specific and must not be cached across users.
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
