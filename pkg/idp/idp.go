// Package idp produces federated identity tokens via one of two provider
// variants: redeeming an Identity Center authorization code, or exchanging
// a bearer token issued by the ISV's own Cognito directory (trusted token
// issuance). Both variants feed the same broker exchange.
package idp

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"

	"github.com/acme-isv/qindex-broker/pkg/broker"
)

// OAuth grant types accepted by the federation broker's token endpoint.
const (
	grantAuthorizationCode = "authorization_code"
	grantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

const defaultCallTimeout = 30 * time.Second

// OIDCAPI is the subset of the SSO OIDC client used for token redemption.
type OIDCAPI interface {
	CreateTokenWithIAM(ctx context.Context, params *ssooidc.CreateTokenWithIAMInput, optFns ...func(*ssooidc.Options)) (*ssooidc.CreateTokenWithIAMOutput, error)
}

// OIDCFactory builds an SSO OIDC client from the base credentials produced
// by the unscoped assume-role step.
type OIDCFactory interface {
	WithCredentials(ctx context.Context, base broker.Credentials) (OIDCAPI, error)
}

type sdkOIDCFactory struct {
	region string
}

// NewOIDCFactory creates an SSO OIDC client factory pinned to the Identity
// Center region.
func NewOIDCFactory(region string) OIDCFactory {
	return sdkOIDCFactory{region: region}
}

func (f sdkOIDCFactory) WithCredentials(ctx context.Context, base broker.Credentials) (OIDCAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(f.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			base.AccessKeyID, base.SecretAccessKey, base.SessionToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ssooidc.NewFromConfig(cfg), nil
}

// CognitoAPI is the subset of the Cognito IDP client used for directory
// authentication.
type CognitoAPI interface {
	AdminInitiateAuth(ctx context.Context, params *cognitoidentityprovider.AdminInitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminInitiateAuthOutput, error)
}

// CognitoFactory builds a Cognito client from the process's own credential
// chain.
type CognitoFactory interface {
	Default(ctx context.Context) (CognitoAPI, error)
}

type sdkCognitoFactory struct {
	region string
}

// NewCognitoFactory creates a Cognito client factory pinned to the ISV
// directory region.
func NewCognitoFactory(region string) CognitoFactory {
	return sdkCognitoFactory{region: region}
}

func (f sdkCognitoFactory) Default(ctx context.Context) (CognitoAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(f.region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cognitoidentityprovider.NewFromConfig(cfg), nil
}
