// Package config loads and validates the federation topology once at
// process start. The resulting FederationConfig is immutable and safe to
// share across goroutines.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/acme-isv/qindex-broker/pkg/federr"
)

// Flow identifies which token-exchange protocol the configuration selects.
type Flow int

const (
	// FlowAuthorizationCode redirects the user to the enterprise identity
	// provider and redeems the returned one-time code.
	FlowAuthorizationCode Flow = iota

	// FlowTrustedTokenIssuance authenticates the user against the ISV's
	// own directory and exchanges the resulting bearer token.
	FlowTrustedTokenIssuance
)

func (f Flow) String() string {
	if f == FlowTrustedTokenIssuance {
		return "trusted-token-issuance"
	}
	return "authorization-code"
}

// Environment keys recognized by Load.
const (
	KeyRoleARN           = "ISV_ROLE_ARN"
	KeyRedirectURI       = "REDIRECT_URI"
	KeyApplicationID     = "APPLICATION_ID"
	KeyRetrieverID       = "RETRIEVER_ID"
	KeyApplicationRegion = "APPLICATION_REGION"
	KeyIDCApplicationARN = "IDC_APPLICATION_ARN"
	KeyIDCRegion         = "IDC_REGION"
	KeyCognitoPoolID     = "ISV_COGNITO_USER_POOL_ID"
	KeyCognitoClientID   = "ISV_COGNITO_CLIENT_ID"
	KeyCognitoSecret     = "ISV_COGNITO_CLIENT_SECRET"
	KeyCognitoRegion     = "ISV_COGNITO_REGION"
	KeyTenantID          = "ISV_TENANT_ID"
)

// Settings is the raw federation topology before validation. Collaborators
// that do not read the environment can build one directly and pass it to
// New.
type Settings struct {
	RoleARN           string
	RedirectURI       string
	ApplicationID     string
	RetrieverID       string
	ApplicationRegion string
	IDCApplicationARN string
	IDCRegion         string

	CognitoPoolID       string
	CognitoClientID     string
	CognitoClientSecret string
	CognitoRegion       string
	TenantID            string
}

// FederationConfig is the validated, immutable identity and federation
// topology.
type FederationConfig struct {
	roleARN           string
	redirectURI       string
	applicationID     string
	retrieverID       string
	applicationRegion string
	idcApplicationARN string
	idcRegion         string

	cognitoPoolID   string
	cognitoClientID string
	cognitoSecret   string
	cognitoRegion   string
	tenantID        string
}

// Load reads the federation configuration from the environment and
// validates it for the selected flow. Validation failures are fatal at
// startup, not at first use.
func Load() (*FederationConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	return load(v)
}

func load(v *viper.Viper) (*FederationConfig, error) {
	for _, key := range []string{
		KeyRoleARN, KeyRedirectURI, KeyApplicationID, KeyRetrieverID,
		KeyApplicationRegion, KeyIDCApplicationARN, KeyIDCRegion,
		KeyCognitoPoolID, KeyCognitoClientID, KeyCognitoSecret,
		KeyCognitoRegion, KeyTenantID,
	} {
		// viper lower-cases registered keys; bind each env var explicitly
		// so lookups stay case-exact.
		if err := v.BindEnv(key, key); err != nil {
			return nil, federr.New(federr.ClassConfiguration, "startup", "failed to bind environment", err)
		}
	}

	return New(Settings{
		RoleARN:             strings.TrimSpace(v.GetString(KeyRoleARN)),
		RedirectURI:         strings.TrimSpace(v.GetString(KeyRedirectURI)),
		ApplicationID:       strings.TrimSpace(v.GetString(KeyApplicationID)),
		RetrieverID:         strings.TrimSpace(v.GetString(KeyRetrieverID)),
		ApplicationRegion:   strings.TrimSpace(v.GetString(KeyApplicationRegion)),
		IDCApplicationARN:   strings.TrimSpace(v.GetString(KeyIDCApplicationARN)),
		IDCRegion:           strings.TrimSpace(v.GetString(KeyIDCRegion)),
		CognitoPoolID:       strings.TrimSpace(v.GetString(KeyCognitoPoolID)),
		CognitoClientID:     strings.TrimSpace(v.GetString(KeyCognitoClientID)),
		CognitoClientSecret: v.GetString(KeyCognitoSecret),
		CognitoRegion:       strings.TrimSpace(v.GetString(KeyCognitoRegion)),
		TenantID:            strings.TrimSpace(v.GetString(KeyTenantID)),
	})
}

// New validates the settings and returns the immutable configuration.
func New(s Settings) (*FederationConfig, error) {
	cfg := &FederationConfig{
		roleARN:           s.RoleARN,
		redirectURI:       s.RedirectURI,
		applicationID:     s.ApplicationID,
		retrieverID:       s.RetrieverID,
		applicationRegion: s.ApplicationRegion,
		idcApplicationARN: s.IDCApplicationARN,
		idcRegion:         s.IDCRegion,
		cognitoPoolID:     s.CognitoPoolID,
		cognitoClientID:   s.CognitoClientID,
		cognitoSecret:     s.CognitoClientSecret,
		cognitoRegion:     s.CognitoRegion,
		tenantID:          s.TenantID,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *FederationConfig) validate() error {
	var missing []string

	required := map[string]string{
		KeyRoleARN:           c.roleARN,
		KeyApplicationID:     c.applicationID,
		KeyRetrieverID:       c.retrieverID,
		KeyApplicationRegion: c.applicationRegion,
		KeyIDCApplicationARN: c.idcApplicationARN,
		KeyIDCRegion:         c.idcRegion,
	}
	for _, key := range []string{
		KeyRoleARN, KeyApplicationID, KeyRetrieverID,
		KeyApplicationRegion, KeyIDCApplicationARN, KeyIDCRegion,
	} {
		if required[key] == "" {
			missing = append(missing, key)
		}
	}

	if c.redirectURI == "" {
		// TTI flow selected; the directory settings all become required.
		tti := map[string]string{
			KeyCognitoPoolID:   c.cognitoPoolID,
			KeyCognitoClientID: c.cognitoClientID,
			KeyCognitoSecret:   c.cognitoSecret,
			KeyCognitoRegion:   c.cognitoRegion,
			KeyTenantID:        c.tenantID,
		}
		for _, key := range []string{
			KeyCognitoPoolID, KeyCognitoClientID, KeyCognitoSecret,
			KeyCognitoRegion, KeyTenantID,
		} {
			if tti[key] == "" {
				missing = append(missing, key)
			}
		}
	}

	if len(missing) > 0 {
		return federr.Configuration("startup", fmt.Sprintf(
			"missing required settings for the %s flow: %s",
			c.Flow(), strings.Join(missing, ", ")))
	}
	return nil
}

// Flow reports which flow this configuration selects: a non-empty redirect
// URI selects the authorization-code flow, otherwise trusted token issuance.
func (c *FederationConfig) Flow() Flow {
	if c.redirectURI != "" {
		return FlowAuthorizationCode
	}
	return FlowTrustedTokenIssuance
}

// RoleARN is the ISV federation role assumed by both flows.
func (c *FederationConfig) RoleARN() string { return c.roleARN }

// RedirectURI is the authorization-code callback. Empty in the TTI flow.
func (c *FederationConfig) RedirectURI() string { return c.redirectURI }

// ApplicationID identifies the enterprise Q Business application.
func (c *FederationConfig) ApplicationID() string { return c.applicationID }

// RetrieverID identifies the enterprise index retriever.
func (c *FederationConfig) RetrieverID() string { return c.retrieverID }

// ApplicationRegion is the enterprise application's region.
func (c *FederationConfig) ApplicationRegion() string { return c.applicationRegion }

// IDCApplicationARN identifies the Identity Center customer application.
func (c *FederationConfig) IDCApplicationARN() string { return c.idcApplicationARN }

// IDCRegion is the Identity Center region.
func (c *FederationConfig) IDCRegion() string { return c.idcRegion }

// CognitoPoolID is the ISV directory user pool (TTI flow).
func (c *FederationConfig) CognitoPoolID() string { return c.cognitoPoolID }

// CognitoClientID is the ISV directory app client (TTI flow).
func (c *FederationConfig) CognitoClientID() string { return c.cognitoClientID }

// CognitoClientSecret is the ISV directory app client secret (TTI flow).
func (c *FederationConfig) CognitoClientSecret() string { return c.cognitoSecret }

// CognitoRegion is the ISV directory region (TTI flow).
func (c *FederationConfig) CognitoRegion() string { return c.cognitoRegion }

// TenantID is the external identifier tagged onto assumed-role sessions.
// Required for TTI; optional for the authorization-code flow.
func (c *FederationConfig) TenantID() string { return c.tenantID }
