// Package validate runs non-fatal sanity checks against the configured
// federation topology. Each check yields a pass/fail result with a
// diagnostic detail; a failing check never aborts the sequence.
package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/acme-isv/qindex-broker/pkg/config"
)

// Result is the outcome of a single check.
type Result struct {
	Name   string
	OK     bool
	Detail string
}

// STSAPI is the subset of the STS client used by the checks.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IAMAPI is the subset of the IAM client used by the checks.
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	ListRolePolicies(ctx context.Context, params *iam.ListRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator runs the check sequence.
type Validator struct {
	sts  STSAPI
	iam  IAMAPI
	http httpDoer
}

// New creates a Validator backed by the process's AWS credential chain.
func New(ctx context.Context, region string) (*Validator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newValidator(
		sts.NewFromConfig(cfg),
		iam.NewFromConfig(cfg),
		&http.Client{Timeout: 5 * time.Second},
	), nil
}

func newValidator(stsClient STSAPI, iamClient IAMAPI, httpClient httpDoer) *Validator {
	return &Validator{sts: stsClient, iam: iamClient, http: httpClient}
}

// Run executes every check and returns all results, pass or fail.
func (v *Validator) Run(ctx context.Context, cfg *config.FederationConfig) []Result {
	results := []Result{
		v.checkCredentials(ctx),
		v.checkRole(ctx, cfg.RoleARN()),
	}
	if cfg.Flow() == config.FlowAuthorizationCode {
		results = append(results, v.checkEndpoint(ctx, cfg.RedirectURI()))
	}
	return results
}

func (v *Validator) checkCredentials(ctx context.Context) Result {
	out, err := v.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Result{Name: "isv-credentials", Detail: err.Error()}
	}
	return Result{
		Name:   "isv-credentials",
		OK:     true,
		Detail: "authenticated as " + awsv2.ToString(out.Arn),
	}
}

func (v *Validator) checkRole(ctx context.Context, roleARN string) Result {
	name := "federation-role"

	slash := strings.LastIndex(roleARN, "/")
	if slash < 0 || slash == len(roleARN)-1 {
		return Result{Name: name, Detail: fmt.Sprintf("cannot derive role name from %q", roleARN)}
	}
	roleName := roleARN[slash+1:]

	role, err := v.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: awsv2.String(roleName)})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("role %q: %v", roleName, err)}
	}

	var policies []string
	if attached, err := v.iam.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: awsv2.String(roleName),
	}); err == nil {
		for _, p := range attached.AttachedPolicies {
			policies = append(policies, awsv2.ToString(p.PolicyName))
		}
	}
	if inline, err := v.iam.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: awsv2.String(roleName),
	}); err == nil {
		policies = append(policies, inline.PolicyNames...)
	}

	detail := fmt.Sprintf("%s exists", awsv2.ToString(role.Role.Arn))
	if len(policies) > 0 {
		detail += ", policies: " + strings.Join(policies, ", ")
	}
	return Result{Name: name, OK: true, Detail: detail}
}

func (v *Validator) checkEndpoint(ctx context.Context, rawURL string) Result {
	name := "redirect-endpoint"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer resp.Body.Close()

	detail := fmt.Sprintf("status code: %d", resp.StatusCode)
	return Result{
		Name:   name,
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 400,
		Detail: detail,
	}
}
