package validate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-isv/qindex-broker/pkg/config"
)

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

type fakeIAM struct {
	roleOut     *iam.GetRoleOutput
	roleErr     error
	attachedOut *iam.ListAttachedRolePoliciesOutput
	attachedErr error
	inlineOut   *iam.ListRolePoliciesOutput
	inlineErr   error
}

func (f fakeIAM) GetRole(context.Context, *iam.GetRoleInput, ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	return f.roleOut, f.roleErr
}

func (f fakeIAM) ListAttachedRolePolicies(context.Context, *iam.ListAttachedRolePoliciesInput, ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	return f.attachedOut, f.attachedErr
}

func (f fakeIAM) ListRolePolicies(context.Context, *iam.ListRolePoliciesInput, ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error) {
	return f.inlineOut, f.inlineErr
}

type fakeHTTP struct {
	status int
	err    error
}

func (f fakeHTTP) Do(*http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func codeFlowConfig(t *testing.T) *config.FederationConfig {
	t.Helper()

	cfg, err := config.New(config.Settings{
		RoleARN:           "arn:aws:iam::111122223333:role/isv-federation",
		RedirectURI:       "https://localhost:8081",
		ApplicationID:     "app-0000",
		RetrieverID:       "ret-0000",
		ApplicationRegion: "us-east-1",
		IDCApplicationARN: "arn:aws:sso::111122223333:application/ssoins/apl",
		IDCRegion:         "us-east-1",
	})
	require.NoError(t, err)
	return cfg
}

func healthyIAM() fakeIAM {
	return fakeIAM{
		roleOut: &iam.GetRoleOutput{Role: &iamtypes.Role{
			Arn: awsv2.String("arn:aws:iam::111122223333:role/isv-federation"),
		}},
		attachedOut: &iam.ListAttachedRolePoliciesOutput{AttachedPolicies: []iamtypes.AttachedPolicy{
			{PolicyName: awsv2.String("QIndexAccess")},
		}},
		inlineOut: &iam.ListRolePoliciesOutput{PolicyNames: []string{"inline-trust"}},
	}
}

func TestRunAllChecksPass(t *testing.T) {
	t.Parallel()

	v := newValidator(
		fakeSTS{out: &sts.GetCallerIdentityOutput{Arn: awsv2.String("arn:aws:iam::111122223333:user/isv")}},
		healthyIAM(),
		fakeHTTP{status: http.StatusOK},
	)

	results := v.Run(context.Background(), codeFlowConfig(t))
	require.Len(t, results, 3)

	for _, r := range results {
		assert.True(t, r.OK, "%s: %s", r.Name, r.Detail)
	}
	assert.Contains(t, results[0].Detail, "arn:aws:iam::111122223333:user/isv")
	assert.Contains(t, results[1].Detail, "QIndexAccess")
	assert.Contains(t, results[1].Detail, "inline-trust")
	assert.Contains(t, results[2].Detail, "200")
}

func TestRunContinuesPastFailures(t *testing.T) {
	t.Parallel()

	// Every dependency fails; every check still reports.
	v := newValidator(
		fakeSTS{err: errors.New("InvalidClientTokenId")},
		fakeIAM{roleErr: errors.New("NoSuchEntity")},
		fakeHTTP{err: errors.New("connection refused")},
	)

	results := v.Run(context.Background(), codeFlowConfig(t))
	require.Len(t, results, 3)

	for _, r := range results {
		assert.False(t, r.OK)
		assert.NotEmpty(t, r.Detail)
	}
	assert.Contains(t, results[0].Detail, "InvalidClientTokenId")
	assert.Contains(t, results[1].Detail, "NoSuchEntity")
	assert.Contains(t, results[2].Detail, "connection refused")
}

func TestRunSkipsEndpointForTTI(t *testing.T) {
	t.Parallel()

	cfg, err := config.New(config.Settings{
		RoleARN:             "arn:aws:iam::111122223333:role/isv-federation",
		ApplicationID:       "app-0000",
		RetrieverID:         "ret-0000",
		ApplicationRegion:   "us-east-1",
		IDCApplicationARN:   "arn:aws:sso::111122223333:application/ssoins/apl",
		IDCRegion:           "us-east-1",
		CognitoPoolID:       "us-west-2_POOL",
		CognitoClientID:     "client0000",
		CognitoClientSecret: "sekrit",
		CognitoRegion:       "us-west-2",
		TenantID:            "tenant-42",
	})
	require.NoError(t, err)

	v := newValidator(
		fakeSTS{out: &sts.GetCallerIdentityOutput{Arn: awsv2.String("arn")}},
		healthyIAM(),
		fakeHTTP{status: http.StatusOK},
	)

	results := v.Run(context.Background(), cfg)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "redirect-endpoint", r.Name)
	}
}

func TestCheckRoleBadARN(t *testing.T) {
	t.Parallel()

	v := newValidator(fakeSTS{}, healthyIAM(), fakeHTTP{})

	result := v.checkRole(context.Background(), "not-an-arn")
	assert.False(t, result.OK)
	assert.Contains(t, result.Detail, "not-an-arn")
}

func TestCheckEndpointRedirectStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		wantOK bool
	}{
		{status: 200, wantOK: true},
		{status: 302, wantOK: true},
		{status: 404, wantOK: false},
		{status: 500, wantOK: false},
	}

	for _, tt := range tests {
		v := newValidator(fakeSTS{}, fakeIAM{}, fakeHTTP{status: tt.status})
		result := v.checkEndpoint(context.Background(), "https://localhost:8081")
		assert.Equal(t, tt.wantOK, result.OK, "status %d", tt.status)
	}
}
