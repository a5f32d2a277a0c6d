package broker

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSAPI is the subset of the STS client used by the broker.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// ClientFactory builds STS clients for the two assume-role steps: one from
// the process's own credential chain, one from the base credentials
// produced by step 1.
type ClientFactory interface {
	Default(ctx context.Context) (STSAPI, error)
	WithCredentials(ctx context.Context, creds Credentials) (STSAPI, error)
}

type sdkClientFactory struct {
	region string
}

// NewClientFactory creates a factory backed by AWS SDK v2, pinned to the
// given region.
func NewClientFactory(region string) ClientFactory {
	return sdkClientFactory{region: region}
}

func (f sdkClientFactory) Default(ctx context.Context) (STSAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(f.region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sts.NewFromConfig(cfg), nil
}

func (f sdkClientFactory) WithCredentials(ctx context.Context, creds Credentials) (STSAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(f.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sts.NewFromConfig(cfg), nil
}

func credentialsFrom(out *sts.AssumeRoleOutput) Credentials {
	return Credentials{
		AccessKeyID:     awsv2.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: awsv2.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    awsv2.ToString(out.Credentials.SessionToken),
		Expiration:      awsv2.ToTime(out.Credentials.Expiration),
	}
}
