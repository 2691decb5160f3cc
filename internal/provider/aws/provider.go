// Package aws builds the fixed AWS export task list.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/awsexport/pkg/snapshot"
)

// Provider issues the read-only queries behind each export task.
type Provider struct {
	region string

	// AWS clients (interfaces for testability)
	ec2Client    EC2API
	elbClient    ELBAPI
	rdsClient    RDSAPI
	s3Client     S3API
	iamClient    IAMAPI
	lambdaClient LambdaAPI
}

// Config holds AWS provider configuration. Empty fields fall back to the
// ambient SDK configuration (environment, shared config, instance role).
type Config struct {
	Region      string
	Profile     string
	MaxAttempts int // 0 keeps the SDK default retryer
}

// New creates a provider from the ambient AWS configuration.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Provider{
		region:       awsCfg.Region,
		ec2Client:    ec2.NewFromConfig(awsCfg),
		elbClient:    elasticloadbalancingv2.NewFromConfig(awsCfg),
		rdsClient:    rds.NewFromConfig(awsCfg),
		s3Client:     s3.NewFromConfig(awsCfg),
		iamClient:    iam.NewFromConfig(awsCfg),
		lambdaClient: lambda.NewFromConfig(awsCfg),
	}, nil
}

// Region returns the resolved AWS region.
func (p *Provider) Region() string {
	return p.region
}

// Tasks returns the export sequence. The order and file names are fixed.
func (p *Provider) Tasks() []snapshot.Task {
	return []snapshot.Task{
		{Name: "ec2_instances", Label: "EC2 instances", File: "ec2-instances", Tier: snapshot.TierHard, Query: p.describeInstances},
		{Name: "vpcs", Label: "VPCs", File: "vpcs", Tier: snapshot.TierHard, Query: p.describeVpcs},
		{Name: "security_groups", Label: "Security Groups", File: "security-groups", Tier: snapshot.TierHard, Query: p.describeSecurityGroups},
		{Name: "subnets", Label: "Subnets", File: "subnets", Tier: snapshot.TierHard, Query: p.describeSubnets},
		{Name: "route_tables", Label: "Route Tables", File: "route-tables", Tier: snapshot.TierHard, Query: p.describeRouteTables},
		{Name: "internet_gateways", Label: "Internet Gateways", File: "internet-gateways", Tier: snapshot.TierHard, Query: p.describeInternetGateways},
		{Name: "nat_gateways", Label: "NAT Gateways", File: "nat-gateways", Tier: snapshot.TierHard, Query: p.describeNatGateways},
		{Name: "load_balancers", Label: "Load Balancers", File: "load-balancers", Tier: snapshot.TierSoft, Fallback: "No load balancers found", Query: p.describeLoadBalancers},
		{Name: "rds_instances", Label: "RDS instances", File: "rds-instances", Tier: snapshot.TierSoft, Fallback: "No RDS instances found", Query: p.describeDBInstances},
		{Name: "s3_buckets", Label: "S3 buckets", File: "s3-buckets", Tier: snapshot.TierHard, Query: p.listBuckets},
		{Name: "iam_roles", Label: "IAM roles", File: "iam-roles", Tier: snapshot.TierHard, Query: p.listRoles},
		{Name: "lambda_functions", Label: "Lambda functions", File: "lambda-functions", Tier: snapshot.TierSoft, Fallback: "No Lambda functions found", Query: p.listFunctions},
	}
}
