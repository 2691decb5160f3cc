package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Documents carry the same top-level keys the AWS CLI prints for each call.
// Members below that are the SDK structs as returned: absent fields encode
// as null and IAM policy documents stay URL-encoded.

// InstancesDocument is the ec2-instances.json payload.
type InstancesDocument struct {
	Reservations []ec2types.Reservation `json:"Reservations"`
}

// VpcsDocument is the vpcs.json payload.
type VpcsDocument struct {
	Vpcs []ec2types.Vpc `json:"Vpcs"`
}

// SecurityGroupsDocument is the security-groups.json payload.
type SecurityGroupsDocument struct {
	SecurityGroups []ec2types.SecurityGroup `json:"SecurityGroups"`
}

// SubnetsDocument is the subnets.json payload.
type SubnetsDocument struct {
	Subnets []ec2types.Subnet `json:"Subnets"`
}

// RouteTablesDocument is the route-tables.json payload.
type RouteTablesDocument struct {
	RouteTables []ec2types.RouteTable `json:"RouteTables"`
}

// InternetGatewaysDocument is the internet-gateways.json payload.
type InternetGatewaysDocument struct {
	InternetGateways []ec2types.InternetGateway `json:"InternetGateways"`
}

// NatGatewaysDocument is the nat-gateways.json payload.
type NatGatewaysDocument struct {
	NatGateways []ec2types.NatGateway `json:"NatGateways"`
}

// LoadBalancersDocument is the load-balancers.json payload.
type LoadBalancersDocument struct {
	LoadBalancers []elbtypes.LoadBalancer `json:"LoadBalancers"`
}

// DBInstancesDocument is the rds-instances.json payload.
type DBInstancesDocument struct {
	DBInstances []rdstypes.DBInstance `json:"DBInstances"`
}

// BucketsDocument is the s3-buckets.json payload.
type BucketsDocument struct {
	Buckets []s3types.Bucket `json:"Buckets"`
	Owner   *s3types.Owner   `json:"Owner,omitempty"`
}

// RolesDocument is the iam-roles.json payload.
type RolesDocument struct {
	Roles []iamtypes.Role `json:"Roles"`
}

// FunctionsDocument is the lambda-functions.json payload.
type FunctionsDocument struct {
	Functions []lambdatypes.FunctionConfiguration `json:"Functions"`
}

// Each query issues exactly one call. Truncated results are written as-is.

func (p *Provider) describeInstances(ctx context.Context) (any, error) {
	output, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe instances: %w", err)
	}
	return InstancesDocument{Reservations: orEmpty(output.Reservations)}, nil
}

func (p *Provider) describeVpcs(ctx context.Context) (any, error) {
	output, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe vpcs: %w", err)
	}
	return VpcsDocument{Vpcs: orEmpty(output.Vpcs)}, nil
}

func (p *Provider) describeSecurityGroups(ctx context.Context) (any, error) {
	output, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe security groups: %w", err)
	}
	return SecurityGroupsDocument{SecurityGroups: orEmpty(output.SecurityGroups)}, nil
}

func (p *Provider) describeSubnets(ctx context.Context) (any, error) {
	output, err := p.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe subnets: %w", err)
	}
	return SubnetsDocument{Subnets: orEmpty(output.Subnets)}, nil
}

func (p *Provider) describeRouteTables(ctx context.Context) (any, error) {
	output, err := p.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe route tables: %w", err)
	}
	return RouteTablesDocument{RouteTables: orEmpty(output.RouteTables)}, nil
}

func (p *Provider) describeInternetGateways(ctx context.Context) (any, error) {
	output, err := p.ec2Client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{})
	if err != nil {
		return nil, fmt.Errorf("describe internet gateways: %w", err)
	}
	return InternetGatewaysDocument{InternetGateways: orEmpty(output.InternetGateways)}, nil
}

func (p *Provider) describeNatGateways(ctx context.Context) (any, error) {
	output, err := p.ec2Client.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{})
	if err != nil {
		return nil, fmt.Errorf("describe nat gateways: %w", err)
	}
	return NatGatewaysDocument{NatGateways: orEmpty(output.NatGateways)}, nil
}

func (p *Provider) describeLoadBalancers(ctx context.Context) (any, error) {
	output, err := p.elbClient.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	if err != nil {
		return nil, fmt.Errorf("describe load balancers: %w", err)
	}
	return LoadBalancersDocument{LoadBalancers: orEmpty(output.LoadBalancers)}, nil
}

func (p *Provider) describeDBInstances(ctx context.Context) (any, error) {
	output, err := p.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe db instances: %w", err)
	}
	return DBInstancesDocument{DBInstances: orEmpty(output.DBInstances)}, nil
}

func (p *Provider) listBuckets(ctx context.Context) (any, error) {
	output, err := p.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return BucketsDocument{Buckets: orEmpty(output.Buckets), Owner: output.Owner}, nil
}

func (p *Provider) listRoles(ctx context.Context) (any, error) {
	output, err := p.iamClient.ListRoles(ctx, &iam.ListRolesInput{})
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return RolesDocument{Roles: orEmpty(output.Roles)}, nil
}

func (p *Provider) listFunctions(ctx context.Context) (any, error) {
	output, err := p.lambdaClient.ListFunctions(ctx, &lambda.ListFunctionsInput{})
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	return FunctionsDocument{Functions: orEmpty(output.Functions)}, nil
}

// orEmpty keeps empty results as [] rather than null in the JSON output.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
