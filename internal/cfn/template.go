// Package cfn converts an export directory into a CloudFormation template.
package cfn

import (
	"fmt"
	"strings"
)

const (
	templateFormatVersion = "2010-09-09"
	templateDescription   = "Imported AWS Infrastructure"

	defaultCidrBlock     = "10.0.0.0/16"
	defaultGroupDesc     = "Imported security group"
	defaultIPProtocol    = "tcp"
	defaultPort          = 80
	defaultIngressCidr   = "0.0.0.0/0"
	defaultImageID       = "ami-0abcdef1234567890"
	defaultInstanceType  = "t2.micro"
	defaultSecurityGroup = "default"
)

// Template is a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string              `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string              `json:"Description" yaml:"Description"`
	Resources                map[string]Resource `json:"Resources" yaml:"Resources"`
}

// Resource is a single template resource.
type Resource struct {
	Type       string `json:"Type" yaml:"Type"`
	Properties any    `json:"Properties" yaml:"Properties"`
}

// Tag is a CloudFormation resource tag.
type Tag struct {
	Key   string `json:"Key" yaml:"Key"`
	Value string `json:"Value" yaml:"Value"`
}

// VPCProperties are the AWS::EC2::VPC properties emitted.
type VPCProperties struct {
	CidrBlock          string `json:"CidrBlock" yaml:"CidrBlock"`
	EnableDnsHostnames bool   `json:"EnableDnsHostnames" yaml:"EnableDnsHostnames"`
	EnableDnsSupport   bool   `json:"EnableDnsSupport" yaml:"EnableDnsSupport"`
	Tags               []Tag  `json:"Tags" yaml:"Tags"`
}

// IngressRule is one AWS::EC2::SecurityGroup ingress entry.
type IngressRule struct {
	IpProtocol string `json:"IpProtocol" yaml:"IpProtocol"`
	FromPort   int32  `json:"FromPort" yaml:"FromPort"`
	ToPort     int32  `json:"ToPort" yaml:"ToPort"`
	CidrIp     string `json:"CidrIp" yaml:"CidrIp"`
}

// SecurityGroupProperties are the AWS::EC2::SecurityGroup properties emitted.
type SecurityGroupProperties struct {
	GroupDescription     string        `json:"GroupDescription" yaml:"GroupDescription"`
	SecurityGroupIngress []IngressRule `json:"SecurityGroupIngress" yaml:"SecurityGroupIngress"`
	Tags                 []Tag         `json:"Tags" yaml:"Tags"`
}

// InstanceProperties are the AWS::EC2::Instance properties emitted.
type InstanceProperties struct {
	ImageId          string   `json:"ImageId" yaml:"ImageId"`
	InstanceType     string   `json:"InstanceType" yaml:"InstanceType"`
	KeyName          string   `json:"KeyName" yaml:"KeyName"`
	SecurityGroupIds []string `json:"SecurityGroupIds" yaml:"SecurityGroupIds"`
	SubnetId         string   `json:"SubnetId" yaml:"SubnetId"`
	Tags             []Tag    `json:"Tags" yaml:"Tags"`
}

// NewTemplate returns an empty template with the standard header.
func NewTemplate() Template {
	return Template{
		AWSTemplateFormatVersion: templateFormatVersion,
		Description:              templateDescription,
		Resources:                make(map[string]Resource),
	}
}

// Merge copies resources into the template. Later entries replace earlier
// ones with the same logical ID.
func (t Template) Merge(resources map[string]Resource) {
	for name, r := range resources {
		t.Resources[name] = r
	}
}

// build converts the exported documents into a template.
func build(vpcs vpcsInput, groups securityGroupsInput, instances instancesInput) Template {
	t := NewTemplate()
	t.Merge(convertVPCs(vpcs))
	t.Merge(convertSecurityGroups(groups))
	t.Merge(convertInstances(instances))
	return t
}

func convertVPCs(in vpcsInput) map[string]Resource {
	resources := make(map[string]Resource)
	for i, vpc := range in.Vpcs {
		vpcID := fmt.Sprintf("VPC%d", i)
		if vpc.VpcId != nil {
			vpcID = *vpc.VpcId
		}

		resources["VPC"+logicalID(vpcID)] = Resource{
			Type: "AWS::EC2::VPC",
			Properties: VPCProperties{
				CidrBlock:          stringOr(vpc.CidrBlock, defaultCidrBlock),
				EnableDnsHostnames: true,
				EnableDnsSupport:   true,
				Tags:               nameTag(vpcID),
			},
		}
	}
	return resources
}

func convertSecurityGroups(in securityGroupsInput) map[string]Resource {
	resources := make(map[string]Resource)
	for _, sg := range in.SecurityGroups {
		if sg.GroupName != nil && *sg.GroupName == defaultSecurityGroup {
			continue
		}

		sgID := stringOr(sg.GroupId, "")
		ingress := []IngressRule{}
		for _, perm := range sg.IpPermissions {
			rule := IngressRule{
				IpProtocol: stringOr(perm.IpProtocol, defaultIPProtocol),
				FromPort:   int32Or(perm.FromPort, defaultPort),
				ToPort:     int32Or(perm.ToPort, defaultPort),
			}
			for _, r := range perm.IpRanges {
				rule.CidrIp = stringOr(r.CidrIp, defaultIngressCidr)
				ingress = append(ingress, rule)
			}
		}

		resources["SecurityGroup"+logicalID(sgID)] = Resource{
			Type: "AWS::EC2::SecurityGroup",
			Properties: SecurityGroupProperties{
				GroupDescription:     stringOr(sg.Description, defaultGroupDesc),
				SecurityGroupIngress: ingress,
				Tags:                 nameTag(stringOr(sg.GroupName, sgID)),
			},
		}
	}
	return resources
}

func convertInstances(in instancesInput) map[string]Resource {
	resources := make(map[string]Resource)
	for _, reservation := range in.Reservations {
		for _, inst := range reservation.Instances {
			instanceID := stringOr(inst.InstanceId, "")

			groupIDs := make([]string, 0, len(inst.SecurityGroups))
			for _, g := range inst.SecurityGroups {
				groupIDs = append(groupIDs, stringOr(g.GroupId, ""))
			}

			resources["EC2Instance"+logicalID(instanceID)] = Resource{
				Type: "AWS::EC2::Instance",
				Properties: InstanceProperties{
					ImageId:          stringOr(inst.ImageId, defaultImageID),
					InstanceType:     stringOr(inst.InstanceType, defaultInstanceType),
					KeyName:          stringOr(inst.KeyName, ""),
					SecurityGroupIds: groupIDs,
					SubnetId:         stringOr(inst.SubnetId, ""),
					Tags:             nameTag(instanceID),
				},
			}
		}
	}
	return resources
}

// logicalID strips characters CloudFormation rejects in logical IDs.
func logicalID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

func nameTag(id string) []Tag {
	return []Tag{{Key: "Name", Value: "Imported-" + id}}
}

func stringOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func int32Or(n *int32, def int32) int32 {
	if n == nil {
		return def
	}
	return *n
}
