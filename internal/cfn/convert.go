package cfn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrNoExportDir is returned when the export directory does not exist.
var ErrNoExportDir = errors.New("export directory does not exist")

// Format selects the template encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid format: %s (must be one of: json, yaml)", s)
	}
}

// TemplateFile returns the output file name for a format.
func (f Format) TemplateFile() string {
	return "cloudformation-template." + string(f)
}

// Inputs only declare the fields the converter reads, so exports written by
// either this tool or the AWS CLI decode the same way.

type vpcsInput struct {
	Vpcs []struct {
		VpcId     *string
		CidrBlock *string
	}
}

type securityGroupsInput struct {
	SecurityGroups []struct {
		GroupId       *string
		GroupName     *string
		Description   *string
		IpPermissions []struct {
			IpProtocol *string
			FromPort   *int32
			ToPort     *int32
			IpRanges   []struct {
				CidrIp *string
			}
		}
	}
}

type instancesInput struct {
	Reservations []struct {
		Instances []struct {
			InstanceId     *string
			ImageId        *string
			InstanceType   *string
			KeyName        *string
			SubnetId       *string
			SecurityGroups []struct {
				GroupId *string
			}
		}
	}
}

// Converter turns an export directory into a CloudFormation template.
type Converter struct {
	out io.Writer
}

// NewConverter creates a converter that prints progress to out.
func NewConverter(out io.Writer) *Converter {
	return &Converter{out: out}
}

// Convert reads the export in dir and writes the template next to it.
// It returns the path of the written template.
func (c *Converter) Convert(dir string, format Format) (string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNoExportDir, dir)
	}

	fmt.Fprintf(c.out, "Converting exports from %s to CloudFormation...\n", dir)

	var (
		vpcs      vpcsInput
		groups    securityGroupsInput
		instances instancesInput
	)
	if err := c.load(filepath.Join(dir, "vpcs.json"), &vpcs); err != nil {
		return "", err
	}
	if err := c.load(filepath.Join(dir, "security-groups.json"), &groups); err != nil {
		return "", err
	}
	if err := c.load(filepath.Join(dir, "ec2-instances.json"), &instances); err != nil {
		return "", err
	}

	tmpl := build(vpcs, groups, instances)

	data, err := Encode(tmpl, format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, format.TemplateFile())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write template: %w", err)
	}

	fmt.Fprintf(c.out, "CloudFormation template created: %s\n", path)
	fmt.Fprintf(c.out, "Resources converted: %d\n", len(tmpl.Resources))

	log.Debug().Str("path", path).Int("resources", len(tmpl.Resources)).Msg("template written")

	return path, nil
}

// load decodes path into v. A missing file or invalid JSON is reported and
// leaves v empty.
func (c *Converter) load(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(c.out, "Warning: %s not found\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		fmt.Fprintf(c.out, "Error: Invalid JSON in %s\n", path)
		log.Debug().Err(err).Str("path", path).Msg("decode export file")
		resetInput(v)
	}
	return nil
}

// resetInput discards fields a failed decode may have partially filled.
func resetInput(v any) {
	switch in := v.(type) {
	case *vpcsInput:
		*in = vpcsInput{}
	case *securityGroupsInput:
		*in = securityGroupsInput{}
	case *instancesInput:
		*in = instancesInput{}
	}
}

// Encode renders the template in the given format.
func Encode(t Template, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode yaml template: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json template: %w", err)
		}
		return data, nil
	}
}
