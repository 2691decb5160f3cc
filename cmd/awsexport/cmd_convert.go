package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/awsexport/internal/cfn"
)

var convertFormat string

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert <export-dir>",
	Short: "Convert an export directory into a CloudFormation template",
	Long: `Build a CloudFormation template from the VPCs, security groups and
EC2 instances captured in an export directory.

Missing or unreadable snapshot files are reported and skipped. Default
security groups are left out. The template is written into the export
directory as cloudformation-template.json (or .yaml).`,
	Example: `  awsexport convert exports/aws-infrastructure-export-20240517-140309
  awsexport convert exports/aws-infrastructure-export-20240517-140309 --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", string(cfn.FormatJSON), "Template format: json, yaml")
}

func runConvert(cmd *cobra.Command, args []string) error {
	format, err := cfn.ParseFormat(convertFormat)
	if err != nil {
		return err
	}

	_, err = cfn.NewConverter(cmd.OutOrStdout()).Convert(args[0], format)
	return err
}
