package cmd

import (
	"fmt"
	"os"

	"github.com/akedrou/textdiff"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/jsonpatch"
)

type configMergeParams struct {
	configFiles []string
	strict      bool
}

type configPatchParams struct {
	configFiles []string
	patchFile   string
}

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manipulate configuration files",
	}

	mergeParams := configMergeParams{}
	merge := &cobra.Command{
		Use:   "merge",
		Short: "Print the merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			bs, err := config.Merge(mergeParams.configFiles, mergeParams.strict)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(bs)
			return err
		},
	}
	addConfigFlag(merge.Flags(), &mergeParams.configFiles)
	merge.Flags().BoolVar(&mergeParams.strict, "strict", false, "fail on conflicting values")
	configCmd.AddCommand(merge)

	patchParams := configPatchParams{}
	patch := &cobra.Command{
		Use:   "patch",
		Short: "Apply a JSON patch to the merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPatch(patchParams)
		},
	}
	addConfigFlag(patch.Flags(), &patchParams.configFiles)
	patch.Flags().StringVar(&patchParams.patchFile, "patch", "", "JSON patch file (add, remove, replace)")
	configCmd.AddCommand(patch)

	diff := &cobra.Command{
		Use:   "diff <path> <path>",
		Short: "Diff two merged configurations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigDiff(args[0], args[1])
		},
	}
	configCmd.AddCommand(diff)

	RootCommand.AddCommand(configCmd)
}

func runConfigPatch(params configPatchParams) error {
	if params.patchFile == "" {
		return fmt.Errorf("no patch file given")
	}

	merged, err := config.Merge(params.configFiles, false)
	if err != nil {
		return err
	}

	doc, err := yaml.YAMLToJSON(merged)
	if err != nil {
		return err
	}

	bs, err := os.ReadFile(params.patchFile)
	if err != nil {
		return err
	}

	p, err := jsonpatch.Parse(bs)
	if err != nil {
		return err
	}

	patched, err := jsonpatch.Apply(p, doc)
	if err != nil {
		return err
	}

	if err := config.Validate(patched); err != nil {
		return fmt.Errorf("patched configuration is invalid: %w", err)
	}

	out, err := yaml.JSONToYAML(patched)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(out)
	return err
}

func runConfigDiff(a, b string) error {
	mergedA, err := config.Merge([]string{a}, false)
	if err != nil {
		return err
	}

	mergedB, err := config.Merge([]string{b}, false)
	if err != nil {
		return err
	}

	fmt.Print(textdiff.Unified(a, b, string(mergedA), string(mergedB)))
	return nil
}
