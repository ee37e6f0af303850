package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	schemaconf "github.com/bundlesmith/bundlesmith/config"
)

type validateParams struct {
	configFiles []string
}

func init() {
	params := validateParams{}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration against the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(params.configFiles); err != nil {
				return err
			}
			fmt.Println("configuration is valid")
			return nil
		},
	}

	addConfigFlag(validate.Flags(), &params.configFiles)
	RootCommand.AddCommand(validate)

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := os.Stdout.Write(schemaconf.Schema())
			return err
		},
	}

	RootCommand.AddCommand(schema)
}
