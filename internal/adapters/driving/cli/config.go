package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration",
	Long:        `Prints every setting after defaults, the config file and environment overrides are applied. Secrets are masked.`,
	Annotations: map[string]string{annotationConfigOnly: "true"},
	Args:        cobra.NoArgs,
	RunE:        runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the config file path",
	Annotations: map[string]string{annotationStandalone: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			p, err := file.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		cmd.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if appConfig == nil {
		return fmt.Errorf("config: %w", errNotConfigured)
	}

	keys, values, err := file.Flatten(appConfig)
	if err != nil {
		return err
	}
	for _, k := range keys {
		cmd.Printf("%s = %v\n", k, values[k])
	}
	return nil
}
