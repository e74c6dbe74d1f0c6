package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Print the merged configuration (defaults, file, environment, flags) as YAML. Credentials are masked.",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, file, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if file != "" {
		fmt.Fprintf(out, "# config file: %s\n", file)
	} else {
		fmt.Fprintln(out, "# config file: none (defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
