package cmd

import (
	"fmt"

	"apguard/ingest"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCheckConfigCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				errorColor.Fprintf(w, "Configuration invalid: %v\n", err)
				return err
			}
			if _, err := ingest.CompileSignatures(cfg.Detection.FailurePatterns, cfg.Detection.RegexTimeout); err != nil {
				errorColor.Fprintf(w, "Configuration invalid: %v\n", err)
				return err
			}

			if !quiet {
				if outputJSON {
					if err := outputAsJSON(w, cfg); err != nil {
						return err
					}
				} else {
					out, err := yaml.Marshal(cfg)
					if err != nil {
						return fmt.Errorf("failed to render config: %w", err)
					}
					headerColor.Fprintln(w, "# effective configuration")
					fmt.Fprint(w, string(out))
				}
			}

			successColor.Fprintln(w, "Configuration valid")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only report validity")
	return cmd
}
