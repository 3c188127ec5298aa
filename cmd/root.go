// Package cmd provides the apguard command-line interface.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"apguard/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	configFile string
	outputJSON bool
	noColor    bool
)

// NewRootCmd creates the apguard command tree. Running it without a
// subcommand starts the responder.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apguard",
		Short: "Block Wi-Fi clients that repeatedly fail authentication",
		Long: `apguard watches an access point's authentication log, correlates failed
attempts per client MAC address and adds repeat offenders to the access
point's MAC deny list for a configurable time.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResponder(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (default: ./apguard.yaml, /etc/apguard/apguard.yaml)")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckConfigCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newBlockedCmd())
	root.AddCommand(newUnblockCmd())

	return root
}

// loadConfig loads the configuration selected by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-20s %s\n", key+":", value)
}

func printRule(w io.Writer, width int) {
	fmt.Fprintln(w, strings.Repeat("-", width))
}

// formatTime formats a timestamp
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
