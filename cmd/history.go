package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"apguard/core"
	"apguard/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const historyTimeout = 30 * time.Second

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		mac   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent block decisions, ACL writes and expiries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Audit.SQLitePath == "" {
				return errors.New("block history is disabled: set audit.sqlite_path")
			}

			store, err := storage.NewAuditStore(cfg.Audit.SQLitePath, zap.NewNop().Sugar())
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []core.AuditEntry
			if mac != "" {
				device, err := core.ParseMacAddress(mac)
				if err != nil {
					return err
				}
				entries, err = store.ForDevice(ctx, device, limit)
				if err != nil {
					return err
				}
			} else {
				entries, err = store.Recent(ctx, limit)
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if outputJSON {
				return outputAsJSON(w, entries)
			}
			if len(entries) == 0 {
				warningColor.Fprintln(w, "No block history recorded")
				return nil
			}

			headerColor.Fprintln(w, "BLOCK HISTORY")
			fmt.Fprintf(w, "%-20s %-18s %-8s %-16s %-10s %s\n", "Time", "Device", "Action", "Result", "Decision", "Detail")
			printRule(w, 100)
			for _, e := range entries {
				decision := e.DecisionID
				if len(decision) > 8 {
					decision = decision[:8]
				}
				fmt.Fprintf(w, "%-20s %-18s %-8s %-16s %-10s %s\n",
					formatTime(e.At), e.DeviceID, e.Action, formatResult(e.Result), decision, e.Detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	cmd.Flags().StringVar(&mac, "mac", "", "Only show entries for this device")
	return cmd
}

// formatResult colors an audit result, padded before coloring so the
// table stays aligned
func formatResult(result string) string {
	padded := fmt.Sprintf("%-16s", result)
	switch result {
	case "applied", "released", "forgiven":
		return color.New(color.FgGreen).Sprint(padded)
	case "error":
		return color.New(color.FgRed).Sprint(padded)
	case "already_blocked", "not_blocked":
		return color.New(color.FgYellow).Sprint(padded)
	}
	return padded
}
