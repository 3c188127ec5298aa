package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"apguard/acl"
	"apguard/bootstrap"
	"apguard/core"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const aclTimeout = time.Minute

func newBlockedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List devices in the access control list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sink, err := bootstrap.InitSink(cfg, zap.NewNop().Sugar())
			if err != nil {
				return err
			}

			macs, err := sink.List()
			if err != nil {
				return errors.New(bootstrap.ClassifyACLError(err, cfg.ACL.Path))
			}

			w := cmd.OutOrStdout()
			if outputJSON {
				return outputAsJSON(w, macs)
			}
			if len(macs) == 0 {
				warningColor.Fprintln(w, "No devices blocked")
				return nil
			}
			headerColor.Fprintf(w, "BLOCKED DEVICES (%s)\n", cfg.ACL.Path)
			for _, mac := range macs {
				fmt.Fprintf(w, "  %s\n", mac)
			}
			return nil
		},
	}
}

func newUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <mac>",
		Short: "Remove a device from the access control list and reload it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mac, err := core.ParseMacAddress(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sink, err := bootstrap.InitSink(cfg, zap.NewNop().Sugar())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), aclTimeout)
			defer cancel()

			w := cmd.OutOrStdout()
			err = sink.ReleaseBlock(ctx, mac)
			switch {
			case err == nil:
				successColor.Fprintf(w, "Removed %s from %s\n", mac, cfg.ACL.Path)
				return nil
			case errors.Is(err, acl.ErrNotBlocked):
				infoColor.Fprintf(w, "%s is not blocked\n", mac)
				return nil
			}
			return err
		},
	}
}
