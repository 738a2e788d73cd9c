package main

import (
	"fmt"

	"github.com/alfredjeanlab/reconciler/internal/config"
	"github.com/alfredjeanlab/reconciler/internal/signer"
	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:     "address",
	Short:   "Print the admin address derived from the configured key",
	GroupID: "inspect",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read()
		if err != nil {
			return err
		}
		if cfg.AdminSecretKey == "" {
			return fmt.Errorf("%w: RECONCILER_ADMIN_SECRET_KEY", config.ErrMissing)
		}
		kp, err := signer.ParseSecretKey(cfg.AdminSecretKey)
		if err != nil {
			return fmt.Errorf("admin key: %w", err)
		}
		defer kp.Close()

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"address": kp.Address().String()})
		}
		fmt.Fprintln(cmd.OutOrStdout(), kp.Address())
		return nil
	},
}
