package main

import (
	"fmt"

	"github.com/alfredjeanlab/reconciler/internal/config"
	"github.com/alfredjeanlab/reconciler/internal/model"
	"github.com/alfredjeanlab/reconciler/internal/store/postgres"
	"github.com/spf13/cobra"
)

var attemptsCmd = &cobra.Command{
	Use:     "attempts",
	Short:   "List recorded grant attempts, newest first",
	GroupID: "inspect",
	RunE: func(cmd *cobra.Command, args []string) error {
		failed, _ := cmd.Flags().GetBool("failed")
		limit, _ := cmd.Flags().GetInt("limit")
		experience, _ := cmd.Flags().GetString("experience")

		cfg, err := config.Read()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("%w: RECONCILER_DATABASE_URL", config.ErrMissing)
		}

		ledger, err := postgres.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer ledger.Close()

		filter := model.AttemptFilter{ExperienceID: experience, Limit: limit}
		if failed {
			filter.Outcome = model.OutcomeFailed
		}
		attempts, err := ledger.ListAttempts(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), attempts)
		}
		printAttemptTable(cmd.OutOrStdout(), attempts)
		return nil
	},
}

func init() {
	attemptsCmd.Flags().Bool("failed", false, "only show failed attempts")
	attemptsCmd.Flags().Int("limit", 20, "maximum number of attempts (0 for all)")
	attemptsCmd.Flags().String("experience", "", "only show attempts for this experience id")
}
