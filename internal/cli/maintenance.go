package cli

import (
	"fmt"
	"time"

	"assessment-service/internal/app"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewSeedCmd inserts the fixed catalog and demo content. Safe to rerun.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the category catalog and demo exam, quiz and puzzles",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadServices(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := app.Seed(cmd.Context(), svc.store, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range report.Inserted {
				fmt.Fprintln(out, color.GreenString("inserted"), name)
			}
			for _, name := range report.Skipped {
				fmt.Fprintln(out, color.YellowString("present "), name)
			}
			return nil
		},
	}
}

// NewSweepCmd finalizes attempts whose time ran out; meant for an external scheduler.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close expired exam parts and apply puzzle timeout policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadServices(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			exams, err := svc.exams.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			puzzles, err := svc.puzzles.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired exam attempts: %d, puzzle attempts: %d\n", exams, puzzles)
			return nil
		},
	}
}
