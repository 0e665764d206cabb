package cli

import (
	"fmt"
	"io"
	"strconv"

	"assessment-service/internal/domain"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// reportActor reads every exam; reports run with operator rights.
var reportActor = domain.Actor{UserID: "cli", Role: domain.RoleAdmin}

// NewReportCmd renders tables for operators.
func NewReportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print leaderboards and exam results",
	}

	var limit int
	leaderboard := &cobra.Command{
		Use:   "leaderboard GAME_ID",
		Short: "Show the ranked leaderboard of a puzzle game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadServices(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			lb, err := svc.puzzles.Leaderboard(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			renderLeaderboard(cmd.OutOrStdout(), lb)
			return nil
		},
	}
	leaderboard.Flags().IntVar(&limit, "limit", 20, "number of entries")

	attempts := &cobra.Command{
		Use:   "attempts EXAM_ID",
		Short: "Show every attempt of an exam with its score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadServices(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			list, err := svc.exams.ExamAttempts(cmd.Context(), reportActor, args[0])
			if err != nil {
				return err
			}
			renderAttempts(cmd.OutOrStdout(), args[0], list)
			return nil
		},
	}

	cmd.AddCommand(leaderboard, attempts)
	return cmd
}

func renderLeaderboard(out io.Writer, lb domain.Leaderboard) {
	fmt.Fprintln(out, color.YellowString("Leaderboard for %s", lb.GameID))
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Rank", "User", "Best score", "Best time (s)", "Completed", "Attempts"})
	for i, e := range lb.Entries {
		table.Append([]string{
			strconv.Itoa(i + 1),
			e.UserID,
			strconv.Itoa(e.BestScore),
			strconv.Itoa(e.BestTimeSeconds),
			strconv.Itoa(e.CompletedAttempts),
			strconv.Itoa(e.TotalAttempts),
		})
	}
	table.Render()
}

func renderAttempts(out io.Writer, examID string, attempts []domain.ExamAttempt) {
	fmt.Fprintln(out, color.YellowString("Attempts for %s", examID))
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Student", "#", "Stage", "Total", "Percentage", "Result", "Published"})
	for _, a := range attempts {
		result := "-"
		if a.Scored() {
			result = color.RedString("failed")
			if a.IsPassed {
				result = color.GreenString("passed")
			}
		}
		published := "no"
		if a.ResultPublishedAt != nil {
			published = a.ResultPublishedAt.Format("2006-01-02")
		}
		table.Append([]string{
			a.StudentID,
			strconv.Itoa(a.AttemptNumber),
			string(a.Stage),
			strconv.FormatFloat(a.TotalScore, 'f', 2, 64),
			strconv.FormatFloat(a.Percentage, 'f', 2, 64) + "%",
			result,
			published,
		})
	}
	table.Render()
}
