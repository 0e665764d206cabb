package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assessment-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"start", "migrate", "seed", "sweep", "report"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %s not registered: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("v") == nil {
		t.Fatalf("glog verbosity flag not bridged")
	}
}

func TestMaintenanceCommandsNeedPostgres(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")
	for _, args := range [][]string{{"sweep"}, {"seed"}, {"migrate"}, {"report", "leaderboard", "sudoku-demo"}} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append(args, "--config", cfgPath, "--env-file", filepath.Join(t.TempDir(), ".env")))
		err := root.Execute()
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "postgres url not configured")
	}
}

func TestRenderTables(t *testing.T) {
	var buf bytes.Buffer
	renderLeaderboard(&buf, domain.Leaderboard{GameID: "sudoku-demo", Entries: []domain.LeaderboardEntry{
		{UserID: "u2", BestScore: 100, BestTimeSeconds: 300, CompletedAttempts: 1, TotalAttempts: 1},
		{UserID: "u1", BestScore: 90, BestTimeSeconds: 240, CompletedAttempts: 2, TotalAttempts: 3},
	}})
	out := buf.String()
	assert.Contains(t, out, "sudoku-demo")
	assert.Less(t, strings.Index(out, "u2"), strings.Index(out, "u1"))

	buf.Reset()
	published := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	renderAttempts(&buf, "exam-demo", []domain.ExamAttempt{
		{StudentID: "s1", AttemptNumber: 1, Stage: domain.StageNotStarted},
		{StudentID: "s2", AttemptNumber: 2, TotalScore: 72.5, Percentage: 72.5, ResultPublishedAt: &published},
	})
	out = buf.String()
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "72.50%")
	assert.Contains(t, out, "2025-03-02")
}
