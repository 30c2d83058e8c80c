package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-homework-api/internal/database"
	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/models"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestStudioctlMigrateStatsAndFlows(t *testing.T) {
	dsn := "file:studioctl_cli?mode=memory&cache=shared"

	// Keep the shared in-memory database alive across command invocations.
	keeper, err := database.ConnectSQLite(dsn)
	require.NoError(t, err)
	keeperDB, err := keeper.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = keeperDB.Close() })

	out, err := runCLI(t, "--sqlite", dsn, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "migrations applied")

	flow := models.AutomationFlow{TeacherID: 4, SocialAccountID: "ig-4", Name: "Replies", TriggerType: models.TriggerStoryReply, IsActive: true, TotalTriggered: 3}
	require.NoError(t, keeper.Create(&flow).Error)

	module := models.TrainingModule{Title: "Basics"}
	require.NoError(t, keeper.Create(&module).Error)
	homework := models.Homework{ModuleID: module.ID, Title: "Reels"}
	require.NoError(t, keeper.Create(&homework).Error)
	submission := models.HomeworkSubmission{TeacherID: 4, HomeworkID: homework.ID, TrackingCode: "CLICODE001", TrackingURL: "https://book.test/t/4?ref=CLICODE001", Status: models.SubmissionStatusCancelled, ClickCount: 2}
	require.NoError(t, keeper.Create(&submission).Error)
	for i := 0; i < 2; i++ {
		require.NoError(t, keeper.Create(&models.AttributionEvent{TrackingCode: "CLICODE001", SubmissionID: submission.ID, Kind: models.AttributionClick}).Error)
	}

	out, err = runCLI(t, "--sqlite", dsn, "flows", "list", "--teacher", "4")
	require.NoError(t, err)
	var flows []dto.FlowResponse
	require.NoError(t, json.Unmarshal([]byte(out), &flows))
	require.Len(t, flows, 1)
	require.EqualValues(t, 3, flows[0].TotalTriggered)

	out, err = runCLI(t, "--sqlite", dsn, "stats", "CLICODE001")
	require.NoError(t, err)
	var stats dto.TrackingStatsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.EqualValues(t, 2, stats.Clicks)

	out, err = runCLI(t, "--sqlite", dsn, "reconcile", "CLICODE001")
	require.NoError(t, err)
	var report dto.ReconcileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.Consistent)

	require.NoError(t, keeper.Model(&models.HomeworkSubmission{}).Where("id = ?", submission.ID).Update("click_count", 5).Error)
	_, err = runCLI(t, "--sqlite", dsn, "reconcile", "CLICODE001")
	require.Error(t, err)
	require.Contains(t, err.Error(), fmt.Sprintf("tracking code %s", "CLICODE001"))
}

func TestStudioctlRequiresTrackingCode(t *testing.T) {
	_, err := runCLI(t, "--sqlite", "file:studioctl_args?mode=memory&cache=shared", "stats")
	require.Error(t, err)
}
