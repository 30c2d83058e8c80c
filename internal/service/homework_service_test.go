package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

func TestHomeworkServiceStartRejectsSecondActiveHomework(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	first := fixture.seedHomework(t, "H1")
	second := fixture.seedHomework(t, "H2")

	started, err := fixture.homework.Start(ctx, 7, first.ID, nil)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusActive), started.Status)
	require.Len(t, started.TrackingCode, 10)
	require.Contains(t, started.TrackingURL, "ref="+started.TrackingCode)
	require.Contains(t, started.TrackingURL, "https://book.test/t/7")

	_, err = fixture.homework.Start(ctx, 7, second.ID, nil)
	require.ErrorIs(t, err, ErrActiveHomeworkExists)

	other, err := fixture.homework.Start(ctx, 8, second.ID, nil)
	require.NoError(t, err)
	require.NotEqual(t, started.TrackingCode, other.TrackingCode)

	require.Equal(t, []string{EventHomeworkStarted, EventHomeworkStarted}, fixture.events.types())
}

func TestHomeworkServiceConcurrentStartsLeaveOneActive(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fixture.homework.Start(ctx, 11, homework.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case err == ErrActiveHomeworkExists:
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Equal(t, attempts-1, conflicts)

	var active int64
	require.NoError(t, fixture.db.Model(&models.HomeworkSubmission{}).
		Where("teacher_id = ? AND status = ?", 11, models.SubmissionStatusActive).
		Count(&active).Error)
	require.EqualValues(t, 1, active)
}

func TestHomeworkServiceStartUnknownHomework(t *testing.T) {
	fixture := newEngineFixture(t)

	_, err := fixture.homework.Start(context.Background(), 7, 999, nil)
	require.ErrorIs(t, err, ErrHomeworkNotFound)
}

func TestHomeworkServiceStartExhaustsTrackingCodes(t *testing.T) {
	codes := &fixedCodeGenerator{code: "SAMECODE01"}
	fixture := newEngineFixtureWithCodes(t, codes)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")

	_, err := fixture.homework.Start(ctx, 1, homework.ID, nil)
	require.NoError(t, err)

	_, err = fixture.homework.Start(ctx, 2, homework.ID, nil)
	require.ErrorIs(t, err, ErrCodeGenerationExhausted)
	require.Equal(t, 1+5, codes.calls)
}

func TestHomeworkServiceCompletesOnlyWhenEveryRequirementIsMet(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")

	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)

	afterPosts, err := fixture.homework.RecordProgress(ctx, started.ID, "posts", 3)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusActive), afterPosts.Status)
	require.Equal(t, 100, afterPosts.Requirements[0].Percent)
	require.Equal(t, 0, afterPosts.Requirements[1].Percent)
	require.Zero(t, afterPosts.PointsEarned)

	afterComments, err := fixture.homework.RecordProgress(ctx, started.ID, "comments", 50)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusCompleted), afterComments.Status)
	require.True(t, afterComments.IsCompleted)
	require.NotNil(t, afterComments.CompletedAt)
	require.Equal(t, 40, afterComments.PointsEarned)

	_, err = fixture.homework.RecordProgress(ctx, started.ID, "posts", 1)
	require.ErrorIs(t, err, ErrSubmissionNotActive)

	require.Contains(t, fixture.events.types(), EventHomeworkCompleted)

	next, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err, "completing frees the teacher to start again")
	require.NotEqual(t, started.TrackingCode, next.TrackingCode)
}

func TestHomeworkServiceProgressIsCommutative(t *testing.T) {
	orders := [][]struct {
		metric string
		delta  int64
	}{
		{{"posts", 1}, {"comments", 20}, {"posts", 2}, {"comments", 10}},
		{{"comments", 10}, {"posts", 2}, {"comments", 20}, {"posts", 1}},
	}

	var totals []map[string]int64
	for i, order := range orders {
		t.Run(fmt.Sprintf("order_%d", i), func(t *testing.T) {
			fixture := newEngineFixture(t)
			ctx := context.Background()
			homework := fixture.seedHomework(t, "H1")
			started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
			require.NoError(t, err)

			for _, step := range order {
				_, err := fixture.homework.RecordProgress(ctx, started.ID, step.metric, step.delta)
				require.NoError(t, err)
			}
			totals = append(totals, fixture.loadSubmission(t, started.ID).ProgressMap())
		})
	}

	require.Len(t, totals, 2)
	require.Equal(t, totals[0], totals[1])
	require.Equal(t, map[string]int64{"posts": 3, "comments": 30}, totals[0])
}

func TestHomeworkServiceConcurrentProgressNeverLosesUpdates(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")
	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fixture.homework.RecordProgress(ctx, started.ID, "comments", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 40, fixture.loadSubmission(t, started.ID).ProgressMap()["comments"])
}

func TestHomeworkServiceRecordProgressValidation(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")
	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)

	_, err = fixture.homework.RecordProgress(ctx, started.ID, "posts", -1)
	require.ErrorIs(t, err, ErrInvalidProgressDelta)

	_, err = fixture.homework.RecordProgress(ctx, started.ID, "posts", models.MaxProgressDelta+1)
	require.ErrorIs(t, err, ErrInvalidProgressDelta)

	_, err = fixture.homework.RecordProgress(ctx, started.ID, "likes", 1)
	require.ErrorIs(t, err, ErrUnknownProgressMetric)

	_, err = fixture.homework.RecordProgress(ctx, 404, "posts", 1)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	zero, err := fixture.homework.RecordProgress(ctx, started.ID, "posts", 0)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusActive), zero.Status)
	require.Empty(t, fixture.loadSubmission(t, started.ID).ProgressMap()["posts"])
}

func TestHomeworkServiceRecordProgressRejectsTotalPastCeiling(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")
	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)

	require.NoError(t, fixture.db.Create(&models.SubmissionProgress{
		SubmissionID: started.ID,
		Metric:       "posts",
		Total:        1,
	}).Error)
	require.NoError(t, fixture.db.Create(&models.SubmissionProgress{
		SubmissionID: started.ID,
		Metric:       "comments",
		Total:        models.MaxProgressTotal - 5,
	}).Error)

	_, err = fixture.homework.RecordProgress(ctx, started.ID, "comments", 6)
	require.ErrorIs(t, err, ErrProgressLimitExceeded)
	require.Equal(t, models.MaxProgressTotal-5, fixture.loadSubmission(t, started.ID).ProgressMap()["comments"])

	response, err := fixture.homework.RecordProgress(ctx, started.ID, "comments", 5)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusActive), response.Status)
	require.Equal(t, models.MaxProgressTotal, fixture.loadSubmission(t, started.ID).ProgressMap()["comments"])
}

func TestHomeworkServiceCancelIsNotRepeatable(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")
	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)
	_, err = fixture.homework.RecordProgress(ctx, started.ID, "posts", 2)
	require.NoError(t, err)

	cancelled, err := fixture.homework.Cancel(ctx, 7, started.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusCancelled), cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	before := fixture.loadSubmission(t, started.ID)

	_, err = fixture.homework.Cancel(ctx, 7, started.ID)
	require.ErrorIs(t, err, ErrSubmissionNotActive)

	after := fixture.loadSubmission(t, started.ID)
	require.Equal(t, before.Status, after.Status)
	require.Equal(t, before.CancelledAt.Unix(), after.CancelledAt.Unix())
	require.EqualValues(t, 2, after.ProgressMap()["posts"])
}

func TestHomeworkServiceTerminalSubmissionsAreImmutable(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")
	flow := fixture.createFlow(t, 7, "story_reply")
	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)
	_, err = fixture.homework.Cancel(ctx, 7, started.ID)
	require.NoError(t, err)

	_, err = fixture.homework.SaveEvidence(ctx, 7, started.ID, []string{"https://video"})
	require.ErrorIs(t, err, ErrSubmissionNotActive)

	_, err = fixture.homework.AttachFlow(ctx, 7, started.ID, &flow.ID)
	require.ErrorIs(t, err, ErrSubmissionNotActive)

	_, err = fixture.homework.RecordProgress(ctx, started.ID, "posts", 1)
	require.ErrorIs(t, err, ErrSubmissionNotActive)

	stored := fixture.loadSubmission(t, started.ID)
	require.Nil(t, stored.AttachedFlowID)
	require.Empty(t, stored.EvidenceList())
	require.Empty(t, stored.ProgressMap())
}

func TestHomeworkServiceRestartCreatesNewSubmission(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")

	_, err := fixture.homework.Restart(ctx, 7, homework.ID, nil)
	require.ErrorIs(t, err, ErrRestartNotAllowed)

	first, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)
	_, err = fixture.homework.RecordProgress(ctx, first.ID, "posts", 2)
	require.NoError(t, err)

	_, err = fixture.homework.Restart(ctx, 7, homework.ID, nil)
	require.ErrorIs(t, err, ErrRestartNotAllowed)

	_, err = fixture.homework.Cancel(ctx, 7, first.ID)
	require.NoError(t, err)

	second, err := fixture.homework.Restart(ctx, 7, homework.ID, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.NotEqual(t, first.TrackingCode, second.TrackingCode)
	require.Equal(t, string(models.SubmissionStatusActive), second.Status)
	require.NotNil(t, second.SupersedesID)
	require.Equal(t, first.ID, *second.SupersedesID)

	original := fixture.loadSubmission(t, first.ID)
	require.Equal(t, models.SubmissionStatusCancelled, original.Status)
	require.EqualValues(t, 2, original.ProgressMap()["posts"])
	require.Empty(t, fixture.loadSubmission(t, second.ID).ProgressMap())

	require.Contains(t, fixture.events.types(), EventHomeworkRestarted)
}

func TestHomeworkServiceSaveEvidenceFiltersBlanksAndCaps(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")
	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)

	saved, err := fixture.homework.SaveEvidence(ctx, 7, started.ID, []string{" https://a ", "", "   ", "https://b"})
	require.NoError(t, err)
	require.Equal(t, []string{"https://a", "https://b"}, saved.SubmissionURLs)
	require.Equal(t, []string{"https://a", "https://b"}, fixture.loadSubmission(t, started.ID).EvidenceList())

	tooMany := make([]string, 21)
	for i := range tooMany {
		tooMany[i] = "https://video"
	}
	_, err = fixture.homework.SaveEvidence(ctx, 7, started.ID, tooMany)
	require.ErrorIs(t, err, ErrTooManyEvidenceLinks)

	replaced, err := fixture.homework.SaveEvidence(ctx, 7, started.ID, []string{"https://c"})
	require.NoError(t, err)
	require.Equal(t, []string{"https://c"}, replaced.SubmissionURLs)

	_, err = fixture.homework.SaveEvidence(ctx, 8, started.ID, []string{"https://x"})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestHomeworkServiceAttachFlowChecksOwnership(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	homework := fixture.seedHomework(t, "H1")
	own := fixture.createFlow(t, 7, "comment_keyword", "book")
	foreign := fixture.createFlow(t, 8, "comment_keyword", "book")

	started, err := fixture.homework.Start(ctx, 7, homework.ID, nil)
	require.NoError(t, err)

	_, err = fixture.homework.AttachFlow(ctx, 7, started.ID, &foreign.ID)
	require.ErrorIs(t, err, ErrFlowOwnershipMismatch)

	missing := uint(999)
	_, err = fixture.homework.AttachFlow(ctx, 7, started.ID, &missing)
	require.ErrorIs(t, err, ErrFlowNotFound)

	attached, err := fixture.homework.AttachFlow(ctx, 7, started.ID, &own.ID)
	require.NoError(t, err)
	require.NotNil(t, attached.AttachedFlowID)
	require.Equal(t, own.ID, *attached.AttachedFlowID)

	detached, err := fixture.homework.AttachFlow(ctx, 7, started.ID, nil)
	require.NoError(t, err)
	require.Nil(t, detached.AttachedFlowID)
	require.Nil(t, fixture.loadSubmission(t, started.ID).AttachedFlowID)

	_, err = fixture.homework.Start(ctx, 9, homework.ID, &own.ID)
	require.ErrorIs(t, err, ErrFlowOwnershipMismatch)
}

func TestHomeworkServiceListForTeacher(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()
	first := fixture.seedHomework(t, "H1")
	second := fixture.seedHomework(t, "H2")

	cancelled, err := fixture.homework.Start(ctx, 7, first.ID, nil)
	require.NoError(t, err)
	_, err = fixture.homework.Cancel(ctx, 7, cancelled.ID)
	require.NoError(t, err)
	active, err := fixture.homework.Start(ctx, 7, second.ID, nil)
	require.NoError(t, err)
	_, err = fixture.homework.RecordProgress(ctx, active.ID, "comments", 25)
	require.NoError(t, err)

	listing, err := fixture.homework.ListForTeacher(ctx, 7)
	require.NoError(t, err)
	require.Len(t, listing.Submissions, 2)
	require.NotNil(t, listing.ActiveHomeworkID)
	require.Equal(t, second.ID, *listing.ActiveHomeworkID)
	require.Equal(t, active.ID, *listing.ActiveSubmissionID)

	for _, submission := range listing.Submissions {
		if submission.ID == active.ID {
			require.Equal(t, "H2", submission.HomeworkTitle)
			require.Equal(t, 50, submission.Requirements[1].Percent)
		}
	}

	empty, err := fixture.homework.ListForTeacher(ctx, 99)
	require.NoError(t, err)
	require.Empty(t, empty.Submissions)
	require.Nil(t, empty.ActiveHomeworkID)

	_, err = fixture.homework.Get(ctx, 99, active.ID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestHomeworkServiceZeroRequirementHomeworkCompletesOnFirstReport(t *testing.T) {
	fixture := newEngineFixture(t)
	ctx := context.Background()

	module := models.TrainingModule{Title: "Intro"}
	require.NoError(t, fixture.db.Create(&module).Error)
	homework := models.Homework{ModuleID: module.ID, Title: "Say hello", Points: 5}
	homework.SetRequirements(nil)
	require.NoError(t, fixture.db.Create(&homework).Error)

	started, err := fixture.homework.Start(ctx, 3, homework.ID, nil)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusActive), started.Status)

	done, err := fixture.homework.RecordProgress(ctx, started.ID, "hello", 0)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusCompleted), done.Status)
	require.Equal(t, 5, done.PointsEarned)
}
