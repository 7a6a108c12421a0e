package progress_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
	emailsvc "github.com/trezcool/maendeleo/services/email"
)

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	res, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{
		ProgressRate: 40.5,
		SpentMinutes: intPtr(10),
		Note:         "halfway through the intro",
	})
	require.NoError(t, err)

	leaf := res.LeafProgress
	assert.Equal(t, "usr1", leaf.UserID)
	assert.Equal(t, "crs1", leaf.CourseID)
	assert.Equal(t, "lsn1", leaf.LessonID)
	assert.Equal(t, "mat1", leaf.MaterialID)
	assert.Equal(t, progress.KindManual, leaf.ProgressKind)
	assert.Equal(t, 40.5, leaf.ProgressRate)
	require.NotNil(t, leaf.ManualProgressRate)
	assert.Equal(t, 40.5, *leaf.ManualProgressRate)
	assert.Equal(t, 10, leaf.SpentMinutes)
	assert.Equal(t, "halfway through the intro", leaf.Note)
	assert.False(t, leaf.IsCompleted)
	assert.Nil(t, leaf.CompletionDate)
	assert.False(t, leaf.LastUpdatedAt.IsZero())

	// rollups: lsn1 has 3 published materials, only mat1 has progress
	assert.Equal(t, 13.5, res.LessonSummary.AggregateProgressRate)
	assert.Equal(t, 3, res.LessonSummary.TotalMaterialCount)
	assert.Equal(t, 0, res.LessonSummary.CompletedMaterialCount)

	// course: lsn1 at 13.5, lsn2 at 0
	assert.Equal(t, 6.75, res.CourseSummary.AggregateProgressRate)
	assert.Equal(t, 2, res.CourseSummary.TotalLessonCount)
	assert.Equal(t, 0, res.CourseSummary.CompletedLessonCount)

	// cumulative spent minutes, rate overwritten
	res, err = env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 66.666, SpentMinutes: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 66.67, res.LeafProgress.ProgressRate) // rounded to 2 decimals
	assert.Equal(t, 15, res.LeafProgress.SpentMinutes)
	assert.Equal(t, "halfway through the intro", res.LeafProgress.Note) // empty note keeps the previous one
}

func TestService_Submit_rejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	tests := []struct {
		name         string
		materialID   string
		data         progress.SubmitProgress
		wantNotFound bool
	}{
		{name: "rate above 100", materialID: "mat1", data: progress.SubmitProgress{ProgressRate: 100.01}},
		{name: "rate below 0", materialID: "mat1", data: progress.SubmitProgress{ProgressRate: -1}},
		{name: "negative spent minutes", materialID: "mat1", data: progress.SubmitProgress{ProgressRate: 50, SpentMinutes: intPtr(-10)}},
		{name: "unknown material", materialID: "lol", data: progress.SubmitProgress{ProgressRate: 50}, wantNotFound: true},
		{name: "unpublished material", materialID: "mat5", data: progress.SubmitProgress{ProgressRate: 50}, wantNotFound: true},
		{name: "manual tracking not allowed", materialID: "mat6", data: progress.SubmitProgress{ProgressRate: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Submit(ctx, "usr1", tt.materialID, tt.data)
			require.Error(t, err)
			if tt.wantNotFound {
				assert.True(t, core.IsNotFound(err))
			} else {
				var vErr *core.ValidationError
				assert.ErrorAs(t, err, &vErr)
			}

			// a rejected submission leaves no trace
			_, err = env.repo.GetLeaf(ctx, "usr1", tt.materialID)
			assert.ErrorIs(t, err, progress.ErrLeafNotFound)
			entries, err := env.repo.QueryHistory(ctx, "usr1", tt.materialID, 100, 0)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}

	// no streak was started either
	streak, err := env.svc.Streak(ctx, "usr1")
	require.NoError(t, err)
	assert.Equal(t, 0, streak.CurrentStreakDays)
}

func TestService_Submit_completion(t *testing.T) {
	ctx := context.Background()

	t.Run("completion is cleared when the rate drops", func(t *testing.T) {
		env := newTestEnv(t, false)
		seedCatalog(env.db)

		res, err := env.svc.Submit(ctx, "usr1", "mat4", progress.SubmitProgress{ProgressRate: 100})
		require.NoError(t, err)
		assert.True(t, res.LeafProgress.IsCompleted)
		require.NotNil(t, res.LeafProgress.CompletionDate)
		completedAt := *res.LeafProgress.CompletionDate

		// staying at 100 keeps the original completion date
		res, err = env.svc.Submit(ctx, "usr1", "mat4", progress.SubmitProgress{ProgressRate: 100})
		require.NoError(t, err)
		require.NotNil(t, res.LeafProgress.CompletionDate)
		assert.Equal(t, completedAt, *res.LeafProgress.CompletionDate)

		res, err = env.svc.Submit(ctx, "usr1", "mat4", progress.SubmitProgress{ProgressRate: 50})
		require.NoError(t, err)
		assert.False(t, res.LeafProgress.IsCompleted)
		assert.Nil(t, res.LeafProgress.CompletionDate)
	})

	t.Run("completion is sticky in monotonic mode", func(t *testing.T) {
		env := newTestEnv(t, true)
		seedCatalog(env.db)

		res, err := env.svc.Submit(ctx, "usr1", "mat4", progress.SubmitProgress{ProgressRate: 100})
		require.NoError(t, err)
		require.NotNil(t, res.LeafProgress.CompletionDate)
		completedAt := *res.LeafProgress.CompletionDate

		res, err = env.svc.Submit(ctx, "usr1", "mat4", progress.SubmitProgress{ProgressRate: 50})
		require.NoError(t, err)
		assert.Equal(t, 50.0, res.LeafProgress.ProgressRate)
		assert.True(t, res.LeafProgress.IsCompleted)
		require.NotNil(t, res.LeafProgress.CompletionDate)
		assert.Equal(t, completedAt, *res.LeafProgress.CompletionDate)
	})
}

func TestService_Submit_idempotency(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	reqID := uuid.NewString()

	res1, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{
		ProgressRate: 30, SpentMinutes: intPtr(10), RequestID: reqID,
	})
	require.NoError(t, err)

	// a replay acknowledges without re-applying
	res2, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{
		ProgressRate: 30, SpentMinutes: intPtr(10), RequestID: reqID,
	})
	require.NoError(t, err)
	assert.Equal(t, res1.LeafProgress, res2.LeafProgress)

	entries, err := env.repo.QueryHistory(ctx, "usr1", "mat1", 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// a fresh request id is applied normally
	_, err = env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{
		ProgressRate: 60, SpentMinutes: intPtr(10), RequestID: uuid.NewString(),
	})
	require.NoError(t, err)

	entries, err = env.repo.QueryHistory(ctx, "usr1", "mat1", 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_Submit_replayAfterDedupWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)
	env.conf.Progress.IdempotencyWindow = time.Millisecond

	reqID := uuid.NewString()
	res1, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{
		ProgressRate: 30, SpentMinutes: intPtr(10), RequestID: reqID,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	// the dedup window has passed but the request id is still on record: the
	// history unique index catches the replay, which is acknowledged from
	// committed state rather than re-applied or failed
	res2, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{
		ProgressRate: 90, SpentMinutes: intPtr(10), RequestID: reqID,
	})
	require.NoError(t, err)
	assert.Equal(t, res1.LeafProgress, res2.LeafProgress)

	entries, err := env.repo.QueryHistory(ctx, "usr1", "mat1", 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// failingSummaryRepo simulates transient storage failures on the summary
// upserts while delegating everything else.
type failingSummaryRepo struct {
	progress.Repository
	lessonErr error
	courseErr error
}

func (r *failingSummaryRepo) UpsertLessonSummary(ctx context.Context, summary progress.LessonSummary, exec ...core.DBExecutor) error {
	if r.lessonErr != nil {
		return r.lessonErr
	}
	return r.Repository.UpsertLessonSummary(ctx, summary, exec...)
}

func (r *failingSummaryRepo) UpsertCourseSummary(ctx context.Context, summary progress.CourseSummary, exec ...core.DBExecutor) error {
	if r.courseErr != nil {
		return r.courseErr
	}
	return r.Repository.UpsertCourseSummary(ctx, summary, exec...)
}

func TestService_Submit_transientAggregationFailure(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		lessonErr error
		courseErr error
	}{
		{name: "lesson summary upsert fails", lessonErr: errors.New("connection reset by peer")},
		{name: "course summary upsert fails", courseErr: errors.New("connection reset by peer")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			seedCatalog(env.db)

			svc := env.serviceWith(&failingSummaryRepo{
				Repository: env.repo, lessonErr: tt.lessonErr, courseErr: tt.courseErr,
			})

			// a transient rollup failure fails the whole submit
			res, err := svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 60, SpentMinutes: intPtr(10)})
			require.Error(t, err)
			assert.False(t, core.IsConsistencyError(err))
			assert.Equal(t, progress.SubmitResult{}, res)

			// nothing was committed: no leaf, no history, no summaries, no streak
			_, err = env.repo.GetLeaf(ctx, "usr1", "mat1")
			assert.ErrorIs(t, err, progress.ErrLeafNotFound)
			entries, err := env.repo.QueryHistory(ctx, "usr1", "mat1", 100, 0)
			require.NoError(t, err)
			assert.Empty(t, entries)
			_, err = env.repo.GetLessonSummary(ctx, "usr1", "lsn1")
			assert.ErrorIs(t, err, progress.ErrSummaryNotFound)
			_, err = env.repo.GetStreak(ctx, "usr1")
			assert.ErrorIs(t, err, progress.ErrStreakNotFound)

			// the same submit goes through once storage recovers
			_, err = env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 60, SpentMinutes: intPtr(10)})
			require.NoError(t, err)
		})
	}
}

func TestService_Submit_orphanedLessonStillCommits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	res, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 60})
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.LessonSummary.AggregateProgressRate)

	// the lesson disappears; the leaf write must still go through
	env.db.RemoveLesson("lsn1")

	res, err = env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 80})
	require.NoError(t, err)
	assert.Equal(t, 80.0, res.LeafProgress.ProgressRate)

	// the recompute was skipped: the stored summary is served as-is
	assert.Equal(t, 20.0, res.LessonSummary.AggregateProgressRate)

	// the course rollup now only covers the surviving lesson
	assert.Equal(t, 1, res.CourseSummary.TotalLessonCount)

	entries, err := env.repo.QueryHistory(ctx, "usr1", "mat1", 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_Submit_concurrentSameLeaf(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	const n = 20

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: float64(i * 5)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// exactly one leaf, one history entry per accepted write
	leaves, err := env.repo.QueryLeaves(ctx, "usr1", []string{"mat1"})
	require.NoError(t, err)
	assert.Len(t, leaves, 1)

	entries, err := env.repo.QueryHistory(ctx, "usr1", "mat1", 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestService_Submit_courseCompletedMail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)

	// single-material course so one submission can complete it
	env.db.AddCourse(catalogCourse("crs9", "Git Crash Course"))
	env.db.AddLesson(catalogLesson("lsn9", "crs9", 1))
	env.db.AddMaterial(catalogMaterial("mat9", "lsn9", "crs9", 1))

	emailsvc.SentMessages = nil

	_, err := env.svc.Submit(ctx, "usr1", "mat9", progress.SubmitProgress{ProgressRate: 50, ActorEmail: "learner@test.cd"})
	require.NoError(t, err)
	assert.Empty(t, emailsvc.SentMessages)

	_, err = env.svc.Submit(ctx, "usr1", "mat9", progress.SubmitProgress{ProgressRate: 100, ActorEmail: "learner@test.cd"})
	require.NoError(t, err)
	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "learner@test.cd", msg.To[0].Address)
	assert.True(t, strings.Contains(msg.Subject, "Git Crash Course"))

	// no actor email, no mail
	emailsvc.SentMessages = nil
	_, err = env.svc.Submit(ctx, "usr2", "mat9", progress.SubmitProgress{ProgressRate: 100})
	require.NoError(t, err)
	assert.Empty(t, emailsvc.SentMessages)
}

func TestService_History(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	_, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 30, SpentMinutes: intPtr(10)})
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 70, SpentMinutes: intPtr(15)})
	require.NoError(t, err)

	entries, err := env.svc.History(ctx, "usr1", "mat1", 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first, each entry carrying its increment
	assert.Equal(t, 70.0, entries[0].ProgressRate)
	assert.Equal(t, 15, entries[0].SpentMinutes)
	assert.Equal(t, 30.0, entries[1].ProgressRate)
	assert.Equal(t, 10, entries[1].SpentMinutes)
	assert.Equal(t, "usr1", entries[0].ChangedBy)

	// pagination
	entries, err = env.svc.History(ctx, "usr1", "mat1", 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 30.0, entries[0].ProgressRate)

	// limit 0 selects no rows, as LIMIT 0 does
	entries, err = env.svc.History(ctx, "usr1", "mat1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// unknown material
	_, err = env.svc.History(ctx, "usr1", "lol", 100, 0)
	assert.True(t, core.IsNotFound(err))

	// another user's material is an empty trail, not an error
	entries, err = env.svc.History(ctx, "usr2", "mat1", 100, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_Summaries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	_, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 100})
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, "usr1", "mat2", progress.SubmitProgress{ProgressRate: 50})
	require.NoError(t, err)

	lesson, err := env.svc.LessonSummaryFor(ctx, "usr1", "lsn1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, lesson.AggregateProgressRate) // (100 + 50 + 0) / 3
	assert.Equal(t, 1, lesson.CompletedMaterialCount)
	assert.Equal(t, 3, lesson.TotalMaterialCount)

	course, err := env.svc.CourseSummaryFor(ctx, "usr1", "crs1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, course.AggregateProgressRate) // (50 + 0) / 2
	assert.Equal(t, 0, course.CompletedLessonCount)
	assert.Equal(t, 2, course.TotalLessonCount)

	// unknown ids surface as not-found
	_, err = env.svc.LessonSummaryFor(ctx, "usr1", "lol")
	assert.True(t, core.IsNotFound(err))
	_, err = env.svc.CourseSummaryFor(ctx, "usr1", "lol")
	assert.True(t, core.IsNotFound(err))
}

func TestService_Streak(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	// no activity yet: zero state, not an error
	streak, err := env.svc.Streak(ctx, "usr1")
	require.NoError(t, err)
	assert.Equal(t, progress.StreakState{UserID: "usr1"}, streak)

	_, err = env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 10})
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, "usr1", "mat2", progress.SubmitProgress{ProgressRate: 10})
	require.NoError(t, err)

	streak, err = env.svc.Streak(ctx, "usr1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreakDays) // same-day submissions count once
	assert.Equal(t, 1, streak.LongestStreakDays)
	assert.Equal(t, progress.DateOf(time.Now()), streak.LastActiveDate)
}

func TestService_Statistics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	seedCatalog(env.db)

	_, err := env.svc.Submit(ctx, "usr1", "mat1", progress.SubmitProgress{ProgressRate: 40, SpentMinutes: intPtr(20)})
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, "usr1", "mat4", progress.SubmitProgress{ProgressRate: 100, SpentMinutes: intPtr(30)})
	require.NoError(t, err)

	today := progress.DateOf(time.Now())
	points, err := env.svc.Statistics(ctx, "usr1", today, today.AddDate(0, 0, 1), progress.GranularityDay)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 50, points[0].SpentMinutes)
	assert.Equal(t, 1, points[0].CompletedMaterialCount)
	assert.Equal(t, 70.0, points[0].AverageProgressRate)

	// validation failures
	var vErr *core.ValidationError
	_, err = env.svc.Statistics(ctx, "usr1", today, today, "lol")
	assert.ErrorAs(t, err, &vErr)
	_, err = env.svc.Statistics(ctx, "usr1", today.Add(time.Hour), today, progress.GranularityDay)
	assert.ErrorAs(t, err, &vErr)
}
