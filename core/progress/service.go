// Package progress implements the progress aggregation and audit engine:
// leaf-level progress records, an append-only audit history, completion
// detection, lesson/course rollups and derived analytics (streaks, bucketed
// study statistics).
package progress

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/catalog"
)

var (
	// errors
	ErrLeafNotFound         = errors.New("progress record not found")
	ErrHistoryEntryNotFound = errors.New("history entry not found")
	ErrSummaryNotFound      = errors.New("summary not found")
	ErrStreakNotFound       = errors.New("streak not found")
	// ErrDuplicateRequest is returned by AppendHistory when the entry's
	// request id was already recorded, however long ago.
	ErrDuplicateRequest = errors.New("request id already recorded")

	errManualNotAllowed = errors.New("this material does not support manual progress tracking")
	errRateOutOfRange   = errors.New("progress rate must be between 0 and 100")
	errSpentNegative    = errors.New("spent minutes cannot be negative")
	errBadDateRange     = errors.New("start date must not be after end date")
)

type (
	// Repository is the persistence boundary of the engine. History is
	// append-only by construction: no update or delete method exists.
	// All leaf mutations go through UpsertLeaf; no component bypasses it.
	Repository interface {
		GetLeaf(ctx context.Context, userID, materialID string, exec ...core.DBExecutor) (LeafProgress, error)
		// GetLeafForUpdate locks the (user, material) row for the remainder of
		// the enclosing transaction, serializing concurrent updates to it.
		GetLeafForUpdate(ctx context.Context, userID, materialID string, exec ...core.DBExecutor) (LeafProgress, error)
		// UpsertLeaf writes all fields or none.
		UpsertLeaf(ctx context.Context, leaf LeafProgress, exec ...core.DBExecutor) (LeafProgress, error)
		QueryLeaves(ctx context.Context, userID string, materialIDs []string, exec ...core.DBExecutor) ([]LeafProgress, error)

		AppendHistory(ctx context.Context, entry HistoryEntry, exec ...core.DBExecutor) (HistoryEntry, error)
		// QueryHistory returns entries newest first, restartable via offset.
		QueryHistory(ctx context.Context, userID, materialID string, limit, offset int, exec ...core.DBExecutor) ([]HistoryEntry, error)
		GetHistoryByRequestID(ctx context.Context, requestID string, since time.Time, exec ...core.DBExecutor) (HistoryEntry, error)
		// QueryActivity returns one record per history entry in [start, end],
		// each joined with the rate it superseded.
		QueryActivity(ctx context.Context, userID string, start, end time.Time, exec ...core.DBExecutor) ([]ActivityRecord, error)

		GetLessonSummary(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (LessonSummary, error)
		UpsertLessonSummary(ctx context.Context, summary LessonSummary, exec ...core.DBExecutor) error
		GetCourseSummary(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (CourseSummary, error)
		UpsertCourseSummary(ctx context.Context, summary CourseSummary, exec ...core.DBExecutor) error

		GetStreak(ctx context.Context, userID string, exec ...core.DBExecutor) (StreakState, error)
		UpsertStreak(ctx context.Context, streak StreakState, exec ...core.DBExecutor) error
	}

	Service struct {
		db      core.DB
		repo    Repository
		catalog *catalog.Service
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

func NewService(
	db core.DB,
	repo Repository,
	catalogSvc *catalog.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		catalog: catalogSvc,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// Submit records one manual progress update on a material for userID and rolls
// it up: leaf upsert, history append, lesson + course summary recompute and
// streak advance all happen in a single transaction. Concurrent submissions to
// the same (user, material) serialize on the leaf row lock; last commit wins.
func (svc *Service) Submit(ctx context.Context, userID, materialID string, sp SubmitProgress) (SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.conf.Server.RequestTimeout)
	defer cancel()

	var res SubmitResult

	// domain preconditions; checked even if the caller skipped shape validation
	if sp.ProgressRate < 0 || sp.ProgressRate > 100 {
		return res, core.NewValidationError(errRateOutOfRange,
			core.FieldError{Field: "progress_rate", Error: errRateOutOfRange.Error()})
	}
	if sp.SpentMinutes != nil && *sp.SpentMinutes < 0 {
		return res, core.NewValidationError(errSpentNegative,
			core.FieldError{Field: "spent_minutes", Error: errSpentNegative.Error()})
	}

	mat, err := svc.catalog.GetMaterial(ctx, materialID)
	if err != nil {
		if pkgerrors.Cause(err) == catalog.ErrMaterialNotFound {
			return res, core.NewNotFoundError("material", materialID)
		}
		return res, pkgerrors.Wrap(err, "fetching material")
	}
	if !mat.IsPublished {
		return res, core.NewNotFoundError("material", materialID)
	}
	if !mat.AllowsManualProgress {
		return res, core.NewValidationError(errManualNotAllowed,
			core.FieldError{Field: "progress_rate", Error: errManualNotAllowed.Error()})
	}

	now := time.Now().UTC()
	rate := core.Round2(sp.ProgressRate)
	var transition CompletionTransition

	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		// replay of an already-committed request: acknowledge without re-applying
		if sp.RequestID != "" {
			since := now.Add(-svc.conf.Progress.IdempotencyWindow)
			if _, err := svc.repo.GetHistoryByRequestID(ctx, sp.RequestID, since, tx); err == nil {
				return svc.loadResult(ctx, userID, mat, &res, tx)
			} else if pkgerrors.Cause(err) != ErrHistoryEntryNotFound {
				return pkgerrors.Wrap(err, "checking request id")
			}
		}

		var prevRate *float64
		leaf, err := svc.repo.GetLeafForUpdate(ctx, userID, materialID, tx)
		switch pkgerrors.Cause(err) {
		case nil:
			prev := leaf.ProgressRate
			prevRate = &prev
		case ErrLeafNotFound:
			leaf = LeafProgress{
				UserID:     userID,
				CourseID:   mat.CourseID,
				LessonID:   mat.LessonID,
				MaterialID: materialID,
			}
		default:
			return pkgerrors.Wrap(err, "fetching leaf progress")
		}

		transition = ClassifyCompletion(prevRate, rate)

		leaf.ProgressKind = KindManual
		leaf.ProgressRate = rate
		leaf.ManualProgressRate = &rate
		var spent int
		if sp.SpentMinutes != nil {
			spent = *sp.SpentMinutes
		}
		leaf.SpentMinutes += spent
		if sp.Note != "" {
			leaf.Note = sp.Note
		}
		leaf.LastUpdatedAt = now
		if transition.BecameCompleted {
			completedAt := now
			leaf.IsCompleted = true
			leaf.CompletionDate = &completedAt
		} else if transition.BecameIncomplete && !svc.conf.Progress.MonotonicCompletion {
			leaf.IsCompleted = false
			leaf.CompletionDate = nil
		}

		if leaf, err = svc.repo.UpsertLeaf(ctx, leaf, tx); err != nil {
			return pkgerrors.Wrap(err, "upserting leaf progress")
		}

		entry := HistoryEntry{
			LeafProgressID: leaf.ID,
			ProgressRate:   rate,
			SpentMinutes:   spent,
			ChangedBy:      userID,
			Note:           sp.Note,
			RequestID:      sp.RequestID,
			CreatedAt:      now,
		}
		if _, err = svc.repo.AppendHistory(ctx, entry, tx); err != nil {
			return pkgerrors.Wrap(err, "appending history entry")
		}

		res.LeafProgress = leaf
		if res.LessonSummary, err = svc.recomputeLessonOrDegrade(ctx, tx, userID, leaf.LessonID); err != nil {
			return err
		}
		if res.CourseSummary, err = svc.recomputeCourseOrDegrade(ctx, tx, userID, leaf.CourseID); err != nil {
			return err
		}

		streak, err := svc.repo.GetStreak(ctx, userID, tx)
		if err != nil && pkgerrors.Cause(err) != ErrStreakNotFound {
			return pkgerrors.Wrap(err, "fetching streak")
		}
		streak.UserID = userID
		if err = svc.repo.UpsertStreak(ctx, advanceStreak(streak, now), tx); err != nil {
			return pkgerrors.Wrap(err, "updating streak")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.Cause(err) != ErrDuplicateRequest {
			return SubmitResult{}, err
		}
		// replay that outlived the dedup window: the history unique index
		// caught it, so acknowledge from committed state without re-applying
		res = SubmitResult{}
		if err = svc.loadResult(ctx, userID, mat, &res); err != nil {
			return SubmitResult{}, err
		}
		return res, nil
	}

	if transition.BecameCompleted && res.CourseSummary.AggregateProgressRate >= completedRate {
		svc.sendCourseCompletedMail(ctx, res.CourseSummary.CourseID, sp.ActorEmail)
	}
	return res, nil
}

// recomputeLessonOrDegrade falls back to the stored summary when the lesson
// reference turns out to be orphaned: the anomaly is reported, the recompute
// skipped, and the leaf write still commits (the leaf is the source of truth).
// Any other failure aborts the enclosing transaction; a submit never commits
// with aggregates it could not recompute.
func (svc *Service) recomputeLessonOrDegrade(ctx context.Context, tx core.DBTransactor, userID, lessonID string) (LessonSummary, error) {
	summary, err := svc.recomputeLesson(ctx, userID, lessonID, tx)
	if err == nil {
		return summary, nil
	}
	if !core.IsConsistencyError(err) {
		return LessonSummary{}, pkgerrors.Wrap(err, "recomputing lesson summary")
	}
	svc.logger.Warn(fmt.Sprintf("skipping lesson recompute: %v", err), err)
	if stored, err := svc.repo.GetLessonSummary(ctx, userID, lessonID, tx); err == nil {
		return stored, nil
	}
	return LessonSummary{LessonID: lessonID, UserID: userID}, nil
}

func (svc *Service) recomputeCourseOrDegrade(ctx context.Context, tx core.DBTransactor, userID, courseID string) (CourseSummary, error) {
	summary, err := svc.recomputeCourse(ctx, userID, courseID, tx)
	if err == nil {
		return summary, nil
	}
	if !core.IsConsistencyError(err) {
		return CourseSummary{}, pkgerrors.Wrap(err, "recomputing course summary")
	}
	svc.logger.Warn(fmt.Sprintf("skipping course recompute: %v", err), err)
	if stored, err := svc.repo.GetCourseSummary(ctx, userID, courseID, tx); err == nil {
		return stored, nil
	}
	return CourseSummary{CourseID: courseID, UserID: userID}, nil
}

// loadResult assembles the response for a deduplicated replay from current
// stored state, without applying any write.
func (svc *Service) loadResult(ctx context.Context, userID string, mat catalog.Material, res *SubmitResult, exec ...core.DBExecutor) error {
	leaf, err := svc.repo.GetLeaf(ctx, userID, mat.ID, exec...)
	if err != nil {
		return pkgerrors.Wrap(err, "fetching leaf progress")
	}
	res.LeafProgress = leaf
	if res.LessonSummary, err = svc.repo.GetLessonSummary(ctx, userID, mat.LessonID, exec...); err != nil {
		return pkgerrors.Wrap(err, "fetching lesson summary")
	}
	if res.CourseSummary, err = svc.repo.GetCourseSummary(ctx, userID, mat.CourseID, exec...); err != nil {
		return pkgerrors.Wrap(err, "fetching course summary")
	}
	return nil
}

func (svc *Service) sendCourseCompletedMail(ctx context.Context, courseID, email string) {
	if svc.mailSvc == nil || email == "" {
		return
	}
	course, err := svc.catalog.GetCourse(ctx, courseID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("fetching completed course %s: %v", courseID, err), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: email}},
		Subject: fmt.Sprintf("Congratulations! You completed %s", course.Title),
		BodyStr: fmt.Sprintf(
			"You just reached 100%% on %q. Well done, keep the streak going!", course.Title),
	})
}

// History returns the audit trail of one (user, material), newest first.
func (svc *Service) History(ctx context.Context, userID, materialID string, limit, offset int) ([]HistoryEntry, error) {
	if _, err := svc.catalog.GetMaterial(ctx, materialID); err != nil {
		if pkgerrors.Cause(err) == catalog.ErrMaterialNotFound {
			return nil, core.NewNotFoundError("material", materialID)
		}
		return nil, pkgerrors.Wrap(err, "fetching material")
	}
	return svc.repo.QueryHistory(ctx, userID, materialID, limit, offset)
}

// LessonSummaryFor recomputes and returns the lesson summary, always fresh.
func (svc *Service) LessonSummaryFor(ctx context.Context, userID, lessonID string) (LessonSummary, error) {
	summary, err := svc.recomputeLesson(ctx, userID, lessonID)
	if core.IsConsistencyError(err) {
		return summary, core.NewNotFoundError("lesson", lessonID)
	}
	return summary, err
}

// CourseSummaryFor recomputes and returns the course summary, always fresh.
func (svc *Service) CourseSummaryFor(ctx context.Context, userID, courseID string) (CourseSummary, error) {
	summary, err := svc.recomputeCourse(ctx, userID, courseID)
	if core.IsConsistencyError(err) {
		return summary, core.NewNotFoundError("course", courseID)
	}
	return summary, err
}

// Streak returns the user's streak state; a user with no recorded activity
// gets a zero state rather than an error.
func (svc *Service) Streak(ctx context.Context, userID string) (StreakState, error) {
	streak, err := svc.repo.GetStreak(ctx, userID)
	if err != nil {
		if pkgerrors.Cause(err) == ErrStreakNotFound {
			return StreakState{UserID: userID}, nil
		}
		return StreakState{}, pkgerrors.Wrap(err, "fetching streak")
	}
	return streak, nil
}

// Statistics buckets the user's activity between start and end into a gapless
// day/week/month time series.
func (svc *Service) Statistics(ctx context.Context, userID string, start, end time.Time, granularity string) ([]TimeSeriesPoint, error) {
	granularity, err := ParseGranularity(granularity)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "granularity", Error: err.Error()})
	}
	if start.After(end) {
		return nil, core.NewValidationError(errBadDateRange, core.FieldError{Field: "start", Error: errBadDateRange.Error()})
	}
	records, err := svc.repo.QueryActivity(ctx, userID, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetching activity")
	}
	return BuildTimeSeries(records, start, end, granularity), nil
}
