package progress

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/catalog"
)

// recomputeLesson re-derives a lesson summary from current leaf state: the
// arithmetic mean of progress rates over the lesson's published materials,
// a material with no leaf record counting as 0. The summary row is persisted;
// the call is idempotent and safe to repeat.
func (svc *Service) recomputeLesson(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (LessonSummary, error) {
	summary := LessonSummary{LessonID: lessonID, UserID: userID}

	if _, err := svc.catalog.GetLesson(ctx, lessonID, exec...); err != nil {
		if errors.Cause(err) == catalog.ErrLessonNotFound {
			return summary, core.NewConsistencyError("lesson", lessonID, err)
		}
		return summary, errors.Wrap(err, "fetching lesson")
	}

	materials, err := svc.catalog.PublishedMaterials(ctx, lessonID, exec...)
	if err != nil {
		return summary, errors.Wrap(err, "fetching published materials")
	}
	summary.TotalMaterialCount = len(materials)
	if len(materials) == 0 {
		if err = svc.repo.UpsertLessonSummary(ctx, summary, exec...); err != nil {
			return summary, errors.Wrap(err, "saving lesson summary")
		}
		return summary, nil
	}

	materialIDs := make([]string, len(materials))
	for i, mat := range materials {
		materialIDs[i] = mat.ID
	}
	leaves, err := svc.repo.QueryLeaves(ctx, userID, materialIDs, exec...)
	if err != nil {
		return summary, errors.Wrap(err, "fetching leaf progress")
	}

	var sum float64
	for _, leaf := range leaves {
		sum += leaf.ProgressRate
		if leaf.IsCompleted {
			summary.CompletedMaterialCount++
		}
	}
	summary.AggregateProgressRate = core.Round2(sum / float64(len(materials)))

	if err = svc.repo.UpsertLessonSummary(ctx, summary, exec...); err != nil {
		return summary, errors.Wrap(err, "saving lesson summary")
	}
	return summary, nil
}

// recomputeCourse re-derives a course summary as the mean of its published
// lessons' summary rates. Each lesson summary is recomputed in turn (never
// read from cache) so the course always reflects current leaf state. Lessons
// with zero published materials are excluded from the denominator.
func (svc *Service) recomputeCourse(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (CourseSummary, error) {
	summary := CourseSummary{CourseID: courseID, UserID: userID}

	if _, err := svc.catalog.GetCourse(ctx, courseID, exec...); err != nil {
		if errors.Cause(err) == catalog.ErrCourseNotFound {
			return summary, core.NewConsistencyError("course", courseID, err)
		}
		return summary, errors.Wrap(err, "fetching course")
	}

	lessons, err := svc.catalog.PublishedLessons(ctx, courseID, exec...)
	if err != nil {
		return summary, errors.Wrap(err, "fetching published lessons")
	}

	var sum float64
	for _, lesson := range lessons {
		ls, err := svc.recomputeLesson(ctx, userID, lesson.ID, exec...)
		if err != nil {
			return summary, errors.Wrapf(err, "recomputing lesson %s", lesson.ID)
		}
		if ls.TotalMaterialCount == 0 {
			continue
		}
		summary.TotalLessonCount++
		sum += ls.AggregateProgressRate
		if ls.CompletedMaterialCount == ls.TotalMaterialCount {
			summary.CompletedLessonCount++
		}
	}
	if summary.TotalLessonCount > 0 {
		summary.AggregateProgressRate = core.Round2(sum / float64(summary.TotalLessonCount))
	}

	if err = svc.repo.UpsertCourseSummary(ctx, summary, exec...); err != nil {
		return summary, errors.Wrap(err, "saving course summary")
	}
	return summary, nil
}

// RecomputeLesson recomputes and persists one lesson summary outside the
// submit path (summary reads, admin backfill).
func (svc *Service) RecomputeLesson(ctx context.Context, userID, lessonID string) (LessonSummary, error) {
	return svc.recomputeLesson(ctx, userID, lessonID)
}

// RecomputeCourse recomputes and persists one course summary and all its
// lesson summaries.
func (svc *Service) RecomputeCourse(ctx context.Context, userID, courseID string) (CourseSummary, error) {
	return svc.recomputeCourse(ctx, userID, courseID)
}
