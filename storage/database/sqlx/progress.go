package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
)

const leafColumns = `id, user_id, course_id, lesson_id, material_id, progress_kind, progress_rate,
	manual_progress_rate, spent_minutes, is_completed, completion_date, note, last_updated_at`

const historyColumns = `id, leaf_progress_id, progress_rate, spent_minutes, changed_by, note, request_id, created_at`

type progressRepository struct {
	db *sqlx.DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *sqlx.DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo progressRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLeaf(row rowScanner) (progress.LeafProgress, error) {
	var r leafRow
	err := row.Scan(
		&r.ID, &r.UserID, &r.CourseID, &r.LessonID, &r.MaterialID, &r.ProgressKind, &r.ProgressRate,
		&r.ManualProgressRate, &r.SpentMinutes, &r.IsCompleted, &r.CompletionDate, &r.Note, &r.LastUpdatedAt,
	)
	if err != nil {
		return progress.LeafProgress{}, err
	}
	return r.toCore(), nil
}

func scanHistory(row rowScanner) (progress.HistoryEntry, error) {
	var r historyRow
	err := row.Scan(
		&r.ID, &r.LeafProgressID, &r.ProgressRate, &r.SpentMinutes, &r.ChangedBy, &r.Note, &r.RequestID, &r.CreatedAt,
	)
	if err != nil {
		return progress.HistoryEntry{}, err
	}
	return r.toCore(), nil
}

func (repo progressRepository) getLeaf(ctx context.Context, userID, materialID, suffix string, exec core.DBExecutor) (progress.LeafProgress, error) {
	query := `SELECT ` + leafColumns + ` FROM leaf_progress WHERE user_id = $1 AND material_id = $2` + suffix
	leaf, err := scanLeaf(exec.QueryRowContext(ctx, query, userID, materialID))
	if err == sql.ErrNoRows {
		return leaf, progress.ErrLeafNotFound
	}
	return leaf, errors.Wrap(err, "querying leaf progress")
}

func (repo progressRepository) GetLeaf(ctx context.Context, userID, materialID string, exec ...core.DBExecutor) (progress.LeafProgress, error) {
	return repo.getLeaf(ctx, userID, materialID, "", repo.getExec(exec))
}

func (repo progressRepository) GetLeafForUpdate(ctx context.Context, userID, materialID string, exec ...core.DBExecutor) (progress.LeafProgress, error) {
	return repo.getLeaf(ctx, userID, materialID, " FOR UPDATE", repo.getExec(exec))
}

func (repo progressRepository) UpsertLeaf(ctx context.Context, leaf progress.LeafProgress, exec ...core.DBExecutor) (progress.LeafProgress, error) {
	r := boilLeaf(leaf)
	query := `
		INSERT INTO leaf_progress (user_id, course_id, lesson_id, material_id, progress_kind, progress_rate,
			manual_progress_rate, spent_minutes, is_completed, completion_date, note, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, material_id) DO UPDATE SET
			progress_kind = EXCLUDED.progress_kind,
			progress_rate = EXCLUDED.progress_rate,
			manual_progress_rate = EXCLUDED.manual_progress_rate,
			spent_minutes = EXCLUDED.spent_minutes,
			is_completed = EXCLUDED.is_completed,
			completion_date = EXCLUDED.completion_date,
			note = EXCLUDED.note,
			last_updated_at = EXCLUDED.last_updated_at
		RETURNING ` + leafColumns
	saved, err := scanLeaf(repo.getExec(exec).QueryRowContext(ctx, query,
		r.UserID, r.CourseID, r.LessonID, r.MaterialID, r.ProgressKind, r.ProgressRate,
		r.ManualProgressRate, r.SpentMinutes, r.IsCompleted, r.CompletionDate, r.Note, r.LastUpdatedAt,
	))
	return saved, errors.Wrap(err, "upserting leaf progress")
}

func (repo progressRepository) QueryLeaves(ctx context.Context, userID string, materialIDs []string, exec ...core.DBExecutor) ([]progress.LeafProgress, error) {
	if len(materialIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT `+leafColumns+` FROM leaf_progress WHERE user_id = ? AND material_id IN (?)`,
		userID, materialIDs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "expanding material ids")
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	rows, err := repo.getExec(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying leaf progress")
	}
	defer func() { _ = rows.Close() }()

	var leaves []progress.LeafProgress
	for rows.Next() {
		leaf, err := scanLeaf(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning leaf progress")
		}
		leaves = append(leaves, leaf)
	}
	return leaves, errors.Wrap(rows.Err(), "querying leaf progress")
}

func (repo progressRepository) AppendHistory(ctx context.Context, entry progress.HistoryEntry, exec ...core.DBExecutor) (progress.HistoryEntry, error) {
	query := `
		INSERT INTO progress_history (leaf_progress_id, progress_rate, spent_minutes, changed_by, note, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + historyColumns
	saved, err := scanHistory(repo.getExec(exec).QueryRowContext(ctx, query,
		entry.LeafProgressID, entry.ProgressRate, entry.SpentMinutes, entry.ChangedBy,
		null.NewString(entry.Note, entry.Note != ""), null.NewString(entry.RequestID, entry.RequestID != ""),
		entry.CreatedAt.UTC(),
	))
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == "progress_history_request_idx" {
		return saved, progress.ErrDuplicateRequest
	}
	return saved, errors.Wrap(err, "appending history entry")
}

// historyOrdering is the audit trail contract: newest first, ties broken by
// insertion order.
var historyOrdering = []core.DBOrdering{
	{Field: "h.created_at"},
	{Field: "h.id"},
}

func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, len(ordering))
	for i, ord := range ordering {
		clauses[i] = ord.String()
	}
	return strings.Join(clauses, ", ")
}

func (repo progressRepository) QueryHistory(ctx context.Context, userID, materialID string, limit, offset int, exec ...core.DBExecutor) ([]progress.HistoryEntry, error) {
	query := `
		SELECT h.id, h.leaf_progress_id, h.progress_rate, h.spent_minutes, h.changed_by, h.note, h.request_id, h.created_at
		FROM progress_history h
		JOIN leaf_progress lp ON lp.id = h.leaf_progress_id
		WHERE lp.user_id = $1 AND lp.material_id = $2
		ORDER BY ` + orderBy(historyOrdering) + `
		LIMIT $3 OFFSET $4`
	rows, err := repo.getExec(exec).QueryContext(ctx, query, userID, materialID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "querying history")
	}
	defer func() { _ = rows.Close() }()

	var entries []progress.HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning history entry")
		}
		entries = append(entries, entry)
	}
	return entries, errors.Wrap(rows.Err(), "querying history")
}

func (repo progressRepository) GetHistoryByRequestID(ctx context.Context, requestID string, since time.Time, exec ...core.DBExecutor) (progress.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM progress_history WHERE request_id = $1 AND created_at >= $2`
	entry, err := scanHistory(repo.getExec(exec).QueryRowContext(ctx, query, requestID, since.UTC()))
	if err == sql.ErrNoRows {
		return entry, progress.ErrHistoryEntryNotFound
	}
	return entry, errors.Wrap(err, "querying history by request id")
}

func (repo progressRepository) QueryActivity(ctx context.Context, userID string, start, end time.Time, exec ...core.DBExecutor) ([]progress.ActivityRecord, error) {
	// lag() runs over each leaf's full history so the first entry inside the
	// range still sees the rate it superseded.
	query := `
		SELECT sub.leaf_progress_id, sub.material_id, sub.progress_rate, sub.prev_progress_rate, sub.spent_minutes, sub.created_at
		FROM (
			SELECT h.leaf_progress_id, lp.material_id, h.progress_rate, h.spent_minutes, h.created_at,
				lag(h.progress_rate) OVER (PARTITION BY h.leaf_progress_id ORDER BY h.id) AS prev_progress_rate
			FROM progress_history h
			JOIN leaf_progress lp ON lp.id = h.leaf_progress_id
			WHERE lp.user_id = $1
		) sub
		WHERE sub.created_at >= $2 AND sub.created_at <= $3
		ORDER BY sub.created_at, sub.leaf_progress_id`
	rows, err := repo.getExec(exec).QueryContext(ctx, query, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying activity")
	}
	defer func() { _ = rows.Close() }()

	var records []progress.ActivityRecord
	for rows.Next() {
		var rec progress.ActivityRecord
		var materialID, prevRate = null.String{}, null.Float64{}
		if err = rows.Scan(&rec.LeafProgressID, &materialID, &rec.ProgressRate, &prevRate, &rec.SpentMinutes, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning activity record")
		}
		rec.MaterialID = materialID.String
		rec.PrevProgressRate = prevRate.Ptr()
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "querying activity")
}

func (repo progressRepository) GetLessonSummary(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (progress.LessonSummary, error) {
	var s progress.LessonSummary
	query := `SELECT user_id, lesson_id, aggregate_progress_rate, completed_material_count, total_material_count
		FROM lesson_summary WHERE user_id = $1 AND lesson_id = $2`
	err := repo.getExec(exec).QueryRowContext(ctx, query, userID, lessonID).Scan(
		&s.UserID, &s.LessonID, &s.AggregateProgressRate, &s.CompletedMaterialCount, &s.TotalMaterialCount,
	)
	if err == sql.ErrNoRows {
		return s, progress.ErrSummaryNotFound
	}
	return s, errors.Wrap(err, "querying lesson summary")
}

func (repo progressRepository) UpsertLessonSummary(ctx context.Context, summary progress.LessonSummary, exec ...core.DBExecutor) error {
	query := `
		INSERT INTO lesson_summary (user_id, lesson_id, aggregate_progress_rate, completed_material_count, total_material_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			aggregate_progress_rate = EXCLUDED.aggregate_progress_rate,
			completed_material_count = EXCLUDED.completed_material_count,
			total_material_count = EXCLUDED.total_material_count`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		summary.UserID, summary.LessonID, summary.AggregateProgressRate,
		summary.CompletedMaterialCount, summary.TotalMaterialCount,
	)
	return errors.Wrap(err, "upserting lesson summary")
}

func (repo progressRepository) GetCourseSummary(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (progress.CourseSummary, error) {
	var s progress.CourseSummary
	query := `SELECT user_id, course_id, aggregate_progress_rate, completed_lesson_count, total_lesson_count
		FROM course_summary WHERE user_id = $1 AND course_id = $2`
	err := repo.getExec(exec).QueryRowContext(ctx, query, userID, courseID).Scan(
		&s.UserID, &s.CourseID, &s.AggregateProgressRate, &s.CompletedLessonCount, &s.TotalLessonCount,
	)
	if err == sql.ErrNoRows {
		return s, progress.ErrSummaryNotFound
	}
	return s, errors.Wrap(err, "querying course summary")
}

func (repo progressRepository) UpsertCourseSummary(ctx context.Context, summary progress.CourseSummary, exec ...core.DBExecutor) error {
	query := `
		INSERT INTO course_summary (user_id, course_id, aggregate_progress_rate, completed_lesson_count, total_lesson_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			aggregate_progress_rate = EXCLUDED.aggregate_progress_rate,
			completed_lesson_count = EXCLUDED.completed_lesson_count,
			total_lesson_count = EXCLUDED.total_lesson_count`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		summary.UserID, summary.CourseID, summary.AggregateProgressRate,
		summary.CompletedLessonCount, summary.TotalLessonCount,
	)
	return errors.Wrap(err, "upserting course summary")
}

func (repo progressRepository) GetStreak(ctx context.Context, userID string, exec ...core.DBExecutor) (progress.StreakState, error) {
	var s progress.StreakState
	query := `SELECT user_id, current_streak_days, longest_streak_days, last_active_date
		FROM streak_state WHERE user_id = $1`
	err := repo.getExec(exec).QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.CurrentStreakDays, &s.LongestStreakDays, &s.LastActiveDate,
	)
	if err == sql.ErrNoRows {
		return s, progress.ErrStreakNotFound
	}
	s.LastActiveDate = s.LastActiveDate.UTC()
	return s, errors.Wrap(err, "querying streak")
}

func (repo progressRepository) UpsertStreak(ctx context.Context, streak progress.StreakState, exec ...core.DBExecutor) error {
	query := `
		INSERT INTO streak_state (user_id, current_streak_days, longest_streak_days, last_active_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak_days = EXCLUDED.current_streak_days,
			longest_streak_days = EXCLUDED.longest_streak_days,
			last_active_date = EXCLUDED.last_active_date`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		streak.UserID, streak.CurrentStreakDays, streak.LongestStreakDays, streak.LastActiveDate,
	)
	return errors.Wrap(err, "upserting streak")
}
