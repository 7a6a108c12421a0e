package progress

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maendeleo/core"
)

// Progress kinds
const (
	KindAutomatic = "AUTOMATIC"
	KindManual    = "MANUAL"
)

// LeafProgress is the finest-grained progress record, one per (user, material).
// It is the source of truth; lesson and course summaries are derived from it.
type LeafProgress struct {
	ID           int64   `json:"id"`
	UserID       string  `json:"user_id"`
	CourseID     string  `json:"course_id"`
	LessonID     string  `json:"lesson_id"`
	MaterialID   string  `json:"material_id"`
	ProgressKind string  `json:"progress_kind"`
	ProgressRate float64 `json:"progress_rate"` // [0,100], 2 decimals
	// ManualProgressRate is set iff ProgressKind = MANUAL, and equals ProgressRate.
	ManualProgressRate *float64   `json:"manual_progress_rate,omitempty"`
	SpentMinutes       int        `json:"spent_minutes"` // cumulative
	IsCompleted        bool       `json:"is_completed"`
	CompletionDate     *time.Time `json:"completion_date,omitempty"`
	Note               string     `json:"note,omitempty"`
	LastUpdatedAt      time.Time  `json:"last_updated_at"` // UTC
}

// HistoryEntry is an immutable audit record capturing a leaf progress change.
// Exactly one entry is appended per accepted write; entries are never updated
// or deleted (cascading deletion of the owning leaf aside).
type HistoryEntry struct {
	ID             int64   `json:"id"`
	LeafProgressID int64   `json:"leaf_progress_id"`
	ProgressRate   float64 `json:"progress_rate"`
	// SpentMinutes is the increment submitted with this change, not the
	// cumulative total; bucketed statistics sum these per period.
	SpentMinutes int       `json:"spent_minutes"`
	ChangedBy    string    `json:"changed_by"`
	Note         string    `json:"note,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// LessonSummary is derived state: the mean progress over all published
// materials of a lesson, a published material with no leaf record counting as 0.
type LessonSummary struct {
	LessonID               string  `json:"lesson_id"`
	UserID                 string  `json:"user_id"`
	AggregateProgressRate  float64 `json:"aggregate_progress_rate"`
	CompletedMaterialCount int     `json:"completed_material_count"`
	TotalMaterialCount     int     `json:"total_material_count"`
}

// CourseSummary is derived state: the mean of lesson summary rates over all
// published lessons with at least one published material.
type CourseSummary struct {
	CourseID              string  `json:"course_id"`
	UserID                string  `json:"user_id"`
	AggregateProgressRate float64 `json:"aggregate_progress_rate"`
	CompletedLessonCount  int     `json:"completed_lesson_count"`
	TotalLessonCount      int     `json:"total_lesson_count"`
}

// StreakState tracks consecutive calendar days (UTC) with recorded activity.
// A streak is always >= 1 on any active day; a gap resets it to 1, not 0.
type StreakState struct {
	UserID            string    `json:"user_id"`
	CurrentStreakDays int       `json:"current_streak_days"`
	LongestStreakDays int       `json:"longest_streak_days"`
	LastActiveDate    time.Time `json:"last_active_date"` // date only, UTC
}

// TimeSeriesPoint is one bucket of study statistics. Buckets with no activity
// are still emitted with zero values so charting needs no gap handling.
type TimeSeriesPoint struct {
	BucketDate             time.Time `json:"bucket_date"`
	SpentMinutes           int       `json:"spent_minutes"`
	CompletedMaterialCount int       `json:"completed_material_count"`
	AverageProgressRate    float64   `json:"average_progress_rate"`
}

// ActivityRecord is the read model the statistics aggregator consumes: one
// history entry joined with the rate it superseded.
type ActivityRecord struct {
	LeafProgressID   int64
	MaterialID       string
	ProgressRate     float64
	PrevProgressRate *float64
	SpentMinutes     int
	CreatedAt        time.Time
}

// SubmitProgress contains the information needed to record a manual progress
// update on one material.
type SubmitProgress struct {
	ProgressRate float64 `json:"progress_rate" validate:"rate"`
	SpentMinutes *int    `json:"spent_minutes,omitempty" validate:"omitempty,min=0"`
	Note         string  `json:"note,omitempty" validate:"max=1000"`
	// RequestID is an optional client-generated idempotency key; retried
	// submissions carrying the same id within the dedup window are not re-applied.
	RequestID  string `json:"request_id,omitempty" validate:"omitempty,uuid4"`
	ActorEmail string `json:"-"`
}

func (sp *SubmitProgress) Validate(validate *validator.Validate) error {
	sp.Note = core.CleanString(sp.Note)
	return validate.Struct(sp)
}

// SubmitResult is returned to the caller once an update is acknowledged.
type SubmitResult struct {
	LeafProgress  LeafProgress  `json:"leaf_progress"`
	LessonSummary LessonSummary `json:"lesson_summary"`
	CourseSummary CourseSummary `json:"course_summary"`
}

var (
	// custom validation tags & texts
	rateTag  = "rate"
	rateText = "progress rate must be between 0 and 100"
)

// InitValidators registers this package's custom validators and translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(rateTag, rateValidation)
	core.RegisterCustomTranslation(validate, translator, rateTag, rateText)
}

// rateValidation enforces the [0,100] progress rate range.
func rateValidation(fl validator.FieldLevel) bool {
	rate := fl.Field().Float()
	return rate >= 0 && rate <= 100
}
