package sqlxrepos

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maendeleo/core/progress"
)

// row types mirror table layouts; nullable columns use null.* wrappers and are
// converted at the repository boundary so core models keep pointer semantics.

type leafRow struct {
	ID                 int64
	UserID             string
	CourseID           string
	LessonID           string
	MaterialID         null.String
	ProgressKind       string
	ProgressRate       float64
	ManualProgressRate null.Float64
	SpentMinutes       int
	IsCompleted        bool
	CompletionDate     null.Time
	Note               null.String
	LastUpdatedAt      time.Time
}

func (r leafRow) toCore() progress.LeafProgress {
	leaf := progress.LeafProgress{
		ID:            r.ID,
		UserID:        r.UserID,
		CourseID:      r.CourseID,
		LessonID:      r.LessonID,
		MaterialID:    r.MaterialID.String,
		ProgressKind:  r.ProgressKind,
		ProgressRate:  r.ProgressRate,
		SpentMinutes:  r.SpentMinutes,
		IsCompleted:   r.IsCompleted,
		Note:          r.Note.String,
		LastUpdatedAt: r.LastUpdatedAt.UTC(),
	}
	if r.ManualProgressRate.Valid {
		rate := r.ManualProgressRate.Float64
		leaf.ManualProgressRate = &rate
	}
	if r.CompletionDate.Valid {
		completedAt := r.CompletionDate.Time.UTC()
		leaf.CompletionDate = &completedAt
	}
	return leaf
}

func boilLeaf(leaf progress.LeafProgress) leafRow {
	return leafRow{
		ID:                 leaf.ID,
		UserID:             leaf.UserID,
		CourseID:           leaf.CourseID,
		LessonID:           leaf.LessonID,
		MaterialID:         null.NewString(leaf.MaterialID, leaf.MaterialID != ""),
		ProgressKind:       leaf.ProgressKind,
		ProgressRate:       leaf.ProgressRate,
		ManualProgressRate: null.Float64FromPtr(leaf.ManualProgressRate),
		SpentMinutes:       leaf.SpentMinutes,
		IsCompleted:        leaf.IsCompleted,
		CompletionDate:     null.TimeFromPtr(leaf.CompletionDate),
		Note:               null.NewString(leaf.Note, leaf.Note != ""),
		LastUpdatedAt:      leaf.LastUpdatedAt.UTC(),
	}
}

type historyRow struct {
	ID             int64
	LeafProgressID int64
	ProgressRate   float64
	SpentMinutes   int
	ChangedBy      string
	Note           null.String
	RequestID      null.String
	CreatedAt      time.Time
}

func (r historyRow) toCore() progress.HistoryEntry {
	return progress.HistoryEntry{
		ID:             r.ID,
		LeafProgressID: r.LeafProgressID,
		ProgressRate:   r.ProgressRate,
		SpentMinutes:   r.SpentMinutes,
		ChangedBy:      r.ChangedBy,
		Note:           r.Note.String,
		RequestID:      r.RequestID.String,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}
