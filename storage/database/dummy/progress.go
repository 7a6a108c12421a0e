package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) findLeaf(userID, materialID string) (*progress.LeafProgress, bool) {
	for _, leaf := range repo.db.leaves {
		if leaf.UserID == userID && leaf.MaterialID == materialID {
			return leaf, true
		}
	}
	return nil, false
}

func (repo *progressRepository) GetLeaf(ctx context.Context, userID, materialID string, _ ...core.DBExecutor) (progress.LeafProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if leaf, ok := repo.findLeaf(userID, materialID); ok {
		return *leaf, nil
	}
	return progress.LeafProgress{}, progress.ErrLeafNotFound
}

func (repo *progressRepository) GetLeafForUpdate(ctx context.Context, userID, materialID string, exec ...core.DBExecutor) (progress.LeafProgress, error) {
	return repo.GetLeaf(ctx, userID, materialID, exec...)
}

func (repo *progressRepository) UpsertLeaf(ctx context.Context, leaf progress.LeafProgress, _ ...core.DBExecutor) (progress.LeafProgress, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if existing, ok := repo.findLeaf(leaf.UserID, leaf.MaterialID); ok {
		leaf.ID = existing.ID
	} else {
		repo.db.leafSeq++
		leaf.ID = repo.db.leafSeq
	}
	repo.db.leaves[leaf.ID] = &leaf
	return leaf, nil
}

func (repo *progressRepository) QueryLeaves(ctx context.Context, userID string, materialIDs []string, _ ...core.DBExecutor) ([]progress.LeafProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]bool, len(materialIDs))
	for _, id := range materialIDs {
		wanted[id] = true
	}
	var leaves []progress.LeafProgress
	for _, leaf := range repo.db.leaves {
		if leaf.UserID == userID && wanted[leaf.MaterialID] {
			leaves = append(leaves, *leaf)
		}
	}
	return leaves, nil
}

func (repo *progressRepository) AppendHistory(ctx context.Context, entry progress.HistoryEntry, _ ...core.DBExecutor) (progress.HistoryEntry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// request ids are unique across the whole trail, mirroring the partial
	// unique index on progress_history
	if entry.RequestID != "" {
		for _, existing := range repo.db.history {
			if existing.RequestID == entry.RequestID {
				return progress.HistoryEntry{}, progress.ErrDuplicateRequest
			}
		}
	}

	repo.db.historySeq++
	entry.ID = repo.db.historySeq
	repo.db.history = append(repo.db.history, entry)
	return entry, nil
}

func (repo *progressRepository) QueryHistory(ctx context.Context, userID, materialID string, limit, offset int, _ ...core.DBExecutor) ([]progress.HistoryEntry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	leaf, ok := repo.findLeaf(userID, materialID)
	if !ok {
		return nil, nil
	}
	var entries []progress.HistoryEntry
	for _, entry := range repo.db.history {
		if entry.LeafProgressID == leaf.ID {
			entries = append(entries, entry)
		}
	}
	// newest first
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })

	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	// limit 0 returns no rows, as LIMIT 0 does; negative means no limit
	if limit >= 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

func (repo *progressRepository) GetHistoryByRequestID(ctx context.Context, requestID string, since time.Time, _ ...core.DBExecutor) (progress.HistoryEntry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, entry := range repo.db.history {
		if entry.RequestID == requestID && !entry.CreatedAt.Before(since) {
			return entry, nil
		}
	}
	return progress.HistoryEntry{}, progress.ErrHistoryEntryNotFound
}

func (repo *progressRepository) QueryActivity(ctx context.Context, userID string, start, end time.Time, _ ...core.DBExecutor) ([]progress.ActivityRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	prevRates := make(map[int64]float64)
	var records []progress.ActivityRecord
	for _, entry := range repo.db.history { // already in id order
		leaf, ok := repo.db.leaves[entry.LeafProgressID]
		if !ok || leaf.UserID != userID {
			continue
		}
		var prevRate *float64
		if prev, ok := prevRates[entry.LeafProgressID]; ok {
			p := prev
			prevRate = &p
		}
		prevRates[entry.LeafProgressID] = entry.ProgressRate

		if entry.CreatedAt.Before(start) || entry.CreatedAt.After(end) {
			continue
		}
		records = append(records, progress.ActivityRecord{
			LeafProgressID:   entry.LeafProgressID,
			MaterialID:       leaf.MaterialID,
			ProgressRate:     entry.ProgressRate,
			PrevProgressRate: prevRate,
			SpentMinutes:     entry.SpentMinutes,
			CreatedAt:        entry.CreatedAt,
		})
	}
	return records, nil
}

func (repo *progressRepository) GetLessonSummary(ctx context.Context, userID, lessonID string, _ ...core.DBExecutor) (progress.LessonSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if summary, ok := repo.db.lessonSummaries[userID+"|"+lessonID]; ok {
		return summary, nil
	}
	return progress.LessonSummary{}, progress.ErrSummaryNotFound
}

func (repo *progressRepository) UpsertLessonSummary(ctx context.Context, summary progress.LessonSummary, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.lessonSummaries[summary.UserID+"|"+summary.LessonID] = summary
	return nil
}

func (repo *progressRepository) GetCourseSummary(ctx context.Context, userID, courseID string, _ ...core.DBExecutor) (progress.CourseSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if summary, ok := repo.db.courseSummaries[userID+"|"+courseID]; ok {
		return summary, nil
	}
	return progress.CourseSummary{}, progress.ErrSummaryNotFound
}

func (repo *progressRepository) UpsertCourseSummary(ctx context.Context, summary progress.CourseSummary, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.courseSummaries[summary.UserID+"|"+summary.CourseID] = summary
	return nil
}

func (repo *progressRepository) GetStreak(ctx context.Context, userID string, _ ...core.DBExecutor) (progress.StreakState, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if streak, ok := repo.db.streaks[userID]; ok {
		return streak, nil
	}
	return progress.StreakState{}, progress.ErrStreakNotFound
}

func (repo *progressRepository) UpsertStreak(ctx context.Context, streak progress.StreakState, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.streaks[streak.UserID] = streak
	return nil
}
