package dummydb

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/catalog"
	"github.com/trezcool/maendeleo/core/progress"
)

// DB is an in-memory stand-in for the real database, used in tests.
// Its repositories share one lock, which also gives the "serialized writes per
// row" behavior the real implementation gets from row-level locking.
type DB struct {
	mu sync.RWMutex

	leafSeq    int64
	historySeq int64

	leaves  map[int64]*progress.LeafProgress
	history []progress.HistoryEntry

	lessonSummaries map[string]progress.LessonSummary // userID + "|" + lessonID
	courseSummaries map[string]progress.CourseSummary // userID + "|" + courseID
	streaks         map[string]progress.StreakState

	courses   map[string]catalog.Course
	lessons   map[string]catalog.Lesson
	materials map[string]catalog.Material
}

var _ core.DB = (*DB)(nil)

func Open() (*DB, error) {
	return &DB{
		leaves:          make(map[int64]*progress.LeafProgress),
		lessonSummaries: make(map[string]progress.LessonSummary),
		courseSummaries: make(map[string]progress.CourseSummary),
		streaks:         make(map[string]progress.StreakState),
		courses:         make(map[string]catalog.Course),
		lessons:         make(map[string]catalog.Lesson),
		materials:       make(map[string]catalog.Material),
	}, nil
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return &dummyTx{db: db, snap: db.snapshot()}, nil
}

// snapshot copies the progress state. Callers hold db.mu.
func (db *DB) snapshot() txSnapshot {
	leaves := make(map[int64]*progress.LeafProgress, len(db.leaves))
	for id, leaf := range db.leaves {
		copied := *leaf
		leaves[id] = &copied
	}
	lessonSummaries := make(map[string]progress.LessonSummary, len(db.lessonSummaries))
	for k, v := range db.lessonSummaries {
		lessonSummaries[k] = v
	}
	courseSummaries := make(map[string]progress.CourseSummary, len(db.courseSummaries))
	for k, v := range db.courseSummaries {
		courseSummaries[k] = v
	}
	streaks := make(map[string]progress.StreakState, len(db.streaks))
	for k, v := range db.streaks {
		streaks[k] = v
	}
	return txSnapshot{
		leafSeq:         db.leafSeq,
		historySeq:      db.historySeq,
		leaves:          leaves,
		history:         append([]progress.HistoryEntry(nil), db.history...),
		lessonSummaries: lessonSummaries,
		courseSummaries: courseSummaries,
		streaks:         streaks,
	}
}

type txSnapshot struct {
	leafSeq    int64
	historySeq int64

	leaves  map[int64]*progress.LeafProgress
	history []progress.HistoryEntry

	lessonSummaries map[string]progress.LessonSummary
	courseSummaries map[string]progress.CourseSummary
	streaks         map[string]progress.StreakState
}

var errNotSupported = errors.New("dummydb: raw SQL not supported")

// dummyTx satisfies core.DBTransactor. The repositories write straight to the
// shared maps, so Commit is a no-op and Rollback restores the snapshot taken
// at BeginTx. That matches real transaction semantics as long as rolled-back
// transactions do not interleave with committing ones, which is how the tests
// drive it. The executor methods are stubs.
type dummyTx struct {
	db   *DB
	snap txSnapshot
}

func (tx *dummyTx) Commit() error { return nil }

func (tx *dummyTx) Rollback() error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()

	tx.db.leafSeq = tx.snap.leafSeq
	tx.db.historySeq = tx.snap.historySeq
	tx.db.leaves = tx.snap.leaves
	tx.db.history = tx.snap.history
	tx.db.lessonSummaries = tx.snap.lessonSummaries
	tx.db.courseSummaries = tx.snap.courseSummaries
	tx.db.streaks = tx.snap.streaks
	return nil
}

func (*dummyTx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNotSupported }
func (*dummyTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}
func (*dummyTx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNotSupported }
func (*dummyTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNotSupported
}
func (*dummyTx) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (*dummyTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
