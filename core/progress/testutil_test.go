package progress_test

import (
	"io"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/catalog"
	"github.com/trezcool/maendeleo/core/progress"
	emailsvc "github.com/trezcool/maendeleo/services/email"
	logsvc "github.com/trezcool/maendeleo/services/logger"
	dummydb "github.com/trezcool/maendeleo/storage/database/dummy"
)

type testEnv struct {
	db   *dummydb.DB
	repo progress.Repository
	svc  *progress.Service
	conf *core.Config
}

func newTestEnv(t *testing.T, monotonic bool) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	conf := &core.Config{
		AppName:          "maendeleo",
		Env:              "TEST",
		TestMode:         true,
		DefaultFromEmail: mail.Address{Name: "Maendeleo", Address: "noreply@test.cd"},
	}
	conf.Server.RequestTimeout = 3 * time.Second
	conf.Progress.MonotonicCompletion = monotonic
	conf.Progress.IdempotencyWindow = time.Hour

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)

	repo := dummydb.NewProgressRepository(db)
	svc := progress.NewService(
		db,
		repo,
		catalog.NewService(dummydb.NewCatalogRepository(db)),
		emailsvc.NewConsoleServiceMock(conf),
		logger,
		conf,
	)
	return &testEnv{db: db, repo: repo, svc: svc, conf: conf}
}

// serviceWith rebuilds the service around a wrapped repository, keeping the
// env's database, catalog and config.
func (env *testEnv) serviceWith(repo progress.Repository) *progress.Service {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), env.conf)
	logger.Enable(false)
	return progress.NewService(
		env.db,
		repo,
		catalog.NewService(dummydb.NewCatalogRepository(env.db)),
		emailsvc.NewConsoleServiceMock(env.conf),
		logger,
		env.conf,
	)
}

// seedCatalog populates one published course:
//
//	crs1
//	├── lsn1: mat1, mat2, mat3 (manual), mat5 (unpublished)
//	└── lsn2: mat4 (manual), mat6 (automatic tracking only)
func seedCatalog(db *dummydb.DB) {
	db.AddCourse(catalog.Course{ID: "crs1", Title: "Go Basics", IsPublished: true})

	db.AddLesson(catalog.Lesson{ID: "lsn1", CourseID: "crs1", Title: "Getting Started", IsPublished: true, Position: 1})
	db.AddLesson(catalog.Lesson{ID: "lsn2", CourseID: "crs1", Title: "Concurrency", IsPublished: true, Position: 2})

	db.AddMaterial(catalog.Material{ID: "mat1", LessonID: "lsn1", CourseID: "crs1", Title: "Intro", AllowsManualProgress: true, IsPublished: true, Position: 1})
	db.AddMaterial(catalog.Material{ID: "mat2", LessonID: "lsn1", CourseID: "crs1", Title: "Setup", AllowsManualProgress: true, IsPublished: true, Position: 2})
	db.AddMaterial(catalog.Material{ID: "mat3", LessonID: "lsn1", CourseID: "crs1", Title: "Hello World", AllowsManualProgress: true, IsPublished: true, Position: 3})
	db.AddMaterial(catalog.Material{ID: "mat4", LessonID: "lsn2", CourseID: "crs1", Title: "Goroutines", AllowsManualProgress: true, IsPublished: true, Position: 1})
	db.AddMaterial(catalog.Material{ID: "mat5", LessonID: "lsn1", CourseID: "crs1", Title: "Draft", AllowsManualProgress: true, IsPublished: false, Position: 4})
	db.AddMaterial(catalog.Material{ID: "mat6", LessonID: "lsn2", CourseID: "crs1", Title: "Channels Video", AllowsManualProgress: false, IsPublished: true, Position: 2})
}

func catalogCourse(id, title string) catalog.Course {
	return catalog.Course{ID: id, Title: title, IsPublished: true}
}

func catalogLesson(id, courseID string, position int) catalog.Lesson {
	return catalog.Lesson{ID: id, CourseID: courseID, Title: id, IsPublished: true, Position: position}
}

func catalogMaterial(id, lessonID, courseID string, position int) catalog.Material {
	return catalog.Material{
		ID: id, LessonID: lessonID, CourseID: courseID, Title: id,
		AllowsManualProgress: true, IsPublished: true, Position: position,
	}
}

func intPtr(i int) *int { return &i }
