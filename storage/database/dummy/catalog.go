package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

// AddCourse seeds a catalog course; test helper.
func (db *DB) AddCourse(course catalog.Course) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.courses[course.ID] = course
}

// AddLesson seeds a catalog lesson; test helper.
func (db *DB) AddLesson(lesson catalog.Lesson) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.lessons[lesson.ID] = lesson
}

// AddMaterial seeds a catalog material; test helper.
func (db *DB) AddMaterial(material catalog.Material) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.materials[material.ID] = material
}

// RemoveLesson drops a lesson row, leaving any leaf progress pointing at it
// orphaned; test helper for consistency-anomaly scenarios.
func (db *DB) RemoveLesson(id string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.lessons, id)
}

func (repo *catalogRepository) GetCourse(ctx context.Context, id string, _ ...core.DBExecutor) (catalog.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if course, ok := repo.db.courses[id]; ok {
		return course, nil
	}
	return catalog.Course{}, catalog.ErrCourseNotFound
}

func (repo *catalogRepository) GetLesson(ctx context.Context, id string, _ ...core.DBExecutor) (catalog.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if lesson, ok := repo.db.lessons[id]; ok {
		return lesson, nil
	}
	return catalog.Lesson{}, catalog.ErrLessonNotFound
}

func (repo *catalogRepository) GetMaterial(ctx context.Context, id string, _ ...core.DBExecutor) (catalog.Material, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if material, ok := repo.db.materials[id]; ok {
		return material, nil
	}
	return catalog.Material{}, catalog.ErrMaterialNotFound
}

func (repo *catalogRepository) QueryPublishedMaterials(ctx context.Context, lessonID string, _ ...core.DBExecutor) ([]catalog.Material, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var materials []catalog.Material
	for _, material := range repo.db.materials {
		if material.LessonID == lessonID && material.IsPublished {
			materials = append(materials, material)
		}
	}
	sort.Slice(materials, func(i, j int) bool {
		if materials[i].Position != materials[j].Position {
			return materials[i].Position < materials[j].Position
		}
		return materials[i].ID < materials[j].ID
	})
	return materials, nil
}

func (repo *catalogRepository) QueryPublishedLessons(ctx context.Context, courseID string, _ ...core.DBExecutor) ([]catalog.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var lessons []catalog.Lesson
	for _, lesson := range repo.db.lessons {
		if lesson.CourseID == courseID && lesson.IsPublished {
			lessons = append(lessons, lesson)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].Position != lessons[j].Position {
			return lessons[i].Position < lessons[j].Position
		}
		return lessons[i].ID < lessons[j].ID
	})
	return lessons, nil
}
