package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/catalog"
)

type catalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *sqlx.DB) *catalogRepository {
	return &catalogRepository{db: db}
}

func (repo catalogRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

func (repo catalogRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Course, error) {
	var c catalog.Course
	query := `SELECT id, title, is_published FROM course WHERE id = $1`
	err := repo.getExec(exec).QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Title, &c.IsPublished)
	if err == sql.ErrNoRows {
		return c, catalog.ErrCourseNotFound
	}
	return c, errors.Wrap(err, "querying course")
}

func (repo catalogRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Lesson, error) {
	var l catalog.Lesson
	query := `SELECT id, course_id, title, is_published, position FROM lesson WHERE id = $1`
	err := repo.getExec(exec).QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.CourseID, &l.Title, &l.IsPublished, &l.Position,
	)
	if err == sql.ErrNoRows {
		return l, catalog.ErrLessonNotFound
	}
	return l, errors.Wrap(err, "querying lesson")
}

func (repo catalogRepository) GetMaterial(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Material, error) {
	var m catalog.Material
	query := `
		SELECT m.id, m.lesson_id, l.course_id, m.title, m.allows_manual_progress, m.is_published, m.position
		FROM material m
		JOIN lesson l ON l.id = m.lesson_id
		WHERE m.id = $1`
	err := repo.getExec(exec).QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.LessonID, &m.CourseID, &m.Title, &m.AllowsManualProgress, &m.IsPublished, &m.Position,
	)
	if err == sql.ErrNoRows {
		return m, catalog.ErrMaterialNotFound
	}
	return m, errors.Wrap(err, "querying material")
}

func (repo catalogRepository) QueryPublishedMaterials(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]catalog.Material, error) {
	query := `
		SELECT m.id, m.lesson_id, l.course_id, m.title, m.allows_manual_progress, m.is_published, m.position
		FROM material m
		JOIN lesson l ON l.id = m.lesson_id
		WHERE m.lesson_id = $1 AND m.is_published
		ORDER BY m.position, m.id`
	rows, err := repo.getExec(exec).QueryContext(ctx, query, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "querying published materials")
	}
	defer func() { _ = rows.Close() }()

	var materials []catalog.Material
	for rows.Next() {
		var m catalog.Material
		if err = rows.Scan(&m.ID, &m.LessonID, &m.CourseID, &m.Title, &m.AllowsManualProgress, &m.IsPublished, &m.Position); err != nil {
			return nil, errors.Wrap(err, "scanning material")
		}
		materials = append(materials, m)
	}
	return materials, errors.Wrap(rows.Err(), "querying published materials")
}

func (repo catalogRepository) QueryPublishedLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]catalog.Lesson, error) {
	query := `
		SELECT id, course_id, title, is_published, position
		FROM lesson
		WHERE course_id = $1 AND is_published
		ORDER BY position, id`
	rows, err := repo.getExec(exec).QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying published lessons")
	}
	defer func() { _ = rows.Close() }()

	var lessons []catalog.Lesson
	for rows.Next() {
		var l catalog.Lesson
		if err = rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.IsPublished, &l.Position); err != nil {
			return nil, errors.Wrap(err, "scanning lesson")
		}
		lessons = append(lessons, l)
	}
	return lessons, errors.Wrap(rows.Err(), "querying published lessons")
}
