// Package catalog is the read-only boundary to the course/lesson/material
// catalog. Catalog management (CRUD, publishing, file storage) lives in a
// separate system; the progress engine only ever queries it.
package catalog

import (
	"context"
	"errors"

	"github.com/trezcool/maendeleo/core"
)

var (
	// errors
	ErrCourseNotFound   = errors.New("course not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrMaterialNotFound = errors.New("material not found")
)

type (
	Repository interface {
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		GetMaterial(ctx context.Context, id string, exec ...core.DBExecutor) (Material, error)
		// QueryPublishedMaterials returns the published materials under a lesson,
		// ordered by position.
		QueryPublishedMaterials(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]Material, error)
		// QueryPublishedLessons returns the published lessons under a course,
		// ordered by position.
		QueryPublishedLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error) {
	return svc.repo.GetCourse(ctx, id, exec...)
}

func (svc *Service) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id, exec...)
}

func (svc *Service) GetMaterial(ctx context.Context, id string, exec ...core.DBExecutor) (Material, error) {
	return svc.repo.GetMaterial(ctx, id, exec...)
}

func (svc *Service) PublishedMaterials(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]Material, error) {
	return svc.repo.QueryPublishedMaterials(ctx, lessonID, exec...)
}

func (svc *Service) PublishedLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error) {
	return svc.repo.QueryPublishedLessons(ctx, courseID, exec...)
}
