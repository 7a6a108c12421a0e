package catalog

// Course is the top of the content hierarchy: course → lesson → material.
type Course struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsPublished bool   `json:"is_published"`
}

type Lesson struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	IsPublished bool   `json:"is_published"`
	Position    int    `json:"position"`
}

type Material struct {
	ID       string `json:"id"`
	LessonID string `json:"lesson_id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	// AllowsManualProgress marks materials whose progress users may self-report;
	// others are tracked automatically (e.g. file-viewing completion).
	AllowsManualProgress bool `json:"allows_manual_progress"`
	IsPublished          bool `json:"is_published"`
	Position             int  `json:"position"`
}
