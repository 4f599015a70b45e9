// Catalog API types
package models

import (
	"github.com/coursepilot/coursepilot/pkg/db"
)

// Type aliases for database types; other packages use models.Course
// instead of db.Course.

type Course = db.Course
type Chapter = db.Chapter

// CreateCourseRequest creates a course.
type CreateCourseRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// UpdateCourseRequest updates course fields; empty fields are left untouched.
type UpdateCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Published   *bool  `json:"published"`
}

// CreateChapterRequest adds a chapter to a course.
type CreateChapterRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	Position *int   `json:"position"`
}

// UpdateChapterRequest updates chapter fields; empty fields are left untouched.
type UpdateChapterRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position *int   `json:"position"`
}

// CourseImport is the uploaded course-outline document accepted by the
// import endpoint. It is validated field by field before anything touches
// the database; malformed input is rejected with a typed error.
type CourseImport struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Chapters    []ChapterImport `json:"chapters"`
}

// ChapterImport is one chapter of an uploaded course outline.
type ChapterImport struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
