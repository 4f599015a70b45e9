// Course catalog: courses, ordered chapters, validated outline import
package service

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coursepilot/coursepilot/pkg/event"
	"github.com/coursepilot/coursepilot/pkg/models"
	"github.com/coursepilot/coursepilot/pkg/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrChapterNotFound = errors.New("chapter not found")
)

// ValidationError rejects a malformed course import with a field-level
// reason. Uploaded outlines are untrusted input; nothing reaches the
// database until the whole document validates.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid course import: %s: %s", e.Field, e.Reason)
}

const (
	maxImportChapters   = 200
	maxImportTitleLen   = 200
	maxImportContentLen = 1 << 20
)

// CatalogService manages the course/chapter catalog that supplies tutoring
// context.
type CatalogService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewCatalogService creates the catalog service.
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{
		db:     db,
		logger: utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *CatalogService) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Course{}, &models.Chapter{})
}

// ========== Course Management ==========

// CreateCourse creates a new course
func (s *CatalogService) CreateCourse(req *models.CreateCourseRequest) (*models.Course, error) {
	course := &models.Course{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	}

	if err := s.db.Create(course).Error; err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	return course, nil
}

// GetCourse retrieves a course by ID
func (s *CatalogService) GetCourse(id string) (*models.Course, error) {
	var course models.Course
	if err := s.db.First(&course, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}

// ListCourses lists courses, optionally filtered by category
func (s *CatalogService) ListCourses(category string) ([]models.Course, error) {
	var courses []models.Course

	query := s.db.Order("created_at DESC")
	if category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// UpdateCourse updates a course
func (s *CatalogService) UpdateCourse(id string, req *models.UpdateCourseRequest) (*models.Course, error) {
	course, err := s.GetCourse(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Category != "" {
		updates["category"] = req.Category
	}
	if req.Published != nil {
		updates["published"] = *req.Published
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now()
		if err := s.db.Model(course).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	return s.GetCourse(id)
}

// DeleteCourse deletes a course and its chapters
func (s *CatalogService) DeleteCourse(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", id).Delete(&models.Chapter{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Course{}, "id = ?", id).Error; err != nil {
			return err
		}
		return nil
	})
}

// ========== Chapter Management ==========

// CreateChapter adds a chapter to a course. Position defaults to the end.
func (s *CatalogService) CreateChapter(courseID string, req *models.CreateChapterRequest) (*models.Chapter, error) {
	if _, err := s.GetCourse(courseID); err != nil {
		return nil, err
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		var count int64
		if err := s.db.Model(&models.Chapter{}).Where("course_id = ?", courseID).Count(&count).Error; err != nil {
			return nil, err
		}
		position = int(count)
	}

	chapter := &models.Chapter{
		ID:       uuid.New().String(),
		CourseID: courseID,
		Title:    req.Title,
		Content:  req.Content,
		Position: position,
	}

	if err := s.db.Create(chapter).Error; err != nil {
		return nil, fmt.Errorf("failed to create chapter: %w", err)
	}

	return chapter, nil
}

// GetChapter retrieves a chapter by ID
func (s *CatalogService) GetChapter(id string) (*models.Chapter, error) {
	var chapter models.Chapter
	if err := s.db.First(&chapter, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChapterNotFound
		}
		return nil, err
	}
	return &chapter, nil
}

// ListChapters lists a course's chapters in position order
func (s *CatalogService) ListChapters(courseID string) ([]models.Chapter, error) {
	var chapters []models.Chapter
	if err := s.db.Where("course_id = ?", courseID).
		Order("position ASC").
		Find(&chapters).Error; err != nil {
		return nil, err
	}
	return chapters, nil
}

// UpdateChapter updates a chapter
func (s *CatalogService) UpdateChapter(id string, req *models.UpdateChapterRequest) (*models.Chapter, error) {
	chapter, err := s.GetChapter(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Content != "" {
		updates["content"] = req.Content
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now()
		if err := s.db.Model(chapter).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	return s.GetChapter(id)
}

// DeleteChapter deletes a chapter
func (s *CatalogService) DeleteChapter(id string) error {
	return s.db.Delete(&models.Chapter{}, "id = ?", id).Error
}

// ========== Course Import ==========

// ImportCourse validates an uploaded course outline and creates the course
// with its chapters in one transaction.
func (s *CatalogService) ImportCourse(doc *models.CourseImport) (*models.Course, error) {
	if err := validateImport(doc); err != nil {
		return nil, err
	}

	course := &models.Course{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(doc.Title),
		Description: doc.Description,
		Category:    doc.Category,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(course).Error; err != nil {
			return err
		}
		for i, ch := range doc.Chapters {
			chapter := &models.Chapter{
				ID:       uuid.New().String(),
				CourseID: course.ID,
				Title:    strings.TrimSpace(ch.Title),
				Content:  ch.Content,
				Position: i,
			}
			if err := tx.Create(chapter).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import course: %w", err)
	}

	s.logger.Info("Imported course", "courseID", course.ID, "chapters", len(doc.Chapters))
	event.Emit(event.CourseImportedEvent{CourseID: course.ID, ChapterCount: len(doc.Chapters)})
	return course, nil
}

// validateImport checks the whole document before any database write.
func validateImport(doc *models.CourseImport) error {
	if doc == nil {
		return &ValidationError{Field: "document", Reason: "missing body"}
	}
	if strings.TrimSpace(doc.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if len(doc.Title) > maxImportTitleLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d characters", maxImportTitleLen)}
	}
	if len(doc.Chapters) == 0 {
		return &ValidationError{Field: "chapters", Reason: "at least one chapter is required"}
	}
	if len(doc.Chapters) > maxImportChapters {
		return &ValidationError{Field: "chapters", Reason: fmt.Sprintf("more than %d chapters", maxImportChapters)}
	}
	for i, ch := range doc.Chapters {
		if strings.TrimSpace(ch.Title) == "" {
			return &ValidationError{Field: fmt.Sprintf("chapters[%d].title", i), Reason: "must not be empty"}
		}
		if len(ch.Title) > maxImportTitleLen {
			return &ValidationError{Field: fmt.Sprintf("chapters[%d].title", i), Reason: fmt.Sprintf("longer than %d characters", maxImportTitleLen)}
		}
		if len(ch.Content) > maxImportContentLen {
			return &ValidationError{Field: fmt.Sprintf("chapters[%d].content", i), Reason: "content too large"}
		}
	}
	return nil
}
