// Course catalog HTTP handlers
package handler

import (
	"log/slog"
	"net/http"

	"github.com/coursepilot/coursepilot/pkg/models"
	"github.com/coursepilot/coursepilot/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// CatalogHandler exposes course and chapter management.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers catalog routes
func (h *CatalogHandler) RegisterRoutes(r *gin.RouterGroup) {
	courses := r.Group("/courses")
	{
		courses.POST("", h.CreateCourse)
		courses.GET("", h.ListCourses)
		courses.POST("/import", h.ImportCourse)
		courses.GET("/:id", h.GetCourse)
		courses.PUT("/:id", h.UpdateCourse)
		courses.DELETE("/:id", h.DeleteCourse)
		courses.GET("/:id/chapters", h.ListChapters)
		courses.POST("/:id/chapters", h.CreateChapter)
	}

	chapters := r.Group("/chapters")
	{
		chapters.GET("/:id", h.GetChapter)
		chapters.PUT("/:id", h.UpdateChapter)
		chapters.DELETE("/:id", h.DeleteChapter)
	}
}

// CreateCourse creates a new course
// POST /api/courses
func (h *CatalogHandler) CreateCourse(c *gin.Context) {
	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	course, err := h.catalog.CreateCourse(&req)
	if err != nil {
		h.logger.Error("Failed to create course", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create course"})
		return
	}
	c.JSON(http.StatusOK, course)
}

// ListCourses lists courses (supports filtering by category)
// GET /api/courses?category=xxx
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	courses, err := h.catalog.ListCourses(c.Query("category"))
	if err != nil {
		h.logger.Error("Failed to list courses", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list courses"})
		return
	}
	c.JSON(http.StatusOK, courses)
}

// GetCourse retrieves a single course
// GET /api/courses/:id
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	course, err := h.catalog.GetCourse(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
			return
		}
		h.logger.Error("Failed to get course", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get course"})
		return
	}
	c.JSON(http.StatusOK, course)
}

// UpdateCourse updates a course
// PUT /api/courses/:id
func (h *CatalogHandler) UpdateCourse(c *gin.Context) {
	var req models.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	course, err := h.catalog.UpdateCourse(c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
			return
		}
		h.logger.Error("Failed to update course", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update course"})
		return
	}
	c.JSON(http.StatusOK, course)
}

// DeleteCourse deletes a course and its chapters
// DELETE /api/courses/:id
func (h *CatalogHandler) DeleteCourse(c *gin.Context) {
	if err := h.catalog.DeleteCourse(c.Param("id")); err != nil {
		h.logger.Error("Failed to delete course", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete course"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Course deleted"})
}

// ImportCourse validates and imports an uploaded course outline
// POST /api/courses/import
func (h *CatalogHandler) ImportCourse(c *gin.Context) {
	var doc models.CourseImport
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	course, err := h.catalog.ImportCourse(&doc)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": vErr.Error(), "field": vErr.Field})
			return
		}
		h.logger.Error("Failed to import course", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import course"})
		return
	}
	c.JSON(http.StatusOK, course)
}

// CreateChapter adds a chapter to a course
// POST /api/courses/:id/chapters
func (h *CatalogHandler) CreateChapter(c *gin.Context) {
	var req models.CreateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chapter, err := h.catalog.CreateChapter(c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
			return
		}
		h.logger.Error("Failed to create chapter", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create chapter"})
		return
	}
	c.JSON(http.StatusOK, chapter)
}

// ListChapters lists a course's chapters in position order
// GET /api/courses/:id/chapters
func (h *CatalogHandler) ListChapters(c *gin.Context) {
	chapters, err := h.catalog.ListChapters(c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to list chapters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list chapters"})
		return
	}
	c.JSON(http.StatusOK, chapters)
}

// GetChapter retrieves a single chapter
// GET /api/chapters/:id
func (h *CatalogHandler) GetChapter(c *gin.Context) {
	chapter, err := h.catalog.GetChapter(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrChapterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chapter not found"})
			return
		}
		h.logger.Error("Failed to get chapter", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get chapter"})
		return
	}
	c.JSON(http.StatusOK, chapter)
}

// UpdateChapter updates a chapter
// PUT /api/chapters/:id
func (h *CatalogHandler) UpdateChapter(c *gin.Context) {
	var req models.UpdateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chapter, err := h.catalog.UpdateChapter(c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, service.ErrChapterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chapter not found"})
			return
		}
		h.logger.Error("Failed to update chapter", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update chapter"})
		return
	}
	c.JSON(http.StatusOK, chapter)
}

// DeleteChapter deletes a chapter
// DELETE /api/chapters/:id
func (h *CatalogHandler) DeleteChapter(c *gin.Context) {
	if err := h.catalog.DeleteChapter(c.Param("id")); err != nil {
		h.logger.Error("Failed to delete chapter", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete chapter"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chapter deleted"})
}
