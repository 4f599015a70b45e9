// Tutor session HTTP handlers
package handler

import (
	"log/slog"
	"net/http"

	"github.com/coursepilot/coursepilot/pkg/models"
	"github.com/coursepilot/coursepilot/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// SessionHandler exposes session and tutoring operations.
type SessionHandler struct {
	tutor    *service.TutorService
	sessions *service.SessionStore
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(tutor *service.TutorService, sessions *service.SessionStore, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		tutor:    tutor,
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("/open", h.Open)
		sessions.GET("", h.List)
		sessions.GET("/stats", h.Stats)
		sessions.GET("/active", h.GetActive)
		sessions.DELETE("", h.ClearAll)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
		sessions.POST("/:id/messages", h.SendMessage)
		sessions.POST("/:id/save", h.Save)
		sessions.POST("/:id/clear", h.Clear)
		sessions.POST("/:id/switch", h.Switch)
		sessions.GET("/:id/export", h.Export)
		sessions.GET("/:id/status", h.Status)
	}
}

// Open resolves or creates the session for a chapter
// POST /api/sessions/open
func (h *SessionHandler) Open(c *gin.Context) {
	var req models.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := h.tutor.Open(req.CourseID, req.ChapterID, req.ChapterTitle)
	c.JSON(http.StatusOK, sess)
}

// List returns session summaries, most recent first
// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	summaries := h.sessions.GetAllSessionSummaries()
	c.JSON(http.StatusOK, summaries)
}

// Get returns a persisted session
// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	sess := h.sessions.GetSession(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetActive returns the session the active pointer names
// GET /api/sessions/active
func (h *SessionHandler) GetActive(c *gin.Context) {
	sess := h.sessions.GetActiveSession()
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SendMessage relays a learner message and returns both sides of the exchange
// POST /api/sessions/:id/messages
func (h *SessionHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.tutor.SendMessage(c.Request.Context(), c.Param("id"), req.Content, req.Attachments)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.logger.Error("Failed to send message", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}
	if resp == nil {
		// Blank content after trimming is a no-op.
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Save persists the in-memory session state
// POST /api/sessions/:id/save
func (h *SessionHandler) Save(c *gin.Context) {
	if !h.tutor.SaveSession(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session saved"})
}

// Clear resets the session to its welcome message
// POST /api/sessions/:id/clear
func (h *SessionHandler) Clear(c *gin.Context) {
	sess := h.tutor.ClearChat(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Switch makes the session active
// POST /api/sessions/:id/switch
func (h *SessionHandler) Switch(c *gin.Context) {
	sess, err := h.tutor.SwitchToSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Delete removes a session; deleting the active one returns its replacement
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	replacement := h.tutor.DeleteSession(c.Param("id"))
	if replacement != nil {
		c.JSON(http.StatusOK, gin.H{"message": "Session deleted", "replacement": replacement})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

// ClearAll removes every persisted session
// DELETE /api/sessions
func (h *SessionHandler) ClearAll(c *gin.Context) {
	h.tutor.ClearAllSessions()
	c.JSON(http.StatusOK, gin.H{"message": "All sessions cleared"})
}

// Export streams the session as a downloadable JSON document
// GET /api/sessions/:id/export
func (h *SessionHandler) Export(c *gin.Context) {
	data, err := h.tutor.ExportSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="chat-export.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

// Status reports loading state and the rotating status phrase
// GET /api/sessions/:id/status
func (h *SessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.tutor.Status(c.Param("id")))
}

// Stats reports persisted storage usage
// GET /api/sessions/stats
func (h *SessionHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.GetStorageStats())
}
