// Tutor chat session types shared by the store, controller and HTTP API
package models

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Attachment carries file metadata only. Binary content never travels
// through the chat path; files are uploaded elsewhere and referenced by URL.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"` // MIME type
	Size int64  `json:"size"` // bytes
	URL  string `json:"url,omitempty"`
}

// ChatMessage is immutable once created. Messages are only removed by
// whole-session clear or cap eviction, never individually.
type ChatMessage struct {
	ID          string       `json:"id"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Seed        bool         `json:"seed,omitempty"` // the synthesized welcome message
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ChatSession is one tutoring thread for a (course, chapter) pair.
// Its ID is the composite key "<courseID>_<chapterID>".
type ChatSession struct {
	ID           string        `json:"id"`
	CourseID     string        `json:"course_id"`
	ChapterID    string        `json:"chapter_id"`
	ChapterTitle string        `json:"chapter_title"`
	Messages     []ChatMessage `json:"messages"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	Active       bool          `json:"active"`
}

// ChatSessionSummary is the lightweight projection kept in the summary
// index for session-picker listings.
type ChatSessionSummary struct {
	ID           string    `json:"id"`
	CourseID     string    `json:"course_id"`
	ChapterID    string    `json:"chapter_id"`
	ChapterTitle string    `json:"chapter_title"`
	MessageCount int       `json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
	Preview      string    `json:"preview"`
}

// StorageStats reports aggregate persisted-session usage.
type StorageStats struct {
	TotalSessions int   `json:"total_sessions"`
	TotalMessages int   `json:"total_messages"`
	StorageUsed   int64 `json:"storage_used"`  // bytes, estimated from serialized lengths
	StorageLimit  int64 `json:"storage_limit"` // bytes, fixed
}

// ExportedSession is the user-download artifact produced by ExportSession.
type ExportedSession struct {
	ChapterTitle string            `json:"chapterTitle"`
	ExportDate   time.Time         `json:"exportDate"`
	Messages     []ExportedMessage `json:"messages"`
}

// ExportedMessage flattens a ChatMessage for export.
type ExportedMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // ISO-8601
}

// ========== HTTP API types ==========

// OpenSessionRequest resolves or creates the session for a chapter.
type OpenSessionRequest struct {
	CourseID     string `json:"course_id" binding:"required"`
	ChapterID    string `json:"chapter_id" binding:"required"`
	ChapterTitle string `json:"chapter_title"`
}

// SendMessageRequest carries a learner message into a session.
type SendMessageRequest struct {
	Content     string       `json:"content" binding:"required"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendMessageResponse returns both sides of the exchange so the UI can
// render without a refetch.
type SendMessageResponse struct {
	UserMessage      *ChatMessage `json:"user_message"`
	AssistantMessage *ChatMessage `json:"assistant_message"`
}

// SessionStatus reports the controller-side request lifecycle for polling UIs.
type SessionStatus struct {
	Loading        bool   `json:"loading"`
	StatusText     string `json:"status_text,omitempty"` // rotating cosmetic phrase
	UnsavedChanges bool   `json:"unsaved_changes"`
	Saved          bool   `json:"saved"`
}
