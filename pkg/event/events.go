package event

// Event names
const (
	NameSessionSaved    = "session.saved"
	NameSessionCleared  = "session.cleared"
	NameSessionDeleted  = "session.deleted"
	NameSessionsCleared = "sessions.cleared"
	NameMessageAppended = "message.appended"
	NameCourseImported  = "course.imported"
)

// SessionSavedEvent fires when a session is explicitly persisted.
type SessionSavedEvent struct {
	SessionID string `json:"session_id"`
}

func (SessionSavedEvent) EventName() string { return NameSessionSaved }

// SessionClearedEvent fires when a session is reset to its welcome message.
type SessionClearedEvent struct {
	SessionID string `json:"session_id"`
}

func (SessionClearedEvent) EventName() string { return NameSessionCleared }

// SessionDeletedEvent fires when a session and its index entry are removed.
type SessionDeletedEvent struct {
	SessionID string `json:"session_id"`
}

func (SessionDeletedEvent) EventName() string { return NameSessionDeleted }

// SessionsClearedEvent fires when every persisted session is removed.
type SessionsClearedEvent struct{}

func (SessionsClearedEvent) EventName() string { return NameSessionsCleared }

// MessageAppendedEvent fires when a message joins a session in memory.
type MessageAppendedEvent struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
}

func (MessageAppendedEvent) EventName() string { return NameMessageAppended }

// CourseImportedEvent fires after a course outline import succeeds.
type CourseImportedEvent struct {
	CourseID     string `json:"course_id"`
	ChapterCount int    `json:"chapter_count"`
}

func (CourseImportedEvent) EventName() string { return NameCourseImported }
