// Tutor controller: binds sessions to the completion endpoint and tracks
// per-session request lifecycle for the UI
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coursepilot/coursepilot/pkg/completion"
	"github.com/coursepilot/coursepilot/pkg/models"
	"github.com/coursepilot/coursepilot/pkg/utils"
	"github.com/pkg/errors"
)

// historyWindow is how many prior turns accompany a completion request.
const historyWindow = 10

// statusRotateInterval paces the cosmetic status phrases shown while a
// completion request is in flight.
const statusRotateInterval = 2 * time.Second

var statusPhrases = []string{
	"Thinking...",
	"Reading the chapter...",
	"Connecting the concepts...",
	"Drafting an explanation...",
	"Almost there...",
}

// controllerState is the per-session UI-facing state. The watermark is the
// message count at last load/save; growth beyond it marks the session
// unsaved. Count comparison only - an in-place edit would not trip it.
type controllerState struct {
	loading     bool
	statusText  string
	saved       bool
	watermark   int
	stopRotator chan struct{}
}

// TutorService adapts the SessionStore to interactive chat: it appends the
// learner's message, drives the completion request and converts failures
// into ordinary assistant messages.
type TutorService struct {
	mu       sync.Mutex
	sessions *SessionStore
	catalog  *CatalogService
	client   *completion.Client
	logger   *slog.Logger
	states   map[string]*controllerState
}

// NewTutorService wires the controller. catalog may be nil when the
// deployment has no course catalog; context enrichment is skipped then.
func NewTutorService(sessions *SessionStore, catalog *CatalogService, client *completion.Client) *TutorService {
	return &TutorService{
		sessions: sessions,
		catalog:  catalog,
		client:   client,
		logger:   utils.GetLogger(),
		states:   make(map[string]*controllerState),
	}
}

// Open resolves (or creates) the session for a chapter and baselines the
// unsaved-change watermark.
func (s *TutorService) Open(courseID, chapterID, chapterTitle string) *models.ChatSession {
	sess := s.sessions.GetOrCreate(courseID, chapterID, chapterTitle)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(sess.ID)
	st.watermark = len(sess.Messages)
	return sess
}

// SendMessage appends the learner's message, calls the completion endpoint
// and appends the reply. Transport and HTTP failures are never returned to
// the caller; they become assistant messages so the thread itself reports
// what happened. A blank message is a no-op.
func (s *TutorService) SendMessage(ctx context.Context, sessionID, content string, attachments []models.Attachment) (*models.SendMessageResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	userMsg, err := s.sessions.AddMessage(sessionID, models.ChatMessage{
		Role:        models.RoleUser,
		Content:     content,
		Attachments: attachments,
	})
	if err != nil {
		return nil, err
	}

	s.beginRequest(sessionID)
	defer s.finishRequest(sessionID)

	req := s.buildRequest(sessionID, content, attachments)

	replyText, err := s.client.Complete(ctx, req)
	if err != nil {
		replyText = fallbackText(err)
		s.logger.Warn("Completion request failed", "sessionID", sessionID, "error", err)
	}

	assistantMsg, err := s.sessions.AddMessage(sessionID, models.ChatMessage{
		Role:    models.RoleAssistant,
		Content: replyText,
	})
	if err != nil {
		return nil, err
	}

	return &models.SendMessageResponse{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// fallbackText maps a completion failure to learner-facing text.
func fallbackText(err error) string {
	var reqErr *completion.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.UserMessage()
	}
	generic := &completion.RequestError{Kind: completion.KindGeneric, Err: err}
	return generic.UserMessage()
}

// buildRequest assembles the completion payload: the message, chapter and
// course context, attachment metadata and the last turns of history. The
// history window excludes the two roles' current exchange because the user
// message was already appended.
func (s *TutorService) buildRequest(sessionID, content string, attachments []models.Attachment) *completion.Request {
	req := &completion.Request{
		Message:     content,
		Attachments: attachments,
	}

	sess := s.sessions.PeekSession(sessionID)
	if sess == nil {
		return req
	}

	req.CourseID = sess.CourseID
	req.ChapterID = sess.ChapterID
	req.ChapterTitle = sess.ChapterTitle

	// History: the most recent turns before the message being sent.
	msgs := sess.Messages
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1] // drop the just-appended user message
	}
	start := 0
	if len(msgs) > historyWindow {
		start = len(msgs) - historyWindow
	}
	for _, m := range msgs[start:] {
		req.History = append(req.History, completion.Turn{Role: m.Role, Content: m.Content})
	}

	if s.catalog == nil {
		return req
	}

	if course, err := s.catalog.GetCourse(sess.CourseID); err == nil && course != nil {
		req.CourseTitle = course.Title
	}
	if chapter, err := s.catalog.GetChapter(sess.ChapterID); err == nil && chapter != nil {
		req.ChapterContent = chapter.Content
		if req.ChapterTitle == "" {
			req.ChapterTitle = chapter.Title
		}
	}
	if chapters, err := s.catalog.ListChapters(sess.CourseID); err == nil {
		for _, ch := range chapters {
			req.Chapters = append(req.Chapters, completion.ChapterRef{ID: ch.ID, Title: ch.Title})
		}
	}

	return req
}

// SaveSession persists the session and re-baselines the watermark.
func (s *TutorService) SaveSession(sessionID string) bool {
	if !s.sessions.SaveCurrentSession(sessionID) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(sessionID)
	st.saved = true
	if sess := s.sessions.PeekSession(sessionID); sess != nil {
		st.watermark = len(sess.Messages)
	}
	return true
}

// ClearChat resets the session to its welcome message and resynchronizes
// the local state from the persisted reset.
func (s *TutorService) ClearChat(sessionID string) *models.ChatSession {
	s.sessions.ClearSession(sessionID)
	sess := s.sessions.GetSession(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(sessionID)
	if sess != nil {
		st.watermark = len(sess.Messages)
	} else {
		st.watermark = 0
	}
	return sess
}

// SwitchToSession makes sessionID the active session and returns it. The
// target must already exist; switching never fabricates a session.
func (s *TutorService) SwitchToSession(sessionID string) (*models.ChatSession, error) {
	sess := s.sessions.LookupSession(sessionID)
	if sess == nil {
		return nil, errors.Wrapf(ErrSessionNotFound, "id %q", sessionID)
	}
	s.sessions.SetActiveSession(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(sessionID)
	st.watermark = len(sess.Messages)
	return sess, nil
}

// DeleteSession removes the session. Deleting the currently active session
// immediately synthesizes a fresh replacement for the same chapter.
func (s *TutorService) DeleteSession(sessionID string) *models.ChatSession {
	active := s.sessions.GetActiveSession()
	wasActive := active != nil && active.ID == sessionID

	s.sessions.DeleteSession(sessionID)

	s.mu.Lock()
	delete(s.states, sessionID)
	s.mu.Unlock()

	if !wasActive {
		return nil
	}
	return s.Open(active.CourseID, active.ChapterID, active.ChapterTitle)
}

// ClearAllSessions wipes every persisted session and all controller state.
func (s *TutorService) ClearAllSessions() {
	s.sessions.ClearAllSessions()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]*controllerState)
}

// ExportSession serializes the session for user download. Pure; no side
// effects on session or controller state.
func (s *TutorService) ExportSession(sessionID string) ([]byte, error) {
	sess := s.sessions.PeekSession(sessionID)
	if sess == nil {
		return nil, errors.Wrapf(ErrSessionNotFound, "id %q", sessionID)
	}

	export := models.ExportedSession{
		ChapterTitle: sess.ChapterTitle,
		ExportDate:   time.Now(),
		Messages:     make([]models.ExportedMessage, 0, len(sess.Messages)),
	}
	for _, m := range sess.Messages {
		export.Messages = append(export.Messages, models.ExportedMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}

	return json.MarshalIndent(export, "", "  ")
}

// Status reports the request lifecycle for polling UIs.
func (s *TutorService) Status(sessionID string) models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	status := models.SessionStatus{
		Loading:    st.loading,
		StatusText: st.statusText,
		Saved:      st.saved,
	}
	if sess := s.sessions.PeekSession(sessionID); sess != nil {
		status.UnsavedChanges = len(sess.Messages) > st.watermark
	}
	return status
}

// state returns the controller state for a session, creating it on first
// touch. Callers hold s.mu.
func (s *TutorService) state(sessionID string) *controllerState {
	st, ok := s.states[sessionID]
	if !ok {
		st = &controllerState{}
		s.states[sessionID] = st
	}
	return st
}

// beginRequest flips the loading flag and starts the cosmetic status
// rotator for the session.
func (s *TutorService) beginRequest(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	st.loading = true
	st.statusText = statusPhrases[0]
	st.stopRotator = make(chan struct{})

	go s.rotateStatus(sessionID, st.stopRotator)
}

// rotateStatus cycles the canned phrases until stopped. Display only; it
// has no effect on the in-flight request.
func (s *TutorService) rotateStatus(sessionID string, stop <-chan struct{}) {
	ticker := time.NewTicker(statusRotateInterval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			i = (i + 1) % len(statusPhrases)
			s.mu.Lock()
			if st, ok := s.states[sessionID]; ok && st.loading {
				st.statusText = statusPhrases[i]
			}
			s.mu.Unlock()
		}
	}
}

// finishRequest is the single finalization step shared by every SendMessage
// path: loading off, rotator stopped, status text cleared.
func (s *TutorService) finishRequest(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	st.loading = false
	st.statusText = ""
	if st.stopRotator != nil {
		close(st.stopRotator)
		st.stopRotator = nil
	}
}
