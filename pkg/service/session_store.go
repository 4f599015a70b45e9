// Tutor chat session store: caps, TTL expiry, explicit save, summary index
package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coursepilot/coursepilot/pkg/event"
	"github.com/coursepilot/coursepilot/pkg/kv"
	"github.com/coursepilot/coursepilot/pkg/models"
	"github.com/coursepilot/coursepilot/pkg/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned by AddMessage when the session id cannot be
// resolved or synthesized from its course/chapter parts.
var ErrSessionNotFound = errors.New("session not found")

// Storage keys. Session blobs live under sessionKeyPrefix + id; the summary
// index and the active-session pointer are single records.
const (
	sessionKeyPrefix = "tutor_session_"
	sessionIndexKey  = "tutor_session_index"
	activeSessionKey = "tutor_active_session"
)

// StorageLimitBytes is the advertised capacity of the persistence layer.
const StorageLimitBytes = 5 * 1024 * 1024

const previewLength = 50

const welcomeTemplate = "Hi! I'm your AI study assistant for **%s**. " +
	"Ask me anything about this chapter - I can explain concepts, walk through examples, or quiz you on what you've read."

// SessionStore manages ChatSession records over a kv.Store.
//
// A session begins life in memory only (the "temporary" slot) and is not
// written to the persistence layer until an explicit save. Clearing is the
// one mutation that persists eagerly. Expired sessions are purged lazily on
// read, and the persisted population is capped with least-recently-active
// eviction.
type SessionStore struct {
	mu     sync.Mutex
	store  kv.Store
	logger *slog.Logger

	maxSessions int
	maxMessages int
	ttl         time.Duration

	// temp is the current in-memory session. GetOrCreate fills it; explicit
	// save persists it. One slot, matching one open chapter at a time.
	temp *models.ChatSession
}

// SessionStoreOptions tunes the store; zero values select the defaults that
// match the web client's behavior.
type SessionStoreOptions struct {
	MaxSessions int           // persisted session cap (default 10)
	MaxMessages int           // per-session message cap (default 50)
	TTL         time.Duration // inactivity window before expiry (default 24h)
}

// NewSessionStore creates a session store over the given persistence backend.
func NewSessionStore(store kv.Store, opts SessionStoreOptions) *SessionStore {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 50
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &SessionStore{
		store:       store,
		logger:      utils.GetLogger(),
		maxSessions: opts.MaxSessions,
		maxMessages: opts.MaxMessages,
		ttl:         opts.TTL,
	}
}

// SessionID builds the composite session id for a course/chapter pair.
func SessionID(courseID, chapterID string) string {
	return courseID + "_" + chapterID
}

// splitSessionID recovers the course/chapter parts from a composite id.
// Course ids never contain underscores; chapter ids may.
func splitSessionID(id string) (courseID, chapterID string, ok bool) {
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// GetOrCreate resolves the session for a chapter.
//
// Resolution order: current temporary session, then a persisted unexpired
// session, then a brand-new session seeded with a welcome message. The new
// session is held in memory only; nothing is written except the
// active-session pointer.
func (s *SessionStore) GetOrCreate(courseID, chapterID, chapterTitle string) *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := SessionID(courseID, chapterID)

	if s.temp != nil && s.temp.ID == id {
		s.temp.LastActivity = time.Now()
		return s.temp
	}

	if sess := s.loadSession(id); sess != nil {
		sess.Active = true
		sess.LastActivity = time.Now()
		s.temp = sess
		s.setActivePointer(id)
		return sess
	}

	now := time.Now()
	sess := &models.ChatSession{
		ID:           id,
		CourseID:     courseID,
		ChapterID:    chapterID,
		ChapterTitle: chapterTitle,
		Messages:     []models.ChatMessage{newWelcomeMessage(chapterTitle, now)},
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}
	s.temp = sess
	s.setActivePointer(id)
	return sess
}

func newWelcomeMessage(chapterTitle string, now time.Time) models.ChatMessage {
	title := chapterTitle
	if strings.TrimSpace(title) == "" {
		title = "this chapter"
	}
	return models.ChatMessage{
		ID:        fmt.Sprintf("welcome_%d", now.UnixMilli()),
		Role:      models.RoleAssistant,
		Content:   fmt.Sprintf(welcomeTemplate, title),
		Timestamp: now,
		Seed:      true,
	}
}

// AddMessage appends a message to the session in memory. It assigns the
// message id and timestamp, bumps LastActivity and enforces the message cap.
// Nothing is persisted; the caller renders the returned message immediately.
func (s *SessionStore) AddMessage(sessionID string, draft models.ChatMessage) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.resolveLocked(sessionID)
	if sess == nil {
		return nil, errors.Wrapf(ErrSessionNotFound, "id %q", sessionID)
	}

	now := time.Now()
	msg := draft
	msg.ID = fmt.Sprintf("msg_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
	msg.Timestamp = now
	msg.Seed = false

	sess.Messages = append(sess.Messages, msg)
	sess.LastActivity = now

	// Cap enforcement keeps index 0 (the welcome message) plus the most
	// recent maxMessages-1 entries.
	if len(sess.Messages) > s.maxMessages {
		kept := make([]models.ChatMessage, 0, s.maxMessages)
		kept = append(kept, sess.Messages[0])
		kept = append(kept, sess.Messages[len(sess.Messages)-(s.maxMessages-1):]...)
		sess.Messages = kept
	}

	event.Emit(event.MessageAppendedEvent{SessionID: sess.ID, MessageID: msg.ID, Role: msg.Role})
	return &msg, nil
}

// resolveLocked finds the session for id: temporary slot first, then
// storage, then a getOrCreate-style fallback from the parsed id parts.
// Returns nil when the id cannot even be split into course/chapter.
func (s *SessionStore) resolveLocked(id string) *models.ChatSession {
	if s.temp != nil && s.temp.ID == id {
		return s.temp
	}
	if sess := s.loadSession(id); sess != nil {
		sess.Active = true
		s.temp = sess
		return sess
	}
	courseID, chapterID, ok := splitSessionID(id)
	if !ok {
		return nil
	}
	now := time.Now()
	sess := &models.ChatSession{
		ID:           id,
		CourseID:     courseID,
		ChapterID:    chapterID,
		Messages:     []models.ChatMessage{newWelcomeMessage("", now)},
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}
	s.temp = sess
	return sess
}

// LookupSession finds an existing session: the temporary slot if it matches,
// else persisted state, which then becomes the temporary session. Unlike
// AddMessage's resolution it never synthesizes; unknown ids return nil.
func (s *SessionStore) LookupSession(sessionID string) *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.temp != nil && s.temp.ID == sessionID {
		return s.temp
	}
	if sess := s.loadSession(sessionID); sess != nil {
		sess.Active = true
		s.temp = sess
		return sess
	}
	return nil
}

// PeekSession reads the session without disturbing store state: no
// synthesize, no temporary-slot replacement. Read-only surfaces (status,
// export) use this so they can never discard unsaved in-memory messages.
func (s *SessionStore) PeekSession(sessionID string) *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.temp != nil && s.temp.ID == sessionID {
		return s.temp
	}
	return s.loadSession(sessionID)
}

// SaveCurrentSession persists the session's in-memory state and refreshes
// its summary index entry. Returns false when the session cannot be found;
// storage failures are absorbed (logged, write dropped) per the degraded-
// mode policy.
func (s *SessionStore) SaveCurrentSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.resolveForSaveLocked(sessionID)
	if sess == nil {
		return false
	}

	s.persistSession(sess)
	s.upsertSummary(sess)
	s.cleanupOldSessions()

	event.Emit(event.SessionSavedEvent{SessionID: sess.ID})
	return true
}

// resolveForSaveLocked is resolveLocked without the synthesize fallback:
// saving a session that never existed is reported, not invented.
func (s *SessionStore) resolveForSaveLocked(id string) *models.ChatSession {
	if s.temp != nil && s.temp.ID == id {
		return s.temp
	}
	if sess := s.loadSession(id); sess != nil {
		return sess
	}
	return nil
}

// ClearSession truncates the session to its welcome message and persists the
// reset state immediately. This is the one eagerly-persisted mutation.
func (s *SessionStore) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.resolveForSaveLocked(sessionID)
	if sess == nil {
		return
	}

	var kept []models.ChatMessage
	for _, m := range sess.Messages {
		if m.Seed {
			kept = append(kept, m)
			break
		}
	}
	if kept == nil {
		kept = []models.ChatMessage{}
	}
	sess.Messages = kept
	sess.LastActivity = time.Now()

	s.persistSession(sess)
	s.upsertSummary(sess)

	event.Emit(event.SessionClearedEvent{SessionID: sess.ID})
}

// GetSession loads a session from storage, purging it when expired.
// The temporary slot is not consulted; this reads persisted state only.
func (s *SessionStore) GetSession(sessionID string) *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSession(sessionID)
}

// GetActiveSession resolves the remembered active-session pointer.
func (s *SessionStore) GetActiveSession() *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.store.Read(activeSessionKey)
	if !ok || id == "" {
		return nil
	}
	return s.loadSession(id)
}

// SetActiveSession records which session the UI currently shows.
func (s *SessionStore) SetActiveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setActivePointer(sessionID)
}

// GetAllSessionSummaries lists persisted sessions, most recent first.
// Expired entries are filtered out (and left for cleanup to purge).
func (s *SessionStore) GetAllSessionSummaries() []models.ChatSessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.loadIndex()
	now := time.Now()
	live := make([]models.ChatSessionSummary, 0, len(index))
	for _, sum := range index {
		if now.Sub(sum.LastActivity) > s.ttl {
			continue
		}
		live = append(live, sum)
	}

	sort.SliceStable(live, func(i, j int) bool {
		return live[i].LastActivity.After(live[j].LastActivity)
	})
	return live
}

// DeleteSession removes the session blob and its index entry.
func (s *SessionStore) DeleteSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteSessionLocked(sessionID)
	event.Emit(event.SessionDeletedEvent{SessionID: sessionID})
}

func (s *SessionStore) deleteSessionLocked(sessionID string) {
	s.store.Remove(sessionKeyPrefix + sessionID)
	s.removeFromIndex(sessionID)

	if s.temp != nil && s.temp.ID == sessionID {
		s.temp = nil
	}
	if id, ok := s.store.Read(activeSessionKey); ok && id == sessionID {
		s.store.Remove(activeSessionKey)
	}
}

// ClearAllSessions removes every indexed session blob, the index itself and
// the active-session pointer.
func (s *SessionStore) ClearAllSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sum := range s.loadIndex() {
		s.store.Remove(sessionKeyPrefix + sum.ID)
	}
	s.store.Remove(sessionIndexKey)
	s.store.Remove(activeSessionKey)
	s.temp = nil

	event.Emit(event.SessionsClearedEvent{})
}

// GetStorageStats estimates persisted usage from serialized blob lengths.
func (s *SessionStore) GetStorageStats() models.StorageStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.StorageStats{StorageLimit: StorageLimitBytes}

	index := s.loadIndex()
	stats.TotalSessions = len(index)
	for _, sum := range index {
		stats.TotalMessages += sum.MessageCount
		if blob, ok := s.store.Read(sessionKeyPrefix + sum.ID); ok {
			stats.StorageUsed += int64(len(blob))
		}
	}
	if blob, ok := s.store.Read(sessionIndexKey); ok {
		stats.StorageUsed += int64(len(blob))
	}
	return stats
}

// ========== internal persistence helpers (callers hold mu) ==========

// loadSession reads and deserializes a session blob, deleting it when
// expired or corrupt.
func (s *SessionStore) loadSession(id string) *models.ChatSession {
	blob, ok := s.store.Read(sessionKeyPrefix + id)
	if !ok {
		return nil
	}

	var sess models.ChatSession
	if err := json.Unmarshal([]byte(blob), &sess); err != nil {
		s.logger.Warn("Dropping corrupt session blob", "sessionID", id, "error", err)
		s.store.Remove(sessionKeyPrefix + id)
		s.removeFromIndex(id)
		return nil
	}

	if time.Since(sess.LastActivity) > s.ttl {
		s.logger.Debug("Purging expired session", "sessionID", id, "lastActivity", sess.LastActivity)
		s.store.Remove(sessionKeyPrefix + id)
		s.removeFromIndex(id)
		return nil
	}

	return &sess
}

// persistSession writes the session blob. A quota failure triggers one
// cleanup pass and a retry; a second failure drops the write.
func (s *SessionStore) persistSession(sess *models.ChatSession) {
	blob, err := json.Marshal(sess)
	if err != nil {
		s.logger.Error("Failed to serialize session", "sessionID", sess.ID, "error", err)
		return
	}
	s.writeWithCleanup(sessionKeyPrefix+sess.ID, string(blob))
}

func (s *SessionStore) writeWithCleanup(key, value string) {
	err := s.store.Write(key, value)
	if err == nil {
		return
	}
	if errors.Is(err, kv.ErrQuotaExceeded) {
		s.cleanupOldSessions()
		err = s.store.Write(key, value)
	}
	if err != nil {
		s.logger.Warn("Dropping write after storage failure", "key", key, "error", err)
	}
}

func (s *SessionStore) setActivePointer(id string) {
	if err := s.store.Write(activeSessionKey, id); err != nil {
		s.logger.Warn("Failed to record active session", "sessionID", id, "error", err)
	}
}

func (s *SessionStore) loadIndex() []models.ChatSessionSummary {
	blob, ok := s.store.Read(sessionIndexKey)
	if !ok {
		return nil
	}
	var index []models.ChatSessionSummary
	if err := json.Unmarshal([]byte(blob), &index); err != nil {
		s.logger.Warn("Dropping corrupt session index", "error", err)
		return nil
	}
	return index
}

// writeIndex writes the summary index directly, without the cleanup-retry
// path; cleanup itself rewrites the index, so routing it through
// writeWithCleanup could recurse on a persistent quota failure.
func (s *SessionStore) writeIndex(index []models.ChatSessionSummary) {
	blob, err := json.Marshal(index)
	if err != nil {
		s.logger.Error("Failed to serialize session index", "error", err)
		return
	}
	if err := s.store.Write(sessionIndexKey, string(blob)); err != nil {
		s.logger.Warn("Failed to write session index", "error", err)
	}
}

func (s *SessionStore) upsertSummary(sess *models.ChatSession) {
	index := s.loadIndex()
	sum := summarize(sess)
	replaced := false
	for i := range index {
		if index[i].ID == sum.ID {
			index[i] = sum
			replaced = true
			break
		}
	}
	if !replaced {
		index = append(index, sum)
	}
	s.writeIndex(index)
}

func (s *SessionStore) removeFromIndex(id string) {
	index := s.loadIndex()
	kept := index[:0]
	for _, sum := range index {
		if sum.ID != id {
			kept = append(kept, sum)
		}
	}
	if len(kept) != len(index) {
		s.writeIndex(kept)
	}
}

// cleanupOldSessions purges TTL-expired sessions, then evicts the least
// recently active until the persisted population fits the cap.
func (s *SessionStore) cleanupOldSessions() {
	index := s.loadIndex()
	now := time.Now()

	live := index[:0]
	for _, sum := range index {
		if now.Sub(sum.LastActivity) > s.ttl {
			s.logger.Debug("Cleanup purging expired session", "sessionID", sum.ID)
			s.store.Remove(sessionKeyPrefix + sum.ID)
			continue
		}
		live = append(live, sum)
	}

	if len(live) > s.maxSessions {
		sort.SliceStable(live, func(i, j int) bool {
			return live[i].LastActivity.Before(live[j].LastActivity)
		})
		for len(live) > s.maxSessions {
			victim := live[0]
			s.logger.Debug("Cleanup evicting least-recent session", "sessionID", victim.ID)
			s.store.Remove(sessionKeyPrefix + victim.ID)
			live = live[1:]
		}
	}

	s.writeIndex(live)
}

// summarize derives the index projection for a session. The preview comes
// from the last user-authored message; assistant chatter never leaks into
// the session picker.
func summarize(sess *models.ChatSession) models.ChatSessionSummary {
	preview := "New conversation"
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == models.RoleUser {
			preview = truncateRunes(sess.Messages[i].Content, previewLength) + "..."
			break
		}
	}

	return models.ChatSessionSummary{
		ID:           sess.ID,
		CourseID:     sess.CourseID,
		ChapterID:    sess.ChapterID,
		ChapterTitle: sess.ChapterTitle,
		MessageCount: len(sess.Messages),
		LastActivity: sess.LastActivity,
		Preview:      preview,
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
