package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coursepilot/coursepilot/pkg/completion"
	"github.com/coursepilot/coursepilot/pkg/kv"
	"github.com/coursepilot/coursepilot/pkg/models"
)

// newTestTutor wires a TutorService against a stub completion endpoint.
func newTestTutor(t *testing.T, handlerFn http.HandlerFunc) *TutorService {
	t.Helper()
	srv := httptest.NewServer(handlerFn)
	t.Cleanup(srv.Close)

	sessions := NewSessionStore(kv.NewMemoryStore(), SessionStoreOptions{})
	client := completion.NewClient(srv.URL, "", 5*time.Second)
	return NewTutorService(sessions, nil, client)
}

func okCompletion(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "content": content})
	}
}

func TestSendMessage_AppendsBothTurns(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("because slices share backing arrays"))

	sess := tutor.Open("go101", "ch1", "Slices")
	resp, err := tutor.SendMessage(context.Background(), sess.ID, "why did my slice change?", nil)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if resp.UserMessage.Role != models.RoleUser || resp.UserMessage.Content != "why did my slice change?" {
		t.Fatalf("UserMessage = %+v", resp.UserMessage)
	}
	if resp.AssistantMessage.Role != models.RoleAssistant || resp.AssistantMessage.Content != "because slices share backing arrays" {
		t.Fatalf("AssistantMessage = %+v", resp.AssistantMessage)
	}
	if len(sess.Messages) != 3 { // welcome + user + assistant
		t.Fatalf("len(Messages) = %d, want 3", len(sess.Messages))
	}
}

func TestSendMessage_BlankIsNoOp(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("unused"))

	sess := tutor.Open("go101", "ch1", "Slices")
	resp, err := tutor.SendMessage(context.Background(), sess.ID, "   \n\t ", nil)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if resp != nil {
		t.Fatalf("SendMessage() = %+v for blank input, want nil", resp)
	}
	if len(sess.Messages) != 1 {
		t.Fatalf("len(Messages) = %d after blank send, want 1", len(sess.Messages))
	}
}

func TestSendMessage_FailureBecomesAssistantMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, "sign in again"},
		{"server error", http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tutor := newTestTutor(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			sess := tutor.Open("go101", "ch1", "Slices")
			resp, err := tutor.SendMessage(context.Background(), sess.ID, "hello", nil)
			if err != nil {
				t.Fatalf("SendMessage() error = %v, failures must stay in-band", err)
			}
			if resp.AssistantMessage.Role != models.RoleAssistant {
				t.Fatalf("fallback role = %q", resp.AssistantMessage.Role)
			}
			if !strings.Contains(resp.AssistantMessage.Content, tt.want) {
				t.Fatalf("fallback = %q, want substring %q", resp.AssistantMessage.Content, tt.want)
			}
		})
	}
}

func TestSendMessage_NetworkFailureBecomesAssistantMessage(t *testing.T) {
	sessions := NewSessionStore(kv.NewMemoryStore(), SessionStoreOptions{})
	client := completion.NewClient("http://127.0.0.1:1", "", time.Second)
	tutor := NewTutorService(sessions, nil, client)

	sess := tutor.Open("go101", "ch1", "Slices")
	resp, err := tutor.SendMessage(context.Background(), sess.ID, "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !strings.Contains(resp.AssistantMessage.Content, "check your internet connection") {
		t.Fatalf("fallback = %q", resp.AssistantMessage.Content)
	}
}

func TestSendMessage_HistoryWindow(t *testing.T) {
	var histories [][]completion.Turn
	tutor := newTestTutor(t, func(w http.ResponseWriter, r *http.Request) {
		var req completion.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		histories = append(histories, req.History)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "content": "ok"})
	})

	sess := tutor.Open("go101", "ch1", "Slices")
	for i := 0; i < 8; i++ {
		if _, err := tutor.SendMessage(context.Background(), sess.ID, "question", nil); err != nil {
			t.Fatalf("SendMessage(%d) error = %v", i, err)
		}
	}

	// First request: only the welcome message precedes the user's turn.
	if len(histories[0]) != 1 {
		t.Fatalf("len(histories[0]) = %d, want 1", len(histories[0]))
	}
	// Every request carries at most historyWindow turns, and never the
	// message being answered.
	last := histories[len(histories)-1]
	if len(last) != historyWindow {
		t.Fatalf("len(last history) = %d, want %d", len(last), historyWindow)
	}
	for _, turn := range last {
		if turn.Role != models.RoleUser && turn.Role != models.RoleAssistant {
			t.Fatalf("history turn role = %q", turn.Role)
		}
	}
}

func TestStatus_WatermarkTracksUnsavedChanges(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("answer"))

	sess := tutor.Open("go101", "ch1", "Slices")
	if st := tutor.Status(sess.ID); st.UnsavedChanges {
		t.Fatalf("UnsavedChanges = true immediately after open")
	}

	if _, err := tutor.SendMessage(context.Background(), sess.ID, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if st := tutor.Status(sess.ID); !st.UnsavedChanges {
		t.Fatalf("UnsavedChanges = false after new messages")
	}

	if !tutor.SaveSession(sess.ID) {
		t.Fatalf("SaveSession() = false")
	}
	st := tutor.Status(sess.ID)
	if st.UnsavedChanges {
		t.Fatalf("UnsavedChanges = true after save")
	}
	if !st.Saved {
		t.Fatalf("Saved = false after save")
	}
}

func TestStatus_NotLoadingWhenIdle(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("answer"))

	sess := tutor.Open("go101", "ch1", "Slices")
	if _, err := tutor.SendMessage(context.Background(), sess.ID, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	st := tutor.Status(sess.ID)
	if st.Loading {
		t.Fatalf("Loading = true after request completed")
	}
	if st.StatusText != "" {
		t.Fatalf("StatusText = %q after request completed, want empty", st.StatusText)
	}
}

func TestClearChat_ResetsWatermark(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("answer"))

	sess := tutor.Open("go101", "ch1", "Slices")
	if _, err := tutor.SendMessage(context.Background(), sess.ID, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	cleared := tutor.ClearChat(sess.ID)
	if cleared == nil || len(cleared.Messages) != 1 {
		t.Fatalf("ClearChat() = %+v, want session with only the welcome message", cleared)
	}
	if st := tutor.Status(sess.ID); st.UnsavedChanges {
		t.Fatalf("UnsavedChanges = true right after clear")
	}
}

func TestDeleteSession_ActiveGetsReplacement(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("answer"))

	sess := tutor.Open("go101", "ch1", "Slices")
	if !tutor.SaveSession(sess.ID) {
		t.Fatalf("SaveSession() = false")
	}
	if _, err := tutor.SendMessage(context.Background(), sess.ID, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	replacement := tutor.DeleteSession(sess.ID)
	if replacement == nil {
		t.Fatalf("DeleteSession() = nil for active session, want fresh replacement")
	}
	if replacement.ID != sess.ID {
		t.Fatalf("replacement.ID = %q, want %q", replacement.ID, sess.ID)
	}
	if len(replacement.Messages) != 1 || !replacement.Messages[0].Seed {
		t.Fatalf("replacement messages = %+v, want single welcome", replacement.Messages)
	}
}

func TestSwitchToSession_UnknownID(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("answer"))

	if _, err := tutor.SwitchToSession("go101_missing"); err == nil {
		t.Fatalf("SwitchToSession() error = nil for unknown session")
	}
}

func TestSwitchToSession_PersistedSession(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("answer"))

	first := tutor.Open("go101", "ch1", "Slices")
	if _, err := tutor.SendMessage(context.Background(), first.ID, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !tutor.SaveSession(first.ID) {
		t.Fatalf("SaveSession() = false")
	}
	tutor.Open("go101", "ch2", "Maps")

	sess, err := tutor.SwitchToSession(first.ID)
	if err != nil {
		t.Fatalf("SwitchToSession() error = %v", err)
	}
	if sess.ID != first.ID || len(sess.Messages) != 3 {
		t.Fatalf("SwitchToSession() = %+v, want saved session with 3 messages", sess)
	}
}

func TestStatusAndExport_PreserveUnsavedSession(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("answer"))

	sess := tutor.Open("go101", "ch1", "Slices")
	if _, err := tutor.SendMessage(context.Background(), sess.ID, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	// Read-only lookups for a different id must not touch the open session.
	st := tutor.Status("go101_other")
	if st.UnsavedChanges {
		t.Fatalf("Status(unknown).UnsavedChanges = true, want false")
	}
	if _, err := tutor.ExportSession("go101_other"); err == nil {
		t.Fatalf("ExportSession() error = nil for unknown session")
	}

	again := tutor.Open("go101", "ch1", "Slices")
	if len(again.Messages) != 3 {
		t.Fatalf("len(Messages) = %d after reads for another id, want 3", len(again.Messages))
	}
}

func TestExportSession(t *testing.T) {
	tutor := newTestTutor(t, okCompletion("the answer"))

	sess := tutor.Open("go101", "ch1", "Slices")
	if _, err := tutor.SendMessage(context.Background(), sess.ID, "the question", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	raw, err := tutor.ExportSession(sess.ID)
	if err != nil {
		t.Fatalf("ExportSession() error = %v", err)
	}

	var export models.ExportedSession
	if err := json.Unmarshal(raw, &export); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if export.ChapterTitle != "Slices" {
		t.Fatalf("ChapterTitle = %q", export.ChapterTitle)
	}
	if len(export.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(export.Messages))
	}
	if export.Messages[1].Content != "the question" || export.Messages[2].Content != "the answer" {
		t.Fatalf("export messages = %+v", export.Messages)
	}
	if _, err := time.Parse(time.RFC3339, export.Messages[0].Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
}
