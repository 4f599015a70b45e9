package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestComplete_Success(t *testing.T) {
	var captured Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "content": "An interface is a contract."})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	got, err := c.Complete(context.Background(), &Request{
		Message:   "what is an interface?",
		CourseID:  "go101",
		ChapterID: "ch1",
		History:   []Turn{{Role: "assistant", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "An interface is a contract." {
		t.Fatalf("Complete() = %q", got)
	}
	if captured.Message != "what is an interface?" || captured.CourseID != "go101" {
		t.Fatalf("request payload = %+v", captured)
	}
	if len(captured.History) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(captured.History))
	}
}

func TestComplete_ClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, KindUnauthorized},
		{"forbidden", http.StatusForbidden, KindUnauthorized},
		{"internal error", http.StatusInternalServerError, KindServer},
		{"bad gateway", http.StatusBadGateway, KindServer},
		{"bad request", http.StatusBadRequest, KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", 5*time.Second)
			_, err := c.Complete(context.Background(), &Request{Message: "hi"})
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("Complete() error = %v, want *RequestError", err)
			}
			if reqErr.Kind != tt.want {
				t.Fatalf("Kind = %d, want %d", reqErr.Kind, tt.want)
			}
			if reqErr.StatusCode != tt.status {
				t.Fatalf("StatusCode = %d, want %d", reqErr.StatusCode, tt.status)
			}
		})
	}
}

func TestComplete_TransportFailureIsNetwork(t *testing.T) {
	// Closed port.
	c := NewClient("http://127.0.0.1:1", "", time.Second)
	_, err := c.Complete(context.Background(), &Request{Message: "hi"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Complete() error = %v, want *RequestError", err)
	}
	if reqErr.Kind != KindNetwork {
		t.Fatalf("Kind = %d, want KindNetwork", reqErr.Kind)
	}
}

func TestComplete_EmptyEndpointIsNetwork(t *testing.T) {
	c := NewClient("", "", time.Second)
	_, err := c.Complete(context.Background(), &Request{Message: "hi"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Complete() error = %v, want *RequestError", err)
	}
	if reqErr.Kind != KindNetwork {
		t.Fatalf("Kind = %d, want KindNetwork", reqErr.Kind)
	}
}

func TestComplete_EndpointReportedFailureIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "model overloaded"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Complete(context.Background(), &Request{Message: "hi"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Complete() error = %v, want *RequestError", err)
	}
	if reqErr.Kind != KindGeneric {
		t.Fatalf("Kind = %d, want KindGeneric", reqErr.Kind)
	}
	if !strings.Contains(reqErr.UserMessage(), "model overloaded") {
		t.Fatalf("UserMessage() = %q, want detail included", reqErr.UserMessage())
	}
}

func TestComplete_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Complete(ctx, &Request{Message: "hi"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Complete() error = %v, want *RequestError", err)
	}
	if reqErr.Kind != KindNetwork {
		t.Fatalf("Kind = %d, want KindNetwork for cancelled context", reqErr.Kind)
	}
}

func TestUserMessage_PerKind(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindNetwork, "check your internet connection"},
		{KindServer, "internal error"},
		{KindUnauthorized, "sign in again"},
		{KindGeneric, "something went wrong"},
	}
	for _, tt := range tests {
		e := &RequestError{Kind: tt.kind, Detail: "detail"}
		if got := e.UserMessage(); !strings.Contains(got, tt.want) {
			t.Errorf("UserMessage(kind %d) = %q, want substring %q", tt.kind, got, tt.want)
		}
	}
}
