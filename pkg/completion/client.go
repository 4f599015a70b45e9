// Package completion calls the external AI tutoring endpoint.
//
// The wire contract is a single JSON POST carrying the learner's message plus
// chapter/course context; the endpoint answers {"success": true, "content":
// "..."}. Anything else is a failure, classified into a learner-facing
// fallback message that the controller appends as an ordinary assistant turn.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coursepilot/coursepilot/pkg/models"
	"github.com/coursepilot/coursepilot/pkg/utils"
)

// Request is the outbound completion payload.
type Request struct {
	Message        string              `json:"message"`
	CourseID       string              `json:"course_id"`
	CourseTitle    string              `json:"course_title,omitempty"`
	ChapterID      string              `json:"chapter_id"`
	ChapterTitle   string              `json:"chapter_title,omitempty"`
	ChapterContent string              `json:"chapter_content,omitempty"`
	Chapters       []ChapterRef        `json:"chapters,omitempty"` // cross-chapter context
	Attachments    []models.Attachment `json:"attachments,omitempty"`
	History        []Turn              `json:"history,omitempty"` // most recent turns, oldest first
}

// ChapterRef identifies a sibling chapter for cross-chapter context.
type ChapterRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Turn is one prior conversation turn.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ErrorKind buckets request failures for user-facing messaging.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindNetwork
	KindServer
	KindUnauthorized
)

// RequestError is a classified completion failure.
type RequestError struct {
	Kind       ErrorKind
	StatusCode int // 0 for transport failures
	Detail     string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion request failed: %v", e.Err)
	}
	return fmt.Sprintf("completion request failed: status %d: %s", e.StatusCode, e.Detail)
}

func (e *RequestError) Unwrap() error { return e.Err }

// UserMessage returns the canned assistant-authored text for this failure.
// These are appended to the session as normal messages so the conversation
// thread stays the single channel of truth for the learner.
func (e *RequestError) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return "I can't reach the tutoring service right now. Please check your internet connection and try again."
	case KindServer:
		return "The tutoring service ran into an internal error. Please try again in a moment."
	case KindUnauthorized:
		return "Your session has expired. Please sign in again to continue our conversation."
	default:
		detail := e.Detail
		if detail == "" && e.Err != nil {
			detail = e.Err.Error()
		}
		if detail == "" {
			detail = "unexpected response"
		}
		return fmt.Sprintf("Sorry, something went wrong while answering (%s). Please try again.", detail)
	}
}

// Client posts completion requests to a configured endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a completion client. An empty endpoint yields a client
// whose calls fail with a network-kind error, keeping unconfigured
// deployments functional in degraded mode.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.GetLogger(),
	}
}

// Complete sends the request and returns the assistant content. Failures are
// always *RequestError so callers can map them to learner-facing text.
func (c *Client) Complete(ctx context.Context, req *Request) (string, error) {
	if c.endpoint == "" {
		return "", &RequestError{Kind: KindNetwork, Err: fmt.Errorf("no completion endpoint configured")}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &RequestError{Kind: KindGeneric, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &RequestError{Kind: KindGeneric, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Transport-level failure: DNS, refused connection, timeout,
		// cancelled context.
		return "", &RequestError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &RequestError{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := KindGeneric
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			kind = KindUnauthorized
		case resp.StatusCode >= 500:
			kind = KindServer
		}
		c.logger.Warn("Completion endpoint returned error status", "status", resp.StatusCode)
		return "", &RequestError{Kind: kind, StatusCode: resp.StatusCode, Detail: string(raw)}
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &RequestError{Kind: KindGeneric, StatusCode: resp.StatusCode, Err: err}
	}
	if !parsed.Success {
		detail := parsed.Error
		if detail == "" {
			detail = "endpoint reported failure"
		}
		return "", &RequestError{Kind: KindGeneric, StatusCode: resp.StatusCode, Detail: detail}
	}

	return parsed.Content, nil
}
