package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
)

var (
	ErrInFlight     = errors.New("a change to this notification is already in flight")
	ErrUnknown      = errors.New("notification is not in the local view")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidType  = errors.New("notification is not a project invitation")
)

// API is the notification service as seen by a client.
type API interface {
	List(ctx context.Context) ([]model.NotificationView, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*MarkReadResult, error)
	MarkAllRead(ctx context.Context) (int, error)
	AcceptInvitation(ctx context.Context, id uuid.UUID) (*AcceptResult, error)
}

type MarkReadResult struct {
	Outcome      model.MarkOutcome      `json:"outcome"`
	Notification model.NotificationView `json:"notification"`
}

type AcceptResult struct {
	Outcome      model.AcceptOutcome    `json:"outcome"`
	Project      *model.RelatedProject  `json:"project"`
	Notification model.NotificationView `json:"notification"`
}

type countResult struct {
	Count int `json:"count"`
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notification service returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnprocessableEntity:
		return ErrInvalidType
	}
	return nil
}

// HTTPAPI talks to the service's REST surface with a bearer token.
type HTTPAPI struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPAPI) List(ctx context.Context) ([]model.NotificationView, error) {
	var views []model.NotificationView
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications", &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *HTTPAPI) MarkRead(ctx context.Context, id uuid.UUID) (*MarkReadResult, error) {
	var result MarkReadResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/notifications/"+id.String()+"/read", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPAPI) MarkAllRead(ctx context.Context) (int, error) {
	var result countResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/notifications/read-all", &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (c *HTTPAPI) AcceptInvitation(ctx context.Context, id uuid.UUID) (*AcceptResult, error) {
	var result AcceptResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/notifications/"+id.String()+"/accept-invitation", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPAPI) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error     string `json:"error"`
			Retryable bool   `json:"retryable"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(body))
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: payload.Error, Retryable: payload.Retryable}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
