package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"chatrelay/internal/app/realtime"
	"chatrelay/internal/domain/messages"
)

// Credentials identify the caller. With TrustHeader the token is sent as
// X-User-ID, otherwise as a bearer token.
type Credentials struct {
	Token       string
	TrustHeader bool
}

func (c Credentials) apply(h http.Header) {
	if c.TrustHeader {
		h.Set("X-User-ID", c.Token)
		return
	}
	h.Set("Authorization", "Bearer "+c.Token)
}

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status  int
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// API is the REST client for /api/v1.
type API struct {
	http *resty.Client
}

type SendInput struct {
	Text     string `json:"text,omitempty"`
	Image    string `json:"image,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
}

func NewAPI(baseURL string, creds Credentials) *API {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/api/v1").
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json")
	if creds.TrustHeader {
		c.SetHeader("X-User-ID", creds.Token)
	} else {
		c.SetAuthToken(creds.Token)
	}
	return &API{http: c}
}

// Send posts a message to to. Transport failures are retried with the same
// idempotencyKey so the server stores the message once.
func (a *API) Send(ctx context.Context, to string, in SendInput, idempotencyKey string) (messages.Message, error) {
	var msg messages.Message
	req := a.request(ctx).SetPathParam("id", to).SetBody(in).SetResult(&msg)
	if idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", idempotencyKey)
	}
	if err := check(req.Post("/conversations/{id}/messages")); err != nil {
		return messages.Message{}, err
	}
	return msg, nil
}

func (a *API) History(ctx context.Context, counterpart string) ([]messages.Message, error) {
	var out struct {
		Items []messages.Message `json:"items"`
	}
	resp, err := a.request(ctx).SetPathParam("id", counterpart).SetResult(&out).Get("/conversations/{id}/messages")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (a *API) MarkRead(ctx context.Context, counterpart string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	resp, err := a.request(ctx).SetPathParam("id", counterpart).SetResult(&out).Post("/conversations/{id}/read")
	if err := check(resp, err); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (a *API) Unread(ctx context.Context) (map[string]int, error) {
	var out struct {
		Counts map[string]int `json:"counts"`
	}
	resp, err := a.request(ctx).SetResult(&out).Get("/unread")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Counts, nil
}

func (a *API) Presence(ctx context.Context) (realtime.PresencePayload, error) {
	var out realtime.PresencePayload
	resp, err := a.request(ctx).SetResult(&out).Get("/presence")
	if err := check(resp, err); err != nil {
		return realtime.PresencePayload{}, err
	}
	return out, nil
}

func (a *API) request(ctx context.Context) *resty.Request {
	return a.http.R().SetContext(ctx).SetError(&APIError{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if e, ok := resp.Error().(*APIError); ok && e != nil {
		apiErr.Message = e.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(apiErr.Status)
	}
	return apiErr
}

var _ ReadMarker = (*API)(nil)
