// Package client talks to a running chat2vis server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dyike/chat2vis/models"
)

var ErrNotFound = errors.New("not found")

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Msg)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type Client struct {
	client *resty.Client
}

// New creates a client for the server at baseURL. A zero timeout means none.
func New(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Client{client: client}
}

// envelope mirrors models.Response with a typed payload.
type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func call[T any](req *resty.Request, method, path string) (T, error) {
	var out envelope[T]
	resp, err := req.Execute(method, path)
	if err != nil {
		return out.Data, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		if resp.IsError() {
			return out.Data, &APIError{Status: resp.StatusCode(), Msg: resp.String()}
		}
		return out.Data, fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.IsError() {
		return out.Data, &APIError{Status: resp.StatusCode(), Msg: out.Msg}
	}
	return out.Data, nil
}

func (c *Client) Health(ctx context.Context) error {
	_, err := call[map[string]any](c.client.R().SetContext(ctx), http.MethodGet, "/health")
	return err
}

func (c *Client) NewSession(ctx context.Context) (string, error) {
	reply, err := call[models.SessionReply](c.client.R().SetContext(ctx), http.MethodPost, "/v1/sessions")
	return reply.SessionID, err
}

// Ask sends one message. An empty sessionID lets the server mint one.
func (c *Client) Ask(ctx context.Context, sessionID, message string) (*models.ChatReply, error) {
	req := c.client.R().SetContext(ctx).SetBody(models.ChatRequest{SessionID: sessionID, Message: message})
	reply, err := call[models.ChatReply](req, http.MethodPost, "/v1/chat")
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) Messages(ctx context.Context, sessionID string) ([]models.Turn, error) {
	req := c.client.R().SetContext(ctx).SetPathParam("id", sessionID)
	reply, err := call[models.MessagesReply](req, http.MethodGet, "/v1/sessions/{id}/messages")
	return reply.Turns, err
}

func (c *Client) Delete(ctx context.Context, sessionID string) error {
	req := c.client.R().SetContext(ctx).SetPathParam("id", sessionID)
	_, err := call[json.RawMessage](req, http.MethodDelete, "/v1/sessions/{id}")
	return err
}
