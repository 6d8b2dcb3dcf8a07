package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const defaultRequestTimeout = 10 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// API calls the HTTP endpoints a subscriber needs.
type API struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Timeout: defaultRequestTimeout,
	}
}

func (a *API) timeout(ctx context.Context) time.Duration {
	d := a.Timeout
	if d <= 0 {
		d = defaultRequestTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	return d
}

func (a *API) do(ctx context.Context, agent *fiber.Agent, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent.Set(fiber.HeaderAuthorization, "Bearer "+a.Token)
	agent.Timeout(a.timeout(ctx))
	if err := agent.Parse(); err != nil {
		return err
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if status < 200 || status >= 300 {
		apiErr := &APIError{Status: status}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Resync fetches GET /api/sync?topic=.
func (a *API) Resync(ctx context.Context, topic string) (*events.Snapshot, error) {
	var snap events.Snapshot
	agent := fiber.Get(a.BaseURL + "/api/sync?topic=" + url.QueryEscape(topic))
	if err := a.do(ctx, agent, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Heartbeat posts a presence heartbeat and returns the resulting liveness.
func (a *API) Heartbeat(ctx context.Context) (string, error) {
	var out struct {
		Liveness string `json:"liveness"`
	}
	if err := a.do(ctx, fiber.Post(a.BaseURL+"/api/presence/heartbeat"), &out); err != nil {
		return "", err
	}
	return out.Liveness, nil
}

// SendDirect sends body to peer.
func (a *API) SendDirect(ctx context.Context, peer uuid.UUID, body, clientID string) (*events.MessageView, error) {
	var out struct {
		Message events.MessageView `json:"message"`
	}
	agent := fiber.Post(a.BaseURL + "/api/messages").JSON(map[string]interface{}{
		"peer_id":   peer,
		"body":      body,
		"client_id": clientID,
	})
	if err := a.do(ctx, agent, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}
