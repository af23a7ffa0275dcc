package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wricardo/codequest/game/overrides"
)

// StatusError is an unexpected HTTP status from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// OverridesPayload is the body of the override routes.
type OverridesPayload struct {
	Overrides []OverrideEntry `json:"overrides"`
}

// HTTPGateway talks to the backend routes of a remote server.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPGateway creates a client for the backend at baseURL. token is sent
// as a bearer token when set.
func NewHTTPGateway(baseURL, token string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (h *HTTPGateway) LoadSnapshot(ctx context.Context, player string) (*Snapshot, error) {
	if err := checkID(player); err != nil {
		return nil, err
	}
	body, status, err := h.do(ctx, http.MethodGet, h.playerPath(player, "snapshot"), nil)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(body), nil
}

func (h *HTTPGateway) SaveSnapshot(ctx context.Context, player string, snap Snapshot) error {
	if err := checkID(player); err != nil {
		return err
	}
	_, _, err := h.do(ctx, http.MethodPut, h.playerPath(player, "snapshot"), snap)
	return err
}

func (h *HTTPGateway) DeleteSnapshot(ctx context.Context, player string) error {
	if err := checkID(player); err != nil {
		return err
	}
	_, status, err := h.do(ctx, http.MethodDelete, h.playerPath(player, "snapshot"), nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (h *HTTPGateway) LoadOverrides(ctx context.Context, world string) (map[overrides.TileKey]bool, error) {
	body, status, err := h.do(ctx, http.MethodGet, h.worldPath(world), nil)
	if status == http.StatusNotFound {
		return map[overrides.TileKey]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	var payload OverridesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode overrides: %w", err)
	}
	return MapFromEntries(payload.Overrides), nil
}

func (h *HTTPGateway) SaveOverrides(ctx context.Context, world string, entries map[overrides.TileKey]bool) error {
	_, _, err := h.do(ctx, http.MethodPut, h.worldPath(world), OverridesPayload{Overrides: EntriesFromMap(entries)})
	return err
}

// RecordQuestCompletion posts a completion. The backend accepts duplicates
// and drops them.
func (h *HTTPGateway) RecordQuestCompletion(ctx context.Context, player string, rec Completion) error {
	if err := checkID(player); err != nil {
		return err
	}
	_, _, err := h.do(ctx, http.MethodPost, h.playerPath(player, "completions"), rec)
	return err
}

func (h *HTTPGateway) playerPath(player, leaf string) string {
	return "/backend/players/" + url.PathEscape(player) + "/" + leaf
}

func (h *HTTPGateway) worldPath(world string) string {
	return "/backend/worlds/" + url.PathEscape(world) + "/overrides"
}

// do sends a request and returns the body of a 2xx response. Callers that
// accept 404 check the status before the error.
func (h *HTTPGateway) do(ctx context.Context, method, path string, in any) ([]byte, int, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, ErrUnauthorized
	case resp.StatusCode >= 300:
		return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, resp.StatusCode, nil
}

// Permanent reports whether retrying err cannot help.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidID) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusRequestTimeout && se.Code != http.StatusTooManyRequests
	}
	return false
}
