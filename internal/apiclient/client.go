package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/habitkit/habits/internal/server"
	"github.com/habitkit/habits/pkg/habit"
	"github.com/habitkit/habits/pkg/versioninfo"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(base, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		var e server.ErrorResponse
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Message = e.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) ListHabits(ctx context.Context) ([]habit.View, error) {
	var response server.HabitListResponse
	if err := c.do(ctx, http.MethodGet, "/api/habits", nil, &response); err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return response.Habits, nil
}

func (c *Client) CreateHabit(ctx context.Context, in habit.Input) (*habit.Habit, error) {
	var out habit.Habit
	if err := c.do(ctx, http.MethodPost, "/api/habits", in, &out); err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &out, nil
}

func (c *Client) GetHabitSummary(ctx context.Context, id int64) (*habit.HabitSummary, error) {
	var out server.HabitSummaryResponse
	if err := c.do(ctx, http.MethodGet, "/api/habits/"+strconv.FormatInt(id, 10)+"/summary", nil, &out); err != nil {
		return nil, fmt.Errorf("summary %d: %w", id, err)
	}
	return &out.HabitSummary, nil
}

func (c *Client) Toggle(ctx context.Context, id int64) (*habit.ToggleResult, error) {
	var out habit.ToggleResult
	if err := c.do(ctx, http.MethodPost, "/api/habits/"+strconv.FormatInt(id, 10)+"/toggle", nil, &out); err != nil {
		return nil, fmt.Errorf("toggle %d: %w", id, err)
	}
	return &out, nil
}

func (c *Client) GetStats(ctx context.Context) (*habit.Stats, error) {
	var out habit.Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &out, nil
}

func (c *Client) Version(ctx context.Context) (*versioninfo.VersionInfo, error) {
	var out versioninfo.VersionInfo
	if err := c.do(ctx, http.MethodGet, "/version", nil, &out); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	return &out, nil
}
