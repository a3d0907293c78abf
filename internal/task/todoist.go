package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.todoist.com/api/v1"

// TodoistClient talks to the Todoist REST API v1.
type TodoistClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewTodoistClient builds a client with sane defaults.
func NewTodoistClient(token string) *TodoistClient {
	return &TodoistClient{
		BaseURL:    defaultBaseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *TodoistClient) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *TodoistClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

type apiTask struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// ListTasks returns all tasks in a project. The v1 API wraps results in a
// "results" array.
func (c *TodoistClient) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	endpoint := fmt.Sprintf("%s/tasks?project_id=%s", c.baseURL(), url.QueryEscape(projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("todoist returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var payload struct {
		Results []apiTask `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	tasks := make([]Task, 0, len(payload.Results))
	for _, t := range payload.Results {
		tasks = append(tasks, Task{
			ID:          t.ID,
			Content:     t.Content,
			Description: t.Description,
			URL:         ExtractURL(t.Content),
		})
	}
	log.Info().Str("project_id", projectID).Int("count", len(tasks)).Msg("fetched tasks")
	return tasks, nil
}

// UpdateDescription replaces a task's description, used to attach the
// generated summary after a successful run.
func (c *TodoistClient) UpdateDescription(ctx context.Context, taskID, description string) error {
	body, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return fmt.Errorf("marshal description: %w", err)
	}
	endpoint := fmt.Sprintf("%s/tasks/%s", c.baseURL(), url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("todoist returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
