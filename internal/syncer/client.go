package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/SorgKs/homeplanner-sub002/internal/model"
	"github.com/SorgKs/homeplanner-sub002/internal/queue"
)

var (
	ErrUnauthorized = errors.New("syncer: unauthorized")
	// ErrMalformedResponse covers a 2xx answer whose body cannot be decoded.
	// Callers treat it exactly like a server rejection: retry later.
	ErrMalformedResponse = errors.New("syncer: malformed server response")
)

// RequestError is a non-2xx answer from the task service.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("syncer: server rejected request: status %d", e.Status)
}

// BatchOperation is one replayed mutation. Key is the client idempotency
// key; the server may see the same key twice after a retried flush.
type BatchOperation struct {
	Key        string          `json:"key"`
	Operation  queue.Operation `json:"operation"`
	EntityType string          `json:"entity_type"`
	EntityID   *int64          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

type batchRequest struct {
	Operations []BatchOperation `json:"operations"`
}

type batchResponse struct {
	Tasks []json.RawMessage `json:"tasks"`
}

type tasksResponse struct {
	Tasks []json.RawMessage `json:"tasks"`
}

// Client talks JSON-over-HTTP to the remote task service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

// FetchTasks retrieves the full active task list, used to seed or refresh
// the cache independent of the mutation queue.
func (c *Client) FetchTasks(ctx context.Context) ([]model.Task, error) {
	var out tasksResponse
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, err
	}
	return decodeTasks(out.Tasks)
}

// SubmitBatch posts pending operations and returns the canonical task list
// reflecting applied state.
func (c *Client) SubmitBatch(ctx context.Context, ops []BatchOperation) ([]model.Task, error) {
	var out batchResponse
	if err := c.do(ctx, http.MethodPost, "/tasks/batch", batchRequest{Operations: ops}, &out); err != nil {
		return nil, err
	}
	return decodeTasks(out.Tasks)
}

func decodeTasks(raw []json.RawMessage) ([]model.Task, error) {
	tasks := make([]model.Task, 0, len(raw))
	for _, data := range raw {
		task, err := model.DecodeTask(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("syncer: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("syncer: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("syncer: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
