package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Task is one callback the queue will deliver to the execution tier. The
// bearer token rides on the callback so the receiver can authenticate it.
type Task struct {
	TargetURL   string          `json:"target_url"`
	BearerToken string          `json:"bearer_token"`
	Payload     json.RawMessage `json:"payload"`
}

// Client hands tasks to the external durable queue. Implementations must
// honor the caller's context deadline.
type Client interface {
	// Enqueue submits the task and returns the queue-assigned task path.
	Enqueue(ctx context.Context, task Task) (string, error)
}

// HTTPClient submits tasks to an HTTP push-queue API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	queueName  string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a queue client for the given queue API base URL
// and queue name.
func NewHTTPClient(client *http.Client, baseURL, queueName string) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		queueName:  queueName,
	}
}

type createTaskRequest struct {
	Task struct {
		HTTPRequest struct {
			URL     string            `json:"url"`
			Method  string            `json:"http_method"`
			Headers map[string]string `json:"headers"`
			Body    json.RawMessage   `json:"body"`
		} `json:"http_request"`
	} `json:"task"`
}

type createTaskResponse struct {
	Name string `json:"name"`
}

// Enqueue posts the task to the queue API.
func (c *HTTPClient) Enqueue(ctx context.Context, task Task) (string, error) {
	if strings.TrimSpace(c.baseURL) == "" {
		return "", fmt.Errorf("queue url missing")
	}

	var reqBody createTaskRequest
	reqBody.Task.HTTPRequest.URL = task.TargetURL
	reqBody.Task.HTTPRequest.Method = http.MethodPost
	reqBody.Task.HTTPRequest.Headers = map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + task.BearerToken,
	}
	reqBody.Task.HTTPRequest.Body = task.Payload

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	endpoint := c.baseURL + "/queues/" + c.queueName + "/tasks"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build enqueue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("enqueue request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read enqueue response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("enqueue failed: status=%d", resp.StatusCode)
	}

	var created createTaskResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode enqueue response: %w", err)
	}
	if created.Name == "" {
		created.Name = endpoint
	}
	return created.Name, nil
}
