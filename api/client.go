// Package api is the HTTP client for the execution service. Reads are
// retried on transient failures; writes are not.
package api

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

	"github.com/deepnoodle-ai/execview"
	"github.com/deepnoodle-ai/execview/log"
	"github.com/deepnoodle-ai/execview/retry"
	"github.com/deepnoodle-ai/execview/timeline"
	"github.com/tidwall/gjson"
)

const maxErrorBody = 4 << 10

// Client talks to the execution service.
type Client struct {
	baseURL    string
	client     *http.Client
	logger     log.Logger
	now        func() time.Time
	maxRetries int
	baseWait   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger used for dropped records.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithNow sets the clock used for timestamps the server omits.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithMaxRetries sets the number of attempts for reads.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseWait sets the wait before the first retry of a read.
func WithBaseWait(d time.Duration) Option {
	return func(c *Client) {
		c.baseWait = d
	}
}

// New returns a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     http.DefaultClient,
		now:        time.Now,
		maxRetries: retry.MaxRetries,
		baseWait:   retry.RetryBaseWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrNull(c.logger)
	return c
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// Execute starts a run of workflowID. A non-empty artifactProfile asks the
// server to collect artifacts at that level.
func (c *Client) Execute(ctx context.Context, workflowID, artifactProfile string) (*execview.Execution, error) {
	query := url.Values{}
	if artifactProfile != "" {
		query.Set("artifact_profile", artifactProfile)
	}
	body, err := c.do(ctx, http.MethodPost, "/workflows/"+url.PathEscape(workflowID)+"/execute", query)
	if err != nil {
		return nil, err
	}
	var resp executeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding execute response: %w", err)
	}
	if resp.ExecutionID == "" {
		return nil, execview.ErrMissingID
	}
	status := execview.StatusPending
	if resp.Status != "" {
		if status, err = execview.ParseStatus(strings.ToLower(resp.Status)); err != nil {
			return nil, fmt.Errorf("execution %s: %w", resp.ExecutionID, err)
		}
	}
	return &execview.Execution{
		ID:         resp.ExecutionID,
		WorkflowID: workflowID,
		Status:     status,
		StartedAt:  c.now(),
	}, nil
}

// Stop asks the server to cancel an execution.
func (c *Client) Stop(ctx context.Context, executionID string) error {
	_, err := c.do(ctx, http.MethodPost, "/executions/"+url.PathEscape(executionID)+"/stop", nil)
	return err
}

// Executions lists executions, optionally for one workflow. Records that
// cannot be parsed are dropped and logged.
func (c *Client) Executions(ctx context.Context, workflowID string) ([]*execview.Execution, error) {
	query := url.Values{}
	if workflowID != "" {
		query.Set("workflow_id", workflowID)
	}
	body, err := c.get(ctx, "/executions", query)
	if err != nil {
		return nil, err
	}
	now := c.now()
	var out []*execview.Execution
	for _, item := range listItems(body, "executions") {
		exec, err := execview.ParseExecution([]byte(item.Raw), now)
		if err != nil {
			c.logger.Warn("dropping execution record", "error", err)
			continue
		}
		out = append(out, exec)
	}
	return out, nil
}

// Execution fetches one execution.
func (c *Client) Execution(ctx context.Context, executionID string) (*execview.Execution, error) {
	body, err := c.get(ctx, "/executions/"+url.PathEscape(executionID), nil)
	if err != nil {
		return nil, err
	}
	return execview.ParseExecution(body, c.now())
}

// Screenshots lists the screenshots of an execution. Records without a URL
// are dropped.
func (c *Client) Screenshots(ctx context.Context, executionID string) ([]execview.Screenshot, error) {
	body, err := c.get(ctx, "/executions/"+url.PathEscape(executionID)+"/screenshots", nil)
	if err != nil {
		return nil, err
	}
	now := c.now()
	var out []execview.Screenshot
	for _, item := range listItems(body, "screenshots") {
		var rec execview.ScreenshotRecord
		if err := json.Unmarshal([]byte(item.Raw), &rec); err != nil || rec.URL == "" {
			c.logger.Warn("dropping screenshot record", "execution_id", executionID, "error", err)
			continue
		}
		out = append(out, rec.Screenshot(now))
	}
	return out, nil
}

// Timeline fetches the timeline snapshot of an execution.
func (c *Client) Timeline(ctx context.Context, executionID string) (*timeline.Snapshot, error) {
	body, err := c.get(ctx, "/executions/"+url.PathEscape(executionID)+"/timeline", nil)
	if err != nil {
		return nil, err
	}
	snap, err := timeline.Decode(body)
	if err != nil {
		return nil, err
	}
	if snap.ExecutionID == "" {
		snap.ExecutionID = executionID
	}
	return snap, nil
}

// listItems accepts either a bare JSON array or an object wrapping the array
// under key.
func listItems(body []byte, key string) []gjson.Result {
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		root = root.Get(key)
	}
	if !root.IsArray() {
		return nil
	}
	return root.Array()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, func() error {
		var err error
		body, err = c.do(ctx, http.MethodGet, path, query)
		return err
	}, retry.WithMaxRetries(c.maxRetries), retry.WithBaseWait(c.baseWait))
	return body, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewStatusError(resp.StatusCode, method, path, strings.TrimSpace(string(data)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}
	return data, nil
}
