// Package ledgeragent is a typed client for the LedgerAgent REST API.
package ledgeragent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultHTTPTimeout is applied when no custom http.Client is supplied.
// Synchronous executions wait for consensus, so it is longer than a plain
// REST timeout.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the LedgerAgent daemon.
type Client struct {
	http *resty.Client
}

// Option customises a Client.
type Option func(*resty.Client)

// WithAccessToken sends a bearer token, for daemons behind an authenticating proxy.
func WithAccessToken(token string) Option {
	return func(c *resty.Client) {
		c.SetAuthToken(token)
	}
}

// WithTimeout overrides DefaultHTTPTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(timeout)
	}
}

// OperationRequest is the payload of an operation call. Schedule fields sit
// next to Params, matching the daemon's request shape.
type OperationRequest struct {
	ID                     string          `json:"id,omitempty"`
	Operation              string          `json:"operation"`
	Params                 json.RawMessage `json:"params,omitempty"`
	Schedule               *bool           `json:"schedule,omitempty"`
	ScheduleMemo           string          `json:"scheduleMemo,omitempty"`
	SchedulePayerAccountID string          `json:"schedulePayerAccountId,omitempty"`
	ScheduleAdminKey       string          `json:"scheduleAdminKey,omitempty"`
}

// Outcome values reported by the daemon.
const (
	OutcomeExecute     = "execute"
	OutcomeSchedule    = "schedule"
	OutcomeReturnBytes = "return_bytes"
)

// Response is the result of a synchronous operation call.
type Response struct {
	Outcome  string            `json:"outcome"`
	Results  []Result          `json:"results,omitempty"`
	Bytes    *BytesResult      `json:"bytes,omitempty"`
	Schedule *ScheduleResponse `json:"schedule,omitempty"`
}

// Success reports whether the outcome-specific part of the response succeeded.
func (r Response) Success() bool {
	switch r.Outcome {
	case OutcomeExecute:
		if len(r.Results) == 0 {
			return false
		}
		for _, res := range r.Results {
			if !res.Success {
				return false
			}
		}
		return true
	case OutcomeSchedule:
		return r.Schedule != nil && r.Schedule.Success
	case OutcomeReturnBytes:
		return r.Bytes != nil
	}
	return false
}

// Result is the outcome of one executed transaction.
type Result struct {
	Success                bool            `json:"success"`
	Receipt                json.RawMessage `json:"receipt,omitempty"`
	Error                  string          `json:"error,omitempty"`
	TransactionID          string          `json:"transactionId,omitempty"`
	ScheduleID             string          `json:"scheduleId,omitempty"`
	SchedulePayerAccountID string          `json:"schedulePayerAccountId,omitempty"`
	Notes                  []string        `json:"notes,omitempty"`
}

// BytesResult carries a frozen, unsigned transaction for the caller to sign.
type BytesResult struct {
	Bytes         string   `json:"bytes"`
	TransactionID string   `json:"transactionId"`
	Scheduled     bool     `json:"scheduled"`
	Notes         []string `json:"notes,omitempty"`
}

// ScheduleResponse is returned when the daemon wrapped the call in a schedule.
type ScheduleResponse struct {
	Success        bool     `json:"success"`
	Operation      string   `json:"operation"`
	ScheduleID     string   `json:"scheduleId,omitempty"`
	Description    string   `json:"description"`
	PayerAccountID string   `json:"payerAccountId,omitempty"`
	TransactionID  string   `json:"transactionId,omitempty"`
	Error          string   `json:"error,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job is a queued operation call.
type Job struct {
	ID         string          `json:"id"`
	Operation  string          `json:"operation"`
	Params     json.RawMessage `json:"params,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	Terminal   bool            `json:"terminal,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Result     *JobResult      `json:"result,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// Done reports whether the job will not change any more.
func (j Job) Done() bool {
	switch j.Status {
	case JobSucceeded:
		return true
	case JobFailed:
		return j.Terminal || j.Attempts >= j.MaxRetries
	}
	return false
}

// JobResult summarises a finished job; Response holds the full Response JSON.
type JobResult struct {
	Outcome        string          `json:"outcome"`
	TransactionIDs []string        `json:"transaction_ids,omitempty"`
	ScheduleID     string          `json:"schedule_id,omitempty"`
	Reconciled     bool            `json:"reconciled,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
}

// Stats aggregates job counts.
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	Terminal        int   `json:"terminal"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// Operation describes an entry of the operation catalog.
type Operation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Flags       struct {
		NeverSchedule    bool
		MultiTransaction bool
	} `json:"flags"`
}

// Catalog lists the operations the daemon can run and its session settings.
type Catalog struct {
	Mode       string      `json:"mode"`
	Account    string      `json:"account"`
	Operations []Operation `json:"operations"`
}

// ListOptions filters ListJobs and Stats.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []string
	Operations []string
	Query      string
	Ascending  bool
	// Terminal, when set, keeps only jobs whose terminal flag matches.
	Terminal *bool
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(o.Statuses) > 0 {
		v.Set("status", strings.Join(o.Statuses, ","))
	}
	if len(o.Operations) > 0 {
		v.Set("operation", strings.Join(o.Operations, ","))
	}
	if o.Query != "" {
		v.Set("q", o.Query)
	}
	if o.Ascending {
		v.Set("order", "asc")
	}
	if o.Terminal != nil {
		v.Set("terminal", strconv.FormatBool(*o.Terminal))
	}
	return v
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("ledgeragent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ledgeragent api error (%d): %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// NewClient instantiates a client for the daemon at rawURL. When httpClient
// is nil a client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	var rc *resty.Client
	if httpClient != nil {
		rc = resty.NewWithClient(httpClient)
	} else {
		rc = resty.New().SetTimeout(DefaultHTTPTimeout)
	}
	rc.SetBaseURL(strings.TrimSuffix(parsed.String(), "/")).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		if opt != nil {
			opt(rc)
		}
	}
	return &Client{http: rc}, nil
}

// Execute runs an operation synchronously and returns the dispatch response.
func (c *Client) Execute(ctx context.Context, req OperationRequest) (Response, error) {
	var out Response
	if err := c.do(ctx, http.MethodPost, "/api/v1/operations", nil, req, &out); err != nil {
		return Response{}, err
	}
	return out, nil
}

// Submit enqueues an operation and returns the pending job.
func (c *Client) Submit(ctx context.Context, req OperationRequest) (Job, error) {
	var job Job
	query := url.Values{"async": []string{"true"}}
	if err := c.do(ctx, http.MethodPost, "/api/v1/operations", query, req, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches a job by identifier.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/operations/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListJobs lists jobs matching opts.
func (c *Client) ListJobs(ctx context.Context, opts ListOptions) ([]Job, error) {
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/operations", opts.values(), nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Stats aggregates jobs matching opts.
func (c *Client) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/operations/stats", opts.values(), nil, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Catalog returns the operations registered on the daemon.
func (c *Client) Catalog(ctx context.Context) (Catalog, error) {
	var catalog Catalog
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog", nil, nil, &catalog); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

// WaitForJob polls GetJob every interval until the job is done or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	var envelope errorEnvelope
	req := c.http.R().SetContext(ctx).SetError(&envelope)
	if out != nil {
		req.SetResult(out)
	}
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := envelope.Error
	if apiErr == nil {
		apiErr = &APIError{Message: strings.TrimSpace(resp.String())}
	}
	apiErr.StatusCode = resp.StatusCode()
	return apiErr
}
