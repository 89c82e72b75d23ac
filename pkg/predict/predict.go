// Package predict drives asynchronous image-transformation jobs against a
// Replicate-style prediction API: create a prediction, read its status at a
// fixed cadence, surface the terminal output or failure.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Status of a prediction as reported by the remote service. The service is
// the only writer; transitions are monotonic into exactly one terminal state.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Prediction is the subset of the remote job document this client consumes.
type Prediction struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Logs   string          `json:"logs,omitempty"`
}

// FirstOutput normalizes the output payload: a single reference is returned
// unchanged, an ordered sequence yields its first element.
func (p *Prediction) FirstOutput() (string, error) {
	if len(p.Output) == 0 {
		return "", fmt.Errorf("%w: empty output", ErrUnexpectedOutput)
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnexpectedOutput, snippet(p.Output))
}

func snippet(raw []byte) string {
	const max = 120
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

var (
	// ErrPollTimeout reports that the attempt ceiling was exhausted while
	// the prediction was still in a non-terminal state.
	ErrPollTimeout = errors.New("predict: polling attempt ceiling exhausted")
	// ErrUnexpectedOutput reports a succeeded prediction whose output is
	// neither a single reference nor a non-empty sequence of references.
	ErrUnexpectedOutput = errors.New("predict: unrecognized output payload")
)

// APIError is a transport-level failure: a request that could not complete,
// a non-2xx response, or an unreadable body. It is never retried.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("predict: request failed: %s", e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("predict: http %d", e.StatusCode)
	}
	return fmt.Sprintf("predict: http %d: %s", e.StatusCode, e.Message)
}

// JobError is a prediction that reached failed or canceled. Message carries
// the remote error payload verbatim.
type JobError struct {
	ID      string
	Status  Status
	Message string
	Logs    string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("predict: prediction %s %s", e.ID, e.Status)
	}
	return fmt.Sprintf("predict: prediction %s %s: %s", e.ID, e.Status, e.Message)
}

const (
	// DefaultPollInterval is the cadence between status reads.
	DefaultPollInterval = 1500 * time.Millisecond
	// DefaultMaxAttempts bounds the number of status reads per run, about
	// three minutes at the default cadence.
	DefaultMaxAttempts = 120

	defaultBaseURL = "https://api.replicate.com/v1"
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	Token        string
	HTTPClient   *http.Client
	PollInterval time.Duration
	MaxAttempts  int
	Logger       *zerolog.Logger
}

// Client is a prediction API client. It is safe for concurrent use; each run
// is independent and shares no per-job state.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	pollInterval time.Duration
	maxAttempts  int
	logger       zerolog.Logger
}

// NewClient creates a prediction client. Zero option fields fall back to the
// package defaults. No per-request timeout is applied unless the supplied
// HTTP client carries one; only the attempt ceiling bounds a run.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      base,
		token:        strings.TrimSpace(opts.Token),
		pollInterval: interval,
		maxAttempts:  attempts,
		logger:       logger,
	}
}

type createRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

// Create submits a new prediction for the given model version.
func (c *Client) Create(ctx context.Context, version string, input map[string]any) (*Prediction, error) {
	body, err := json.Marshal(createRequest{Version: version, Input: input})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.do(req)
}

// Get reads the current status document of a prediction.
func (c *Client) Get(ctx context.Context, id string) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	return c.do(req)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request) (*Prediction, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	var p Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return &p, nil
}

// Statuses returns a lazy, finite sequence of status snapshots for a
// prediction: at most MaxAttempts reads spaced PollInterval apart, ending
// after the first terminal snapshot. A transport failure ends the sequence
// with its error. The caller cancels by ceasing consumption or cancelling
// ctx; restarting means submitting a new prediction.
func (c *Client) Statuses(ctx context.Context, id string) iter.Seq2[*Prediction, error] {
	return func(yield func(*Prediction, error) bool) {
		for attempt := 1; attempt <= c.maxAttempts; attempt++ {
			select {
			case <-time.After(c.pollInterval):
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
			p, err := c.Get(ctx, id)
			if err != nil {
				yield(nil, err)
				return
			}
			c.logger.Debug().
				Str("prediction_id", id).
				Str("status", string(p.Status)).
				Int("attempt", attempt).
				Msg("prediction poll")
			if !yield(p, nil) {
				return
			}
			if p.Status.Terminal() {
				return
			}
		}
	}
}

// ProgressFunc receives every observed status snapshot, the creation
// response included.
type ProgressFunc func(*Prediction)

// Run submits a prediction and drives it to completion: one create, then
// status reads at the configured cadence up to the attempt ceiling. On
// success it returns the first output reference. A failed or canceled
// prediction returns a *JobError, an exhausted ceiling returns
// ErrPollTimeout, and transport errors propagate immediately without retry.
func (c *Client) Run(ctx context.Context, version string, input map[string]any, onProgress ProgressFunc) (string, error) {
	p, err := c.Create(ctx, version, input)
	if err != nil {
		return "", err
	}
	if onProgress != nil {
		onProgress(p)
	}

	last := p
	if !last.Status.Terminal() {
		for snapshot, err := range c.Statuses(ctx, p.ID) {
			if err != nil {
				return "", err
			}
			if onProgress != nil {
				onProgress(snapshot)
			}
			last = snapshot
		}
	}

	switch last.Status {
	case StatusSucceeded:
		return last.FirstOutput()
	case StatusFailed, StatusCanceled:
		return "", &JobError{ID: last.ID, Status: last.Status, Message: last.Error, Logs: last.Logs}
	default:
		return "", fmt.Errorf("%w: prediction %s still %s after %d attempts",
			ErrPollTimeout, last.ID, last.Status, c.maxAttempts)
	}
}
