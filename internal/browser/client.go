// Package browser talks to the remote browser automation service: it owns
// session lifecycle and runs bounded-step agent tasks against sessions.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourorg/opsec-worker/internal/model"
	"github.com/yourorg/opsec-worker/internal/retry"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 4 << 10

	// attempts per status poll before a long agent wait is abandoned
	pollAttempts = 4
)

// SessionOptions configures a remote browser. It is used both when a
// session is created explicitly and for the throwaway session an agent task
// gets when it is not bound to one.
type SessionOptions struct {
	AcceptCookies bool   `json:"acceptCookies,omitempty"`
	UseStealth    bool   `json:"useStealth,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
}

type Session struct {
	ID      string `json:"id"`
	LiveURL string `json:"liveUrl,omitempty"`
}

// AgentTask is one natural-language instruction for the remote agent.
// Exactly one of SessionID and SessionOptions should be set.
type AgentTask struct {
	Task            string          `json:"task"`
	SessionID       string          `json:"sessionId,omitempty"`
	SessionOptions  *SessionOptions `json:"sessionOptions,omitempty"`
	MaxSteps        int             `json:"maxSteps,omitempty"`
	KeepBrowserOpen bool            `json:"keepBrowserOpen,omitempty"`
}

// Service is the remote automation capability. Client implements it over
// HTTP; tests substitute fakes.
type Service interface {
	CreateSession(ctx context.Context, opts SessionOptions) (*Session, error)
	RunAgentTask(ctx context.Context, task AgentTask) (model.RawResult, error)
	StopSession(ctx context.Context, id string) error
}

type ClientOptions struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	// RateLimit caps outbound requests per second. Zero disables throttling.
	RateLimit  float64
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	poll    time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		poll:    poll,
		http:    hc,
		limiter: limiter,
	}
}

func (c *Client) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	var s Session
	body := map[string]any{"sessionOptions": opts}
	if err := c.do(ctx, http.MethodPost, "/api/session", body, &s); err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, &AgentError{Op: "create session", Err: errors.New("response carried no session id")}
	}
	return &s, nil
}

func (c *Client) StopSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/api/session/"+id+"/stop", nil, nil)
}

type startTaskResponse struct {
	JobID   string `json:"jobId"`
	LiveURL string `json:"liveUrl,omitempty"`
}

type taskResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   *struct {
		FinalResult string `json:"finalResult"`
	} `json:"data,omitempty"`
}

// RunAgentTask starts the task and polls until the agent reaches a terminal
// state. The remote side enforces MaxSteps; the only local bound is ctx.
func (c *Client) RunAgentTask(ctx context.Context, task AgentTask) (model.RawResult, error) {
	var started startTaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/task/hyper-agent", task, &started); err != nil {
		return "", err
	}
	if started.JobID == "" {
		return "", &AgentError{Op: "start task", Err: errors.New("response carried no job id")}
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", &AgentError{Op: "wait task", Err: ctx.Err()}
		case <-ticker.C:
		}

		var tr taskResponse
		err := retry.Do(ctx, pollAttempts, c.poll, func() error {
			tr = taskResponse{}
			return c.do(ctx, http.MethodGet, "/api/task/hyper-agent/"+started.JobID, nil, &tr)
		}, transient)
		if err != nil {
			return "", err
		}
		switch tr.Status {
		case "completed":
			if tr.Data == nil {
				return "", nil
			}
			return model.RawResult(tr.Data.FinalResult), nil
		case "failed", "stopped":
			msg := tr.Error
			if msg == "" {
				msg = "agent task " + tr.Status
			}
			return "", &AgentError{Op: "run task", Err: errors.New(msg)}
		}
	}
}

// transient reports whether a request failed in transport or on a 5xx, where
// asking again may succeed.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *AgentError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == 0 || ae.Status >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &AgentError{Op: method + " " + path, Err: err}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &AgentError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("x-api-key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &AgentError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &AgentError{
			Op:     method + " " + path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &AgentError{Op: method + " " + path, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
