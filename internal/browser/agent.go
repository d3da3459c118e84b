package browser

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/opsec-worker/internal/model"
)

// Binding selects where an agent task runs: an existing session, or a fresh
// ephemeral one configured by Ephemeral.
type Binding struct {
	SessionID string
	Ephemeral *SessionOptions
}

type AgentRunner struct {
	svc Service
	log *zap.Logger
}

func NewAgentRunner(svc Service, log *zap.Logger) *AgentRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &AgentRunner{svc: svc, log: log}
}

// Run issues prompt and blocks until the agent finishes or ctx ends. Every
// failure comes back as *AgentError.
func (r *AgentRunner) Run(ctx context.Context, prompt string, b Binding, maxSteps int) (model.RawResult, error) {
	task := AgentTask{Task: prompt, MaxSteps: maxSteps}
	if b.SessionID != "" {
		task.SessionID = b.SessionID
		task.KeepBrowserOpen = true
	} else {
		task.SessionOptions = b.Ephemeral
	}

	start := time.Now()
	raw, err := r.svc.RunAgentTask(ctx, task)
	if err != nil {
		var ae *AgentError
		if !errors.As(err, &ae) {
			err = &AgentError{Op: "run task", Err: err}
		}
		return "", err
	}
	r.log.Debug("agent task finished",
		zap.String("session_id", b.SessionID),
		zap.Int("max_steps", maxSteps),
		zap.Int("result_bytes", len(raw)),
		zap.Duration("duration", time.Since(start)),
	)
	return raw, nil
}
