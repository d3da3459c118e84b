package browser

import (
	"fmt"

	"github.com/yourorg/opsec-worker/internal/model"
)

// SessionError is a failed session create or login. It is never fatal: the
// caller degrades to unauthenticated scanning.
type SessionError struct {
	Platform model.Platform
	Op       string
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s session %s: %v", e.Platform, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// AgentError is a transport or remote-side failure of the automation service.
type AgentError struct {
	Op     string
	Status int
	Err    error
}

func (e *AgentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("agent %s (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("agent %s: %v", e.Op, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }
