package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/model"
)

const (
	loginMaxSteps = 15
	stopTimeout   = 15 * time.Second
)

// SessionManager creates authenticated sessions and releases them. A stop
// is issued at most once per session id no matter how many exit paths ask
// for it.
type SessionManager struct {
	svc       Service
	userAgent string
	log       *zap.Logger

	mu      sync.Mutex
	stopped map[string]struct{}
}

func NewSessionManager(svc Service, userAgent string, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		svc:       svc,
		userAgent: userAgent,
		log:       log,
		stopped:   make(map[string]struct{}),
	}
}

// Ephemeral returns the options for an unauthenticated throwaway session.
func (m *SessionManager) Ephemeral() *SessionOptions {
	return &SessionOptions{UseStealth: true, UserAgent: m.userAgent}
}

// CreateSession returns a logged-in session for platform, or nil when creds
// are absent or anything fails. Failures are logged, never returned: the
// caller simply scans without authentication.
func (m *SessionManager) CreateSession(ctx context.Context, platform model.Platform, creds config.Credentials) *Session {
	log := m.log.With(zap.String("platform", string(platform)))
	if !creds.Present() {
		log.Warn("credentials not set, scanning without authentication")
		return nil
	}
	login, ok := loginTasks[platform]
	if !ok {
		log.Warn("platform does not support authenticated sessions")
		return nil
	}

	s, err := m.svc.CreateSession(ctx, SessionOptions{
		AcceptCookies: true,
		UseStealth:    true,
		UserAgent:     m.userAgent,
	})
	if err != nil {
		log.Error("session create failed", zap.Error(&SessionError{Platform: platform, Op: "create", Err: err}))
		return nil
	}
	log = log.With(zap.String("session_id", s.ID))

	_, err = m.svc.RunAgentTask(ctx, AgentTask{
		Task:            login(creds),
		SessionID:       s.ID,
		KeepBrowserOpen: true,
		MaxSteps:        loginMaxSteps,
	})
	if err != nil {
		log.Error("session login failed", zap.Error(&SessionError{Platform: platform, Op: "login", Err: err}))
		m.StopSession(ctx, s.ID)
		return nil
	}

	log.Info("authenticated session created", zap.String("live_url", s.LiveURL))
	return s
}

// StopSession releases the remote session. Failures are logged only; the
// service expires abandoned sessions on its own.
func (m *SessionManager) StopSession(ctx context.Context, id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	if _, done := m.stopped[id]; done {
		m.mu.Unlock()
		return
	}
	m.stopped[id] = struct{}{}
	m.mu.Unlock()

	// The stop must go out even when the scan's own context is already done.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	log := m.log.With(zap.String("session_id", id))
	if err := m.svc.StopSession(sctx, id); err != nil {
		var ae *AgentError
		if errors.As(err, &ae) && ae.Status == 404 {
			log.Info("session already gone")
			return
		}
		log.Warn("session stop failed", zap.Error(err))
		return
	}
	log.Info("session stopped")
}

var loginTasks = map[model.Platform]func(config.Credentials) string{
	model.PlatformLinkedIn: func(c config.Credentials) string {
		return fmt.Sprintf(`Go to https://www.linkedin.com/login

IMPORTANT: DO NOT click "Sign in with Apple" or "Sign in with Google" or any SSO buttons.

Use the EMAIL/PASSWORD form instead:
1. Find the input field labeled "Email or phone" and enter: %s
2. Find the input field labeled "Password" and enter: %s
3. Click the "Sign in" button (NOT any SSO button)
4. Wait for the LinkedIn feed to load completely
5. If asked to verify or do 2FA, try to proceed anyway or skip if possible`, c.Username, c.Password)
	},
	model.PlatformTwitter: func(c config.Credentials) string {
		return fmt.Sprintf(`Go to https://x.com/login

IMPORTANT: DO NOT click "Sign in with Google" or "Sign in with Apple" or any SSO buttons.

Use the USERNAME/PASSWORD form instead:
1. Find the input field for username/email/phone and enter: %s
2. Click "Next" if there is a next button
3. Find the password input field and enter: %s
4. Click the "Log in" button (NOT any SSO button)
5. Wait for the home timeline to load completely
6. If asked for verification, try to skip or proceed anyway`, c.Username, c.Password)
	},
}
