package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/model"
)

type fakeService struct {
	mu        sync.Mutex
	createErr error
	runErr    error
	stopErr   error
	tasks     []AgentTask
	stops     []string
	creates   int
}

func (f *fakeService) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &Session{ID: "sess-1", LiveURL: "https://live/sess-1"}, nil
}

func (f *fakeService) RunAgentTask(ctx context.Context, task AgentTask) (model.RawResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	if f.runErr != nil {
		return "", f.runErr
	}
	return "ok", nil
}

func (f *fakeService) StopSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, id)
	return f.stopErr
}

var creds = config.Credentials{Username: "me@example.com", Password: "secret"}

func TestCreateSessionWithoutCredentialsReturnsNil(t *testing.T) {
	svc := &fakeService{}
	m := NewSessionManager(svc, "ua", nil)

	if s := m.CreateSession(context.Background(), model.PlatformLinkedIn, config.Credentials{}); s != nil {
		t.Fatalf("expected nil session, got %+v", s)
	}
	if svc.creates != 0 {
		t.Errorf("remote session must not be allocated without credentials, creates=%d", svc.creates)
	}
}

func TestCreateSessionLogsIn(t *testing.T) {
	svc := &fakeService{}
	m := NewSessionManager(svc, "ua", nil)

	s := m.CreateSession(context.Background(), model.PlatformLinkedIn, creds)
	if s == nil || s.ID != "sess-1" || s.LiveURL == "" {
		t.Fatalf("unexpected session %+v", s)
	}
	if len(svc.tasks) != 1 {
		t.Fatalf("expected one login task, got %d", len(svc.tasks))
	}
	task := svc.tasks[0]
	if task.SessionID != "sess-1" || !task.KeepBrowserOpen || task.MaxSteps != loginMaxSteps {
		t.Errorf("unexpected login task %+v", task)
	}
	if !strings.Contains(task.Task, creds.Username) {
		t.Error("login task should carry the username")
	}
}

func TestCreateSessionFailureDegrades(t *testing.T) {
	svc := &fakeService{createErr: errors.New("quota exceeded")}
	m := NewSessionManager(svc, "ua", nil)

	if s := m.CreateSession(context.Background(), model.PlatformTwitter, creds); s != nil {
		t.Fatalf("expected nil session on create failure, got %+v", s)
	}
}

func TestCreateSessionLoginFailureStopsSession(t *testing.T) {
	svc := &fakeService{runErr: errors.New("2fa required")}
	m := NewSessionManager(svc, "ua", nil)

	if s := m.CreateSession(context.Background(), model.PlatformLinkedIn, creds); s != nil {
		t.Fatalf("expected nil session on login failure, got %+v", s)
	}
	if len(svc.stops) != 1 || svc.stops[0] != "sess-1" {
		t.Errorf("stops = %v, want [sess-1]", svc.stops)
	}
}

func TestCreateSessionUnsupportedPlatform(t *testing.T) {
	svc := &fakeService{}
	m := NewSessionManager(svc, "ua", nil)

	if s := m.CreateSession(context.Background(), model.PlatformFacebook, creds); s != nil {
		t.Fatalf("expected nil session, got %+v", s)
	}
}

func TestStopSessionAtMostOnce(t *testing.T) {
	svc := &fakeService{stopErr: errors.New("boom")}
	m := NewSessionManager(svc, "ua", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.StopSession(context.Background(), "sess-1")
		}()
	}
	wg.Wait()
	m.StopSession(context.Background(), "")

	if len(svc.stops) != 1 {
		t.Errorf("stop calls = %d, want 1", len(svc.stops))
	}
}

func TestStopSessionAfterContextCancelled(t *testing.T) {
	svc := &fakeService{}
	m := NewSessionManager(svc, "ua", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.StopSession(ctx, "sess-2")

	if len(svc.stops) != 1 {
		t.Errorf("stop calls = %d, want 1", len(svc.stops))
	}
}

func TestAgentRunnerBinding(t *testing.T) {
	svc := &fakeService{}
	m := NewSessionManager(svc, "ua", nil)
	r := NewAgentRunner(svc, nil)

	if _, err := r.Run(context.Background(), "p1", Binding{SessionID: "sess-1"}, 20); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := r.Run(context.Background(), "p2", Binding{Ephemeral: m.Ephemeral()}, 10); err != nil {
		t.Fatalf("Run: %v", err)
	}

	bound, eph := svc.tasks[0], svc.tasks[1]
	if bound.SessionID != "sess-1" || bound.SessionOptions != nil {
		t.Errorf("bound task = %+v", bound)
	}
	if eph.SessionID != "" || eph.SessionOptions == nil || eph.SessionOptions.UserAgent != "ua" {
		t.Errorf("ephemeral task = %+v", eph)
	}
}

func TestAgentRunnerWrapsErrors(t *testing.T) {
	svc := &fakeService{runErr: errors.New("socket hang up")}
	r := NewAgentRunner(svc, nil)

	_, err := r.Run(context.Background(), "p", Binding{}, 5)
	var ae *AgentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AgentError, got %T %v", err, err)
	}
}
