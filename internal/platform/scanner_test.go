package platform

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/yourorg/opsec-worker/internal/browser"
	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/model"
)

type fakeSessions struct {
	mu      sync.Mutex
	session *browser.Session
	stops   []string
}

func (f *fakeSessions) CreateSession(ctx context.Context, p model.Platform, creds config.Credentials) *browser.Session {
	if !creds.Present() || f.session == nil {
		return nil
	}
	s := *f.session
	return &s
}

func (f *fakeSessions) StopSession(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, id)
}

func (f *fakeSessions) Ephemeral() *browser.SessionOptions {
	return &browser.SessionOptions{UseStealth: true}
}

type fakeAgent struct {
	mu       sync.Mutex
	result   model.RawResult
	err      error
	panicMsg string
	calls    []browser.Binding
	prompts  []string
	steps    []int
}

func (f *fakeAgent) Run(ctx context.Context, prompt string, b browser.Binding, maxSteps int) (model.RawResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, b)
	f.prompts = append(f.prompts, prompt)
	f.steps = append(f.steps, maxSteps)
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result, f.err
}

var (
	creds = config.Credentials{Username: "u", Password: "p"}
	req   = model.ScanRequest{FullName: "Jane Doe", Company: "Acme", UsernamePatterns: "jdoe, janed"}
)

func TestScanAgentErrorBecomesSingleScanError(t *testing.T) {
	agent := &fakeAgent{err: errors.New("captcha wall")}
	s := NewGitHub(Deps{Sessions: &fakeSessions{}, Agent: agent})

	res := s.Scan(context.Background(), req, nil)
	if len(res.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(res.Findings))
	}
	f := res.Findings[0]
	if f.Type != model.FindingScanError || f.Severity != model.SeverityInfo || f.PointsDeducted != 0 {
		t.Errorf("unexpected finding %+v", f)
	}
	if f.Platform != model.PlatformGitHub || !strings.Contains(f.Description, "captcha wall") {
		t.Errorf("unexpected finding %+v", f)
	}
	if !strings.Contains(f.RawData, `"error"`) {
		t.Errorf("raw data = %q", f.RawData)
	}
}

func TestScanPanicBecomesScanError(t *testing.T) {
	agent := &fakeAgent{panicMsg: "nil map"}
	s := NewFacebook(Deps{Sessions: &fakeSessions{}, Agent: agent})

	res := s.Scan(context.Background(), req, nil)
	if len(res.Findings) != 1 || res.Findings[0].Type != model.FindingScanError {
		t.Fatalf("unexpected findings %+v", res.Findings)
	}
}

func TestLinkedInSurfacesSession(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{ID: "sess-1", LiveURL: "https://live/1"}}
	agent := &fakeAgent{result: `{"profileUrl":"https://linkedin.com/in/jdoe"}`}
	s := NewLinkedIn(Deps{Sessions: sessions, Agent: agent}, creds)

	var reported []browser.Session
	res := s.Scan(context.Background(), req, func(b browser.Session) { reported = append(reported, b) })

	if len(reported) != 1 || reported[0].ID != "sess-1" {
		t.Fatalf("reported = %+v", reported)
	}
	if res.Session == nil || res.Session.LiveURL != "https://live/1" {
		t.Errorf("result session = %+v", res.Session)
	}
	if agent.calls[0].SessionID != "sess-1" || agent.steps[0] != 20 {
		t.Errorf("agent call = %+v steps=%d", agent.calls[0], agent.steps[0])
	}
	if len(sessions.stops) != 0 {
		t.Errorf("surfaced session must be left to the caller, stops=%v", sessions.stops)
	}
	if len(res.Findings) != 1 || res.Findings[0].Type != model.FindingProfileFound {
		t.Errorf("findings = %+v", res.Findings)
	}
}

func TestLinkedInWithoutCredentialsUsesEphemeral(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{ID: "sess-1"}}
	agent := &fakeAgent{result: "nothing found"}
	s := NewLinkedIn(Deps{Sessions: sessions, Agent: agent}, config.Credentials{})

	called := false
	res := s.Scan(context.Background(), req, func(browser.Session) { called = true })
	if called || res.Session != nil {
		t.Error("no session should be reported without credentials")
	}
	if agent.calls[0].SessionID != "" || agent.calls[0].Ephemeral == nil {
		t.Errorf("expected ephemeral binding, got %+v", agent.calls[0])
	}
	if len(res.Findings) != 0 {
		t.Errorf("findings = %+v", res.Findings)
	}
}

func TestTwitterStopsItsOwnSession(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{ID: "tw-1"}}
	agent := &fakeAgent{err: errors.New("timeout")}
	s := NewTwitter(Deps{Sessions: sessions, Agent: agent}, creds)

	called := false
	res := s.Scan(context.Background(), req, func(browser.Session) { called = true })
	if called || res.Session != nil {
		t.Error("twitter session must not be surfaced")
	}
	if len(sessions.stops) != 1 || sessions.stops[0] != "tw-1" {
		t.Errorf("stops = %v, want [tw-1]", sessions.stops)
	}
	if len(res.Findings) != 1 || res.Findings[0].Type != model.FindingScanError {
		t.Errorf("findings = %+v", res.Findings)
	}
}

func TestPromptsUseRequestFields(t *testing.T) {
	agent := &fakeAgent{}
	d := Deps{Sessions: &fakeSessions{}, Agent: agent}
	r := model.ScanRequest{FullName: "Jane Doe", Location: "Berlin"}

	NewGitHub(d).Scan(context.Background(), req, nil)
	NewFacebook(d).Scan(context.Background(), r, nil)
	NewTwitter(d, config.Credentials{}).Scan(context.Background(), r, nil)

	if !strings.Contains(agent.prompts[0], "jdoe, janed") {
		t.Errorf("github prompt missing usernames: %q", agent.prompts[0])
	}
	if !strings.Contains(agent.prompts[1], `"Jane Doe" in Berlin`) || agent.steps[1] != 10 {
		t.Errorf("facebook prompt = %q steps=%d", agent.prompts[1], agent.steps[1])
	}
	if !strings.Contains(agent.prompts[2], "matching: Jane Doe.") {
		t.Errorf("twitter prompt should fall back to the full name: %q", agent.prompts[2])
	}
}

func TestDefaultOrder(t *testing.T) {
	got := Default(Deps{Sessions: &fakeSessions{}, Agent: &fakeAgent{}}, config.Config{})
	if len(got) != len(model.Platforms) {
		t.Fatalf("scanners = %d", len(got))
	}
	for i, s := range got {
		if s.Platform() != model.Platforms[i] {
			t.Errorf("scanner %d = %s, want %s", i, s.Platform(), model.Platforms[i])
		}
	}
}
