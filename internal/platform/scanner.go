// Package platform implements one scanner per external source. A scanner
// never fails: whatever goes wrong inside it becomes a single scan_error
// finding so sibling scanners are unaffected.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/opsec-worker/internal/browser"
	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/extract"
	"github.com/yourorg/opsec-worker/internal/model"
)

type SessionProvider interface {
	CreateSession(ctx context.Context, platform model.Platform, creds config.Credentials) *browser.Session
	StopSession(ctx context.Context, id string)
	Ephemeral() *browser.SessionOptions
}

type TaskRunner interface {
	Run(ctx context.Context, prompt string, b browser.Binding, maxSteps int) (model.RawResult, error)
}

// Result is one platform's contribution to a scan. Session is set only for
// the scanner whose session is surfaced for live observation.
type Result struct {
	Platform model.Platform
	Findings []model.Finding
	Session  *browser.Session
	Duration time.Duration
}

// SessionFunc is called as soon as a surfaced session exists, before the
// agent task starts, so observers can follow the run.
type SessionFunc func(browser.Session)

type Scanner interface {
	Platform() model.Platform
	Scan(ctx context.Context, req model.ScanRequest, onSession SessionFunc) Result
}

type Deps struct {
	Sessions SessionProvider
	Agent    TaskRunner
	Log      *zap.Logger
}

type authMode int

const (
	authNone authMode = iota
	// the session is handed upward and its release belongs to the caller
	authSurfaced
	// the session stays private to the scanner, which releases it
	authInternal
)

type scanner struct {
	platform  model.Platform
	maxSteps  int
	auth      authMode
	creds     config.Credentials
	prompt    func(model.ScanRequest) string
	extractor *extract.Extractor

	sessions SessionProvider
	agent    TaskRunner
	log      *zap.Logger
}

func newScanner(d Deps, s scanner) *scanner {
	s.sessions = d.Sessions
	s.agent = d.Agent
	s.log = d.Log
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.With(zap.String("platform", string(s.platform)))
	s.extractor = extract.ForPlatform(s.platform)
	return &s
}

func (s *scanner) Platform() model.Platform { return s.platform }

func (s *scanner) Scan(ctx context.Context, req model.ScanRequest, onSession SessionFunc) (res Result) {
	start := time.Now()
	res.Platform = s.platform

	var sess *browser.Session
	owned := false
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scanner panic", zap.Any("panic", r))
			res.Findings = []model.Finding{scanError(s.platform, fmt.Errorf("panic: %v", r))}
		}
		if owned && sess != nil {
			s.sessions.StopSession(ctx, sess.ID)
		}
		res.Duration = time.Since(start)
	}()

	binding := browser.Binding{Ephemeral: s.sessions.Ephemeral()}
	if s.auth != authNone {
		sess = s.sessions.CreateSession(ctx, s.platform, s.creds)
		if sess != nil {
			binding = browser.Binding{SessionID: sess.ID}
			if s.auth == authSurfaced && onSession != nil {
				res.Session = sess
				onSession(*sess)
			} else {
				owned = true
			}
		} else {
			s.log.Info("no session created, using ephemeral session")
		}
	}

	raw, err := s.agent.Run(ctx, s.prompt(req), binding, s.maxSteps)
	if err != nil {
		s.log.Error("scan failed", zap.Error(err))
		res.Findings = []model.Finding{scanError(s.platform, err)}
		return res
	}

	res.Findings = s.extractor.Extract(raw)
	s.log.Info("scan finished", zap.Int("findings", len(res.Findings)))
	return res
}

func scanError(p model.Platform, err error) model.Finding {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return model.Finding{
		Platform:       p,
		Type:           model.FindingScanError,
		Description:    "Scan failed: " + err.Error(),
		Severity:       model.SeverityInfo,
		PointsDeducted: 0,
		RawData:        string(raw),
	}
}

// Default returns the four scanners in merge order.
func Default(d Deps, cfg config.Config) []Scanner {
	return []Scanner{
		NewLinkedIn(d, cfg.LinkedIn),
		NewGitHub(d),
		NewTwitter(d, cfg.Twitter),
		NewFacebook(d),
	}
}
