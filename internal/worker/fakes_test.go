package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/opsec-worker/internal/browser"
	"github.com/yourorg/opsec-worker/internal/db"
	"github.com/yourorg/opsec-worker/internal/model"
	"github.com/yourorg/opsec-worker/internal/platform"
)

type memStore struct {
	mu        sync.Mutex
	scans     map[string]*model.ScanRecord
	findings  map[string][]model.Finding
	events    map[string][]model.ProgressEvent
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		scans:    map[string]*model.ScanRecord{},
		findings: map[string][]model.Finding{},
		events:   map[string][]model.ProgressEvent{},
	}
}

func (m *memStore) add(id string, status model.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[id] = &model.ScanRecord{
		ID:          id,
		ScanRequest: model.ScanRequest{FullName: "Jane Doe", Company: "Acme"},
		Status:      status,
		CreatedAt:   time.Now(),
	}
}

func (m *memStore) get(id string) model.ScanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.scans[id]
}

func (m *memStore) GetScan(ctx context.Context, id string) (*model.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Transition(ctx context.Context, id string, u model.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return db.ErrNotFound
	}
	if !model.CanTransition(s.Status, u.Status) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, s.Status, u.Status)
	}
	s.Status = u.Status
	if u.Score != nil {
		s.Score = u.Score
	}
	if u.Summary != nil {
		s.Summary = u.Summary
	}
	if u.ErrorMsg != nil {
		s.ErrorMsg = u.ErrorMsg
	}
	if u.CompletedAt != nil {
		s.CompletedAt = u.CompletedAt
	}
	return nil
}

func (m *memStore) SetSession(ctx context.Context, id, liveURL, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.scans[id]
	if s.Status.Terminal() {
		return model.ErrScanFinalized
	}
	s.LiveURL, s.SessionID = &liveURL, &sessionID
	return nil
}

func (m *memStore) AppendFindings(ctx context.Context, scanID string, fs []model.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if m.scans[scanID].Status != model.StatusScanning {
		return model.ErrScanFinalized
	}
	m.findings[scanID] = append(m.findings[scanID], fs...)
	return nil
}

// ListFindings mirrors the database ordering: platform rank, then arrival.
func (m *memStore) ListFindings(ctx context.Context, scanID string) ([]model.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedFindings(scanID), nil
}

func (m *memStore) sortedFindings(scanID string) []model.Finding {
	out := append([]model.Finding(nil), m.findings[scanID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Platform.Rank() < out[j].Platform.Rank() })
	return out
}

func (m *memStore) CompleteScan(ctx context.Context, id string, finalize func([]model.Finding) model.StatusUpdate) ([]model.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if !model.CanTransition(s.Status, model.StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> completed", model.ErrInvalidTransition, s.Status)
	}
	fs := m.sortedFindings(id)
	u := finalize(fs)
	s.Status = model.StatusCompleted
	s.Score, s.Summary, s.CompletedAt = u.Score, u.Summary, u.CompletedAt
	return fs, nil
}

func (m *memStore) InsertEvent(ctx context.Context, scanID string, ev model.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[scanID] = append(m.events[scanID], ev)
	return nil
}

func (m *memStore) ListPending(ctx context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.scans {
		if s.Status == model.StatusPending && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) FailStaleScanning(ctx context.Context, idleFor time.Duration) ([]model.StaleScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StaleScan
	for id, s := range m.scans {
		if s.Status == model.StatusScanning {
			s.Status = model.StatusFailed
			st := model.StaleScan{ID: id}
			if s.SessionID != nil {
				st.SessionID = *s.SessionID
			}
			out = append(out, st)
		}
	}
	return out, nil
}

// remoteService counts the stop calls that actually reach the remote side.
type remoteService struct {
	mu    sync.Mutex
	stops map[string]int
}

func (s *remoteService) CreateSession(ctx context.Context, opts browser.SessionOptions) (*browser.Session, error) {
	return nil, fmt.Errorf("not used")
}

func (s *remoteService) RunAgentTask(ctx context.Context, task browser.AgentTask) (model.RawResult, error) {
	return "", fmt.Errorf("not used")
}

func (s *remoteService) StopSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stops == nil {
		s.stops = map[string]int{}
	}
	s.stops[id]++
	return nil
}

func (s *remoteService) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops[id]
}

// fakeScanner returns canned findings. A non-nil session is surfaced before
// release is awaited, so tests can observe state mid-scan.
type fakeScanner struct {
	p        model.Platform
	findings []model.Finding
	session  *browser.Session
	release  chan struct{}
}

func (f *fakeScanner) Platform() model.Platform { return f.p }

func (f *fakeScanner) Scan(ctx context.Context, req model.ScanRequest, onSession platform.SessionFunc) platform.Result {
	res := platform.Result{Platform: f.p, Findings: f.findings}
	if f.session != nil && onSession != nil {
		res.Session = f.session
		onSession(*f.session)
	}
	if f.release != nil {
		<-f.release
	}
	return res
}

func finding(p model.Platform, t model.FindingType, sev model.Severity, points int) model.Finding {
	return model.Finding{Platform: p, Type: t, Severity: sev, PointsDeducted: points, Description: string(t)}
}
