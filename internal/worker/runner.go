package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/opsec-worker/internal/browser"
	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/model"
	"github.com/yourorg/opsec-worker/internal/platform"
	"github.com/yourorg/opsec-worker/internal/s3"
	"github.com/yourorg/opsec-worker/internal/scoring"
)

// Store is the persistence the orchestrator needs. *db.Store implements it.
type Store interface {
	GetScan(ctx context.Context, id string) (*model.ScanRecord, error)
	Transition(ctx context.Context, id string, u model.StatusUpdate) error
	SetSession(ctx context.Context, id, liveURL, sessionID string) error
	AppendFindings(ctx context.Context, scanID string, findings []model.Finding) error
	CompleteScan(ctx context.Context, id string, finalize func([]model.Finding) model.StatusUpdate) ([]model.Finding, error)
	InsertEvent(ctx context.Context, scanID string, ev model.ProgressEvent) error
	ListPending(ctx context.Context, limit int) ([]string, error)
	FailStaleScanning(ctx context.Context, idleFor time.Duration) ([]model.StaleScan, error)
}

// Archiver keeps a copy of each completed report. *s3.Client implements it.
type Archiver interface {
	PutJSON(ctx context.Context, bucket, key string, v any) error
}

type SessionStopper interface {
	StopSession(ctx context.Context, id string)
}

const finalizeTimeout = 5 * time.Second

// Runner is the scan orchestrator. It drives each scan through
// pending -> scanning -> completed|failed and owns the worker pool that
// runs submitted scans.
type Runner struct {
	cfg      config.Config
	store    Store
	scanners []platform.Scanner
	sessions SessionStopper
	archive  Archiver
	log      *zap.Logger

	heartbeatEvery time.Duration

	queue  chan string
	mu     sync.Mutex
	active map[string]struct{}
}

// NewRunner wires an orchestrator. archive may be nil to disable report
// archiving.
func NewRunner(cfg config.Config, store Store, scanners []platform.Scanner, sessions SessionStopper, archive Archiver, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	return &Runner{
		cfg:            cfg,
		store:          store,
		scanners:       scanners,
		sessions:       sessions,
		archive:        archive,
		log:            log,
		heartbeatEvery: time.Minute,
		queue:          make(chan string, size),
		active:         make(map[string]struct{}),
	}
}

// liveSession is the session of record for one run, written by whichever
// scanner surfaces it and read by the exit paths.
type liveSession struct {
	mu  sync.Mutex
	sid string
}

func (l *liveSession) set(id string) {
	l.mu.Lock()
	l.sid = id
	l.mu.Unlock()
}

func (l *liveSession) id() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sid
}

// Run executes one scan end to end. A scan that is no longer pending is
// skipped. Per-platform failures never reach here; anything that does is an
// OrchestratorError and leaves the scan failed.
func (r *Runner) Run(ctx context.Context, scanID string) (err error) {
	log := r.log.With(zap.String("scan_id", scanID))

	scan, err := r.store.GetScan(ctx, scanID)
	if err != nil {
		return &OrchestratorError{ScanID: scanID, Stage: "load", Err: err}
	}
	if err := r.store.Transition(ctx, scanID, model.StatusUpdate{Status: model.StatusScanning}); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			log.Debug("scan is not pending, skipping", zap.String("status", string(scan.Status)))
			return nil
		}
		return r.fail(ctx, scanID, "start", err, "")
	}
	log.Info("scan started", zap.Int("platforms", len(r.scanners)))
	r.event(ctx, scanID, stageStart, fmt.Sprintf("scanning %d platforms", len(r.scanners)), 0)

	sess := &liveSession{}
	defer func() {
		if p := recover(); p != nil {
			err = r.fail(ctx, scanID, "orchestrate", fmt.Errorf("panic: %v", p), sess.id())
		}
	}()

	err = r.scanAll(ctx, scan, sess, log)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("interrupted: %w", ctx.Err())
	}
	if err != nil {
		if errors.Is(err, model.ErrScanFinalized) {
			log.Info("scan was finalized while platforms were running")
			r.sessions.StopSession(ctx, sess.id())
			return nil
		}
		return r.fail(ctx, scanID, "scan", err, sess.id())
	}

	if _, err := r.complete(ctx, scanID, sess.id()); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			log.Info("scan was finalized before completion, keeping it")
			r.sessions.StopSession(ctx, sess.id())
			return nil
		}
		return r.fail(ctx, scanID, "complete", err, sess.id())
	}
	return nil
}

// scanAll runs every scanner concurrently and waits for all of them. Each
// platform's findings are stored as soon as it returns, so a force-complete
// scores whatever has arrived. The store keeps them in platform order.
func (r *Runner) scanAll(ctx context.Context, scan *model.ScanRecord, sess *liveSession, log *zap.Logger) error {
	var done atomic.Int32
	total := len(r.scanners)

	stop := r.heartbeat(ctx, scan.ID, func() int { return derivePct(int(done.Load()), total) })
	defer stop()

	var g errgroup.Group
	for _, sc := range r.scanners {
		sc := sc
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("%s platform: panic: %v", sc.Platform(), p)
				}
			}()
			var sessErr error
			res := sc.Scan(ctx, scan.ScanRequest, func(s browser.Session) {
				sess.set(s.ID)
				if sessErr = r.store.SetSession(ctx, scan.ID, s.LiveURL, s.ID); sessErr == nil {
					log.Info("live session recorded",
						zap.String("platform", string(sc.Platform())), zap.String("session_id", s.ID))
				}
			})
			if sessErr != nil {
				return fmt.Errorf("record %s session: %w", sc.Platform(), sessErr)
			}
			if len(res.Findings) > 0 {
				if err := r.store.AppendFindings(ctx, scan.ID, res.Findings); err != nil {
					return fmt.Errorf("persist %s findings: %w", sc.Platform(), err)
				}
			}

			n := int(done.Add(1))
			log.Info("platform finished",
				zap.String("platform", string(sc.Platform())),
				zap.Int("findings", len(res.Findings)),
				zap.Duration("took", res.Duration))
			r.event(ctx, scan.ID, platformStage(sc.Platform()),
				fmt.Sprintf("%d findings", len(res.Findings)), derivePct(n, total))
			return nil
		})
	}
	return g.Wait()
}

// complete is the single transition to completed shared by normal runs and
// force-complete. The score is computed by the store from the findings it
// holds at that moment, so the stored score always matches the stored
// findings. The session of record is then released and the report archived.
func (r *Runner) complete(ctx context.Context, scanID, sessionID string) (int, error) {
	var score int
	dbctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var findings []model.Finding
	err := retry(dbctx, 3, 200*time.Millisecond, func() error {
		var err error
		findings, err = r.store.CompleteScan(dbctx, scanID, func(fs []model.Finding) model.StatusUpdate {
			score = scoring.Score(fs)
			summary := scoring.Summarize(fs)
			now := time.Now().UTC()
			return model.StatusUpdate{
				Status:      model.StatusCompleted,
				Score:       &score,
				Summary:     &summary,
				CompletedAt: &now,
			}
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	r.sessions.StopSession(ctx, sessionID)
	r.event(dbctx, scanID, stageDone, fmt.Sprintf("score %d", score), 100)
	r.archiveReport(dbctx, scanID, findings)
	r.log.Info("scan completed",
		zap.String("scan_id", scanID), zap.Int("score", score), zap.Int("findings", len(findings)))
	return score, nil
}

// fail releases the session of record and marks the scan failed without a
// score. It returns the OrchestratorError describing why.
func (r *Runner) fail(ctx context.Context, scanID, stage string, cause error, sessionID string) error {
	oerr := &OrchestratorError{ScanID: scanID, Stage: stage, Err: cause}
	r.log.Error("scan failed",
		zap.String("scan_id", scanID), zap.String("stage", stage), zap.Error(cause))

	r.sessions.StopSession(ctx, sessionID)

	msg := fmt.Sprintf("%s: %v", stage, cause)
	dbctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := retry(dbctx, 3, 200*time.Millisecond, func() error {
		return r.store.Transition(dbctx, scanID, model.StatusUpdate{Status: model.StatusFailed, ErrorMsg: &msg})
	}); err != nil {
		r.log.Error("mark failed", zap.String("scan_id", scanID), zap.Error(err))
	}
	return oerr
}

// ForceComplete finalizes a pending or scanning scan on the findings stored
// so far. Remote work still in flight is not cancelled; its results are
// discarded when they arrive. Scans in any other status are rejected with a
// *model.ValidationError and left untouched.
func (r *Runner) ForceComplete(ctx context.Context, scanID string) (*model.ScanRecord, error) {
	scan, err := r.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.Status != model.StatusPending && scan.Status != model.StatusScanning {
		return nil, &model.ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("can only force complete scans that are in progress, scan is %s", scan.Status),
		}
	}

	var sessionID string
	if scan.SessionID != nil {
		sessionID = *scan.SessionID
	}
	score, err := r.complete(ctx, scanID, sessionID)
	if err != nil {
		return nil, err
	}
	r.log.Info("scan force-completed", zap.String("scan_id", scanID), zap.Int("score", score))
	return r.store.GetScan(ctx, scanID)
}

func (r *Runner) archiveReport(ctx context.Context, scanID string, findings []model.Finding) {
	if r.archive == nil || r.cfg.ReportsBucket == "" {
		return
	}
	scan, err := r.store.GetScan(ctx, scanID)
	if err != nil {
		r.log.Warn("archive report: load scan", zap.String("scan_id", scanID), zap.Error(err))
		return
	}
	report := scoring.NewReport(*scan, findings)
	key := s3.ReportKey(scanID)
	if err := r.archive.PutJSON(ctx, r.cfg.ReportsBucket, key, report); err != nil {
		r.log.Warn("archive report", zap.String("scan_id", scanID), zap.String("key", key), zap.Error(err))
		return
	}
	r.log.Debug("report archived", zap.String("scan_id", scanID), zap.String("key", key))
}
