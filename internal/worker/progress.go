package worker

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/opsec-worker/internal/model"
)

const (
	stageStart     = "scan.start"
	stageHeartbeat = "scan.heartbeat"
	stageDone      = "scan.done"
)

func platformStage(p model.Platform) string {
	return strings.ToLower(string(p)) + ".done"
}

// derivePct maps finished platforms onto 0..100.
func derivePct(done, total int) int {
	if total <= 0 || done >= total {
		return 100
	}
	if done <= 0 {
		return 0
	}
	return done * 100 / total
}

// event records progress. Events are advisory, so failures are only logged.
func (r *Runner) event(ctx context.Context, scanID, stage, detail string, pct int) {
	ev := model.ProgressEvent{Stage: stage, Detail: detail, Pct: pct, TS: time.Now().UTC()}
	if err := r.store.InsertEvent(ctx, scanID, ev); err != nil {
		r.log.Debug("insert event failed",
			zap.String("scan_id", scanID), zap.String("stage", stage), zap.Error(err))
	}
}

// heartbeat keeps a long running scan from looking abandoned to
// FailStaleScanning until stop is called.
func (r *Runner) heartbeat(ctx context.Context, scanID string, pct func() int) (stop func()) {
	if r.heartbeatEvery <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(r.heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.event(ctx, scanID, stageHeartbeat, "waiting on platform scanners", pct())
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
