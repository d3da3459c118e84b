package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Submit hands a durable pending scan to the worker pool and returns
// immediately. When the queue is full the scan stays pending and the poll
// loop picks it up later.
func (r *Runner) Submit(scanID string) bool {
	select {
	case r.queue <- scanID:
		return true
	default:
		r.log.Warn("scan queue full, deferring to poll loop", zap.String("scan_id", scanID))
		return false
	}
}

func (r *Runner) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[id]; busy {
		return false
	}
	r.active[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// RunForever runs queued scans with at most WorkerConcurrency in flight and
// polls for pending scans nobody submitted, such as those left behind by a
// restart. It returns once ctx is done and every running scan has returned.
func (r *Runner) RunForever(ctx context.Context) error {
	workers := r.cfg.WorkerConcurrency
	if workers < 1 {
		workers = 1
	}
	poll := r.cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	sem := make(chan struct{}, workers)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	r.enqueuePending(ctx)
	for {
		var id string
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.enqueuePending(ctx)
			continue
		case id = <-r.queue:
		}

		if !r.claim(id) {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			r.release(id)
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer r.release(id)
			if err := r.Run(ctx, id); err != nil {
				r.log.Error("scan run ended with error", zap.String("scan_id", id), zap.Error(err))
			}
		}()
	}
}

func (r *Runner) enqueuePending(ctx context.Context) {
	ids, err := r.store.ListPending(ctx, cap(r.queue))
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("list pending scans", zap.Error(err))
		}
		return
	}
	for _, id := range ids {
		r.mu.Lock()
		_, busy := r.active[id]
		r.mu.Unlock()
		if busy {
			continue
		}
		if !r.Submit(id) {
			return
		}
	}
}

// RecoverStaleScans fails scans left scanning by a worker that is gone and
// releases the sessions they recorded. It returns the failed scan ids.
func (r *Runner) RecoverStaleScans(ctx context.Context) []string {
	stale, err := r.store.FailStaleScanning(ctx, r.cfg.StaleScanAfter)
	if err != nil {
		r.log.Warn("recover stale scans", zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(stale))
	for _, st := range stale {
		r.log.Info("failed stale scan", zap.String("scan_id", st.ID), zap.String("session_id", st.SessionID))
		r.sessions.StopSession(ctx, st.SessionID)
		ids = append(ids, st.ID)
	}
	return ids
}
