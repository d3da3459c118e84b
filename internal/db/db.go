package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/opsec-worker/internal/model"
)

// ErrNotFound is returned when no scan has the requested id.
var ErrNotFound = errors.New("scan not found")

const batchSize = 100

type Store struct{ Pool *pgxpool.Pool }

func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: p}, nil
}

func (s *Store) Close() { s.Pool.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Store) notifyScanChanged(ctx context.Context, id string) {
	_, _ = s.Pool.Exec(ctx, `SELECT pg_notify('scan_events', $1)`, id)
}

const scanColumns = `id::text, owner_id, full_name, company, location, username_patterns,
	status, score, live_url, session_id, error_msg, summary_json, created_at, completed_at`

func scanRecord(row pgx.Row) (*model.ScanRecord, error) {
	var (
		r       model.ScanRecord
		status  string
		summary []byte
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.FullName, &r.Company, &r.Location, &r.UsernamePatterns,
		&status, &r.Score, &r.LiveURL, &r.SessionID, &r.ErrorMsg, &summary, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Status = model.Status(status)
	if len(summary) > 0 {
		var sum model.Summary
		if err := json.Unmarshal(summary, &sum); err == nil {
			r.Summary = &sum
		}
	}
	return &r, nil
}

// CreateScan durably records a pending scan and returns it.
func (s *Store) CreateScan(ctx context.Context, ownerID string, req model.ScanRequest) (*model.ScanRecord, error) {
	id := uuid.NewString()
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO scans (id, owner_id, full_name, company, location, username_patterns, status)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, 'pending')
		RETURNING `+scanColumns,
		id, ownerID, req.FullName, req.Company, req.Location, req.UsernamePatterns)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("insert scan: %w", err)
	}
	s.notifyScanChanged(ctx, id)
	return rec, nil
}

func (s *Store) GetScan(ctx context.Context, id string) (*model.ScanRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanRecord(s.Pool.QueryRow(ctx, `SELECT `+scanColumns+` FROM scans WHERE id=$1::uuid`, id))
}

// ListScans returns an owner's scans, newest first. An empty owner lists all.
func (s *Store) ListScans(ctx context.Context, ownerID string, limit int) ([]model.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+scanColumns+`
		FROM scans
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ScanRecord, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListPending returns ids of scans still waiting for an orchestrator run,
// oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text FROM scans
		WHERE status='pending'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Transition moves a scan to u.Status provided its current status is one
// u.Status may be entered from. Nil fields of u keep their stored values.
// It returns model.ErrInvalidTransition when the guard does not hold.
func (s *Store) Transition(ctx context.Context, id string, u model.StatusUpdate) error {
	n, err := updateStatus(ctx, s.Pool, id, u)
	if err != nil {
		return err
	}
	if n == 0 {
		cur, err := s.GetScan(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, cur.Status, u.Status)
	}
	s.notifyScanChanged(ctx, id)
	return nil
}

// CompleteScan moves a pending or scanning scan to completed using the
// findings stored for it. The scan row stays locked from the findings read to
// the status update, so AppendFindings cannot add a finding the update did
// not see. finalize builds the update (score, summary) from those findings.
func (s *Store) CompleteScan(ctx context.Context, id string, finalize func([]model.Finding) model.StatusUpdate) ([]model.Finding, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM scans WHERE id=$1::uuid FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !model.CanTransition(model.Status(status), model.StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, status, model.StatusCompleted)
	}

	findings, err := queryFindings(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}
	u := finalize(findings)
	u.Status = model.StatusCompleted
	if _, err := updateStatus(ctx, tx, id, u); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.notifyScanChanged(ctx, id)
	return findings, nil
}

// updateStatus applies u guarded by u.Status.AllowedFrom and returns the
// number of rows changed.
func updateStatus(ctx context.Context, q querier, id string, u model.StatusUpdate) (int64, error) {
	from := u.Status.AllowedFrom()
	if len(from) == 0 {
		return 0, fmt.Errorf("%w: nothing may enter %q", model.ErrInvalidTransition, u.Status)
	}
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	var summary *string
	if u.Summary != nil {
		b, err := json.Marshal(u.Summary)
		if err != nil {
			return 0, err
		}
		str := string(b)
		summary = &str
	}

	tag, err := q.Exec(ctx, `
		UPDATE scans
		SET status=$2,
		    score=COALESCE($3, score),
		    summary_json=COALESCE($4::jsonb, summary_json),
		    error_msg=COALESCE($5, error_msg),
		    completed_at=COALESCE($6, completed_at),
		    started_at=CASE WHEN $2='scanning' THEN now() ELSE started_at END
		WHERE id=$1::uuid
		  AND status = ANY($7)
	`, id, string(u.Status), u.Score, summary, u.ErrorMsg, u.CompletedAt, allowed)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetSession records the live observation session of a scan that is still
// in progress.
func (s *Store) SetSession(ctx context.Context, id, liveURL, sessionID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE scans
		SET live_url=NULLIF($2, ''), session_id=NULLIF($3, '')
		WHERE id=$1::uuid
		  AND status IN ('pending','scanning')
	`, id, liveURL, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrScanFinalized
	}
	s.notifyScanChanged(ctx, id)
	return nil
}

func (s *Store) InsertEvent(ctx context.Context, scanID string, ev model.ProgressEvent) error {
	ts := ev.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.Pool.Exec(ctx, `
        INSERT INTO scan_events (scan_id, ts, stage, detail, pct)
        VALUES ($1::uuid, $2, $3, $4, $5)
    `, scanID, ts, ev.Stage, ev.Detail, ev.Pct)
	return err
}

func (s *Store) ListEvents(ctx context.Context, scanID string) ([]model.ProgressEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT ts, stage, detail, COALESCE(pct, 0)
		FROM scan_events
		WHERE scan_id=$1::uuid
		ORDER BY id
	`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProgressEvent
	for rows.Next() {
		var ev model.ProgressEvent
		if err := rows.Scan(&ev.TS, &ev.Stage, &ev.Detail, &ev.Pct); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FailStaleScanning fails scans stuck in 'scanning' with no event newer than
// idleFor. A restarted worker cannot resume them because the remote agent
// tasks they were waiting on belong to the lost process. The recorded session
// of each is returned so the caller can release it.
func (s *Store) FailStaleScanning(ctx context.Context, idleFor time.Duration) ([]model.StaleScan, error) {
	seconds := int64(idleFor.Seconds())
	if seconds <= 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		WITH stale AS (
			SELECT sc.id
			FROM scans sc
			LEFT JOIN LATERAL (
				SELECT MAX(ts) AS last_event_ts
				FROM scan_events e
				WHERE e.scan_id = sc.id
			) ev ON true
			WHERE sc.status='scanning'
			  AND COALESCE(ev.last_event_ts, sc.started_at, sc.created_at)
			      < now() - ($1::bigint * interval '1 second')
		)
		UPDATE scans sc
		SET status='failed',
		    error_msg='worker lost: no progress heartbeat'
		FROM stale
		WHERE sc.id = stale.id
		RETURNING sc.id::text, COALESCE(sc.session_id, '')
	`, seconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StaleScan
	for rows.Next() {
		var st model.StaleScan
		if err := rows.Scan(&st.ID, &st.SessionID); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, st := range out {
		s.notifyScanChanged(ctx, st.ID)
	}
	return out, nil
}
