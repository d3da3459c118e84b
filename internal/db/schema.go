package db

import "context"

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS scans (
  id UUID PRIMARY KEY,
  owner_id TEXT NOT NULL DEFAULT '',
  full_name TEXT NOT NULL,
  company TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  username_patterns TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK (status IN ('pending','scanning','completed','failed')),
  score INTEGER CHECK (score BETWEEN 0 AND 100),
  live_url TEXT,
  session_id TEXT,
  error_msg TEXT,
  summary_json JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  started_at TIMESTAMPTZ,
  completed_at TIMESTAMPTZ
);

ALTER TABLE scans ADD COLUMN IF NOT EXISTS error_msg TEXT;
ALTER TABLE scans ADD COLUMN IF NOT EXISTS summary_json JSONB;
ALTER TABLE scans ADD COLUMN IF NOT EXISTS started_at TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_scans_status_created ON scans (status, created_at);
CREATE INDEX IF NOT EXISTS idx_scans_owner_created ON scans (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS scan_findings (
  id BIGSERIAL PRIMARY KEY,
  scan_id UUID NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  platform TEXT NOT NULL,
  platform_rank SMALLINT NOT NULL DEFAULT 0,
  finding_type TEXT NOT NULL,
  description TEXT NOT NULL,
  severity TEXT NOT NULL CHECK (severity IN ('info','low','medium','high')),
  points_deducted INTEGER NOT NULL DEFAULT 0,
  raw_data TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_findings_scan_rank ON scan_findings (scan_id, platform_rank, id);

CREATE TABLE IF NOT EXISTS scan_events (
  id BIGSERIAL PRIMARY KEY,
  scan_id UUID NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  ts TIMESTAMPTZ NOT NULL DEFAULT now(),
  stage TEXT NOT NULL,
  detail TEXT NOT NULL,
  pct SMALLINT
);

CREATE INDEX IF NOT EXISTS idx_scan_events_scan_ts ON scan_events (scan_id, ts);
CREATE INDEX IF NOT EXISTS idx_scan_events_scan_id_id ON scan_events (scan_id, id);

CREATE OR REPLACE FUNCTION notify_scan_event() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('scan_events', NEW.id::text);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'scans_notify') THEN
    CREATE TRIGGER scans_notify
    AFTER INSERT OR UPDATE ON scans
    FOR EACH ROW EXECUTE FUNCTION notify_scan_event();
  END IF;
END$$;
`)
	return err
}
