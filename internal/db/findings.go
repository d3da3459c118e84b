package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourorg/opsec-worker/internal/model"
)

// AppendFindings stores findings for a scan that is still scanning, filling
// in their ids. Once the scan is finalized it returns model.ErrScanFinalized
// and stores nothing.
func (s *Store) AppendFindings(ctx context.Context, scanID string, findings []model.Finding) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM scans WHERE id=$1::uuid FOR UPDATE`, scanID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if model.Status(status) != model.StatusScanning {
		return model.ErrScanFinalized
	}

	if err := batchInsertFindings(ctx, tx, scanID, findings); err != nil {
		return fmt.Errorf("batch insert findings: %w", err)
	}
	return tx.Commit(ctx)
}

// batchInsertFindings pipelines the inserts through pgx.Batch in groups of
// batchSize, reading back each generated id.
func batchInsertFindings(ctx context.Context, tx pgx.Tx, scanID string, findings []model.Finding) error {
	for start := 0; start < len(findings); start += batchSize {
		end := start + batchSize
		if end > len(findings) {
			end = len(findings)
		}
		chunk := findings[start:end]

		batch := &pgx.Batch{}
		for _, f := range chunk {
			batch.Queue(`
INSERT INTO scan_findings (
  scan_id, platform, platform_rank, finding_type, description,
  severity, points_deducted, raw_data
)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
RETURNING id::text`,
				scanID,
				string(f.Platform),
				f.Platform.Rank(),
				string(f.Type),
				f.Description,
				string(f.Severity),
				f.PointsDeducted,
				nullableString(f.RawData),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range chunk {
			if err := br.QueryRow().Scan(&chunk[i].ID); err != nil {
				_ = br.Close()
				return err
			}
			chunk[i].ScanID = scanID
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ListFindings returns a scan's findings in platform order, and in the order
// each platform reported them.
func (s *Store) ListFindings(ctx context.Context, scanID string) ([]model.Finding, error) {
	return queryFindings(ctx, s.Pool, scanID)
}

func queryFindings(ctx context.Context, q querier, scanID string) ([]model.Finding, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, scan_id::text, platform, finding_type, description,
		       severity, points_deducted, COALESCE(raw_data, '')
		FROM scan_findings
		WHERE scan_id=$1::uuid
		ORDER BY platform_rank, id
	`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var platform, typ, severity string
		if err := rows.Scan(&f.ID, &f.ScanID, &platform, &typ, &f.Description,
			&severity, &f.PointsDeducted, &f.RawData); err != nil {
			return nil, err
		}
		f.Platform = model.Platform(platform)
		f.Type = model.FindingType(typ)
		f.Severity = model.Severity(severity)
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
