package db

import (
	"context"

	"github.com/yourorg/opsec-worker/internal/model"
)

// Stats aggregates scans and findings for one owner. An empty owner
// aggregates everything.
func (s *Store) Stats(ctx context.Context, ownerID string) (*model.Stats, error) {
	st := &model.Stats{
		ByType:     map[string]int{},
		ByPlatform: map[string]int{},
		BySeverity: map[string]int{},
	}

	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status='completed'),
		       AVG(score) FILTER (WHERE status='completed')::float8,
		       (SELECT score FROM scans
		         WHERE ($1 = '' OR owner_id = $1) AND status='completed'
		         ORDER BY completed_at DESC NULLS LAST, created_at DESC
		         LIMIT 1),
		       (SELECT AVG(score)::float8 FROM scans WHERE status='completed')
		FROM scans
		WHERE ($1 = '' OR owner_id = $1)
	`, ownerID).Scan(&st.TotalScans, &st.CompletedScans, &st.AverageScore, &st.LatestScore, &st.GlobalAverage)
	if err != nil {
		return nil, err
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT f.finding_type, f.platform, f.severity, COUNT(*)
		FROM scan_findings f
		JOIN scans sc ON sc.id = f.scan_id
		WHERE ($1 = '' OR sc.owner_id = $1)
		GROUP BY f.finding_type, f.platform, f.severity
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var typ, platform, severity string
		var n int
		if err := rows.Scan(&typ, &platform, &severity, &n); err != nil {
			return nil, err
		}
		st.ByType[typ] += n
		st.ByPlatform[platform] += n
		st.BySeverity[severity] += n
	}
	return st, rows.Err()
}
