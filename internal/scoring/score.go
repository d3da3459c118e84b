// Package scoring derives the OPSEC score, remediation advice and severity
// summary from a finding set. Everything here is pure and order-independent.
package scoring

import (
	"github.com/yourorg/opsec-worker/internal/model"
)

const MaxScore = 100

// Score is max(0, 100 - total deductions), always within [0, 100].
func Score(findings []model.Finding) int {
	total := 0
	for _, f := range findings {
		if f.PointsDeducted > 0 {
			total += f.PointsDeducted
		}
		if total >= MaxScore {
			return 0
		}
	}
	return MaxScore - total
}

func Summarize(findings []model.Finding) model.Summary {
	s := model.Summary{Total: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityHigh:
			s.High++
		case model.SeverityMedium:
			s.Medium++
		case model.SeverityLow:
			s.Low++
		default:
			s.Info++
		}
	}
	return s
}
