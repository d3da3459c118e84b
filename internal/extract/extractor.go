// Package extract turns an agent's loosely structured result text into
// typed findings. Each platform has an ordered list of independent
// predicates; every predicate that fires contributes exactly one finding.
package extract

import (
	"github.com/yourorg/opsec-worker/internal/model"
)

// Predicate is one heuristic with a fixed finding template. Match returns a
// description specialised with what it found, or "" to use Description.
type Predicate struct {
	Type        model.FindingType
	Severity    model.Severity
	Points      int
	Description string
	Match       func(in *Input) (detail string, ok bool)
}

type Extractor struct {
	Platform model.Platform
	// Gate must hold for any predicate to be evaluated. Nil means always.
	Gate       func(in *Input) bool
	Predicates []Predicate
}

// Extract is total: any input, including empty text, yields a (possibly
// empty) finding list.
func (e *Extractor) Extract(raw model.RawResult) []model.Finding {
	if raw.Empty() {
		return nil
	}
	in := NewInput(raw)
	if e.Gate != nil && !e.Gate(in) {
		return nil
	}
	var findings []model.Finding
	for _, p := range e.Predicates {
		detail, ok := p.Match(in)
		if !ok {
			continue
		}
		desc := p.Description
		if detail != "" {
			desc = detail
		}
		findings = append(findings, model.Finding{
			Platform:       e.Platform,
			Type:           p.Type,
			Description:    desc,
			Severity:       p.Severity,
			PointsDeducted: p.Points,
			RawData:        in.Text,
		})
	}
	return findings
}

// ForPlatform returns the extractor for p, or nil for an unknown platform.
func ForPlatform(p model.Platform) *Extractor {
	switch p {
	case model.PlatformLinkedIn:
		return LinkedIn
	case model.PlatformGitHub:
		return GitHub
	case model.PlatformTwitter:
		return Twitter
	case model.PlatformFacebook:
		return Facebook
	}
	return nil
}

func always(*Input) (string, bool) { return "", true }

func profileFound(in *Input) bool {
	return in.Mentions("profileUrl")
}
