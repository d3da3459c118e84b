package scoring

import (
	"sort"

	"github.com/yourorg/opsec-worker/internal/model"
)

var recommendations = map[model.FindingType]model.Recommendation{
	model.FindingTechStackExposure: {
		Severity:    model.SeverityHigh,
		Title:       "Remove tech stack details from LinkedIn",
		Description: "Avoid posting about specific internal tools, frameworks, or technical architecture on LinkedIn. Attackers use this to craft targeted attacks.",
	},
	model.FindingSecurityPractice: {
		Severity:    model.SeverityHigh,
		Title:       "Don't discuss security practices publicly",
		Description: "Never post about company security practices, authentication methods, or security tools on social media.",
	},
	model.FindingCompanyEmailExposed: {
		Severity:    model.SeverityHigh,
		Title:       "Use personal email for GitHub commits",
		Description: `Configure Git to use a personal or noreply address for public repositories: git config --global user.email "personal@email.com"`,
	},
	model.FindingPublicProfile: {
		Severity:    model.SeverityMedium,
		Title:       "Make Facebook profile private",
		Description: `Change your Facebook privacy settings so strangers cannot view your profile. Under Settings > Privacy set "Who can see your future posts?" to "Friends".`,
	},
	model.FindingCompanyInBio: {
		Severity:    model.SeverityMedium,
		Title:       "Consider removing company from bio",
		Description: "Removing your employer from social media bios reduces your attack surface and separates personal from professional identity.",
	},
	model.FindingDetailedJobDesc: {
		Severity:    model.SeverityMedium,
		Title:       "Simplify job description",
		Description: "Keep LinkedIn job descriptions high-level. Avoid naming specific infrastructure, cloud providers, or internal systems.",
	},
	model.FindingWorkTweets: {
		Severity:    model.SeverityMedium,
		Title:       "Separate work from personal social media",
		Description: "Use a separate professional account for work-related posts, or stop posting work details from personal accounts.",
	},
}

// Recommend maps findings to remediation advice, one entry per title in
// first-seen order. Types without advice (scan_error, profile_found, ...)
// contribute nothing.
func Recommend(findings []model.Finding) []model.Recommendation {
	out := []model.Recommendation{}
	seen := make(map[string]struct{})
	for _, f := range findings {
		rec, ok := recommendations[f.Type]
		if !ok {
			continue
		}
		if _, dup := seen[rec.Title]; dup {
			continue
		}
		seen[rec.Title] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// ByImpact returns a copy of findings ordered for display, largest deduction
// first. Ties keep scan order.
func ByImpact(findings []model.Finding) []model.Finding {
	out := make([]model.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PointsDeducted > out[j].PointsDeducted
	})
	return out
}

// NewReport assembles the read model for scan. Findings keep the order given.
func NewReport(scan model.ScanRecord, findings []model.Finding) model.Report {
	if findings == nil {
		findings = []model.Finding{}
	}
	return model.Report{
		Scan:            scan,
		Findings:        findings,
		Recommendations: Recommend(findings),
	}
}
