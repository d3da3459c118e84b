package model

type Platform string

const (
	PlatformLinkedIn Platform = "LinkedIn"
	PlatformGitHub   Platform = "GitHub"
	PlatformTwitter  Platform = "Twitter"
	PlatformFacebook Platform = "Facebook"
)

// Platforms is the merge order of scanner output.
var Platforms = []Platform{PlatformLinkedIn, PlatformGitHub, PlatformTwitter, PlatformFacebook}

// Rank is p's position in Platforms, or len(Platforms) when unknown.
func (p Platform) Rank() int {
	for i, q := range Platforms {
		if q == p {
			return i
		}
	}
	return len(Platforms)
}

type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for display, high first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	default:
		return 3
	}
}

type FindingType string

const (
	FindingProfileFound        FindingType = "profile_found"
	FindingTechStackExposure   FindingType = "tech_stack_exposure"
	FindingSecurityPractice    FindingType = "security_practice_exposure"
	FindingCompanyEmailExposed FindingType = "company_email_exposed"
	FindingDetailedJobDesc     FindingType = "detailed_job_description"
	FindingActivePoster        FindingType = "active_poster"
	FindingWorkTweets          FindingType = "work_tweets"
	FindingTechStackTweets     FindingType = "tech_stack_tweets"
	FindingCompanyInBio        FindingType = "company_in_bio"
	FindingPublicProfile       FindingType = "public_profile"
	FindingScanError           FindingType = "scan_error"
)

type Finding struct {
	ID             string      `json:"id,omitempty"`
	ScanID         string      `json:"scan_id,omitempty"`
	Platform       Platform    `json:"platform"`
	Type           FindingType `json:"finding_type"`
	Description    string      `json:"description"`
	Severity       Severity    `json:"severity"`
	PointsDeducted int         `json:"points_deducted"`
	RawData        string      `json:"raw_data,omitempty"`
}

// Recommendation is derived from findings and never stored on its own.
// Title is its identity.
type Recommendation struct {
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

// RawResult is the final text an automation agent returned. It may embed
// JSON-like fragments but nothing about its shape is guaranteed.
type RawResult string

func (r RawResult) Empty() bool { return len(r) == 0 }
