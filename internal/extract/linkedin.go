package extract

import (
	"fmt"
	"strings"

	"github.com/yourorg/opsec-worker/internal/model"
)

var LinkedIn = &Extractor{
	Platform: model.PlatformLinkedIn,
	Gate:     profileFound,
	Predicates: []Predicate{
		{
			Type:        model.FindingProfileFound,
			Severity:    model.SeverityLow,
			Points:      5,
			Description: "LinkedIn profile found and analyzed",
			Match:       always,
		},
		{
			Type:        model.FindingTechStackExposure,
			Severity:    model.SeverityHigh,
			Points:      15,
			Description: "LinkedIn profile or posts mention specific internal tools, frameworks, or tech stack",
			Match:       linkedInTechStack,
		},
		{
			Type:        model.FindingSecurityPractice,
			Severity:    model.SeverityHigh,
			Points:      15,
			Description: "LinkedIn posts or profile discuss company security practices or tools",
			Match:       linkedInSecurity,
		},
		{
			Type:        model.FindingDetailedJobDesc,
			Severity:    model.SeverityMedium,
			Points:      10,
			Description: "Job description reveals specific details about company infrastructure or responsibilities",
			Match:       linkedInJobDescription,
		},
		{
			Type:        model.FindingActivePoster,
			Severity:    model.SeverityLow,
			Points:      5,
			Description: "User actively posts on LinkedIn - review posts for potential information leaks",
			Match:       linkedInActivePoster,
		},
	},
}

func linkedInTechStack(in *Input) (string, bool) {
	found := in.Keywords(techKeywords)
	mentions := in.Strings("techStackMentions", "name")
	fires := len(found) > 0 || len(mentions) > 0
	if in.Fragment == nil && in.Mentions("techStackMentions") {
		fires = true
	}
	if !fires {
		return "", false
	}

	if len(mentions) > 0 {
		return "Mentioned: " + strings.Join(mentions, ", "), true
	}
	if posts := in.Strings("recentPosts", "content"); len(posts) > 0 {
		return fmt.Sprintf("Found in post: %q", truncate(posts[0], 100)), true
	}
	if len(found) > 0 {
		return "Technologies found: " + strings.ToUpper(strings.Join(found, ", ")), true
	}
	return "", true
}

func linkedInSecurity(in *Input) (string, bool) {
	mentions := in.Strings("securityMentions", "name")
	found := in.Keywords(securityKeywords)
	if len(mentions) == 0 && len(found) == 0 {
		return "", false
	}
	if len(mentions) > 0 {
		return "Security practices mentioned: " + strings.Join(mentions, ", "), true
	}
	return "", true
}

func linkedInJobDescription(in *Input) (string, bool) {
	if v, ok := in.Bool("hasDetailedJobDescription"); ok && v {
		return describeJob(in), true
	}
	if len(in.Keywords(jobDetailKeywords)) > 0 {
		return describeJob(in), true
	}
	if in.Fragment == nil && in.Mentions("hasDetailedJobDescription") {
		return "", true
	}
	return "", false
}

func describeJob(in *Input) string {
	title := in.String("jobTitle")
	if title == "" {
		return ""
	}
	return fmt.Sprintf("Job description for %q reveals specific details about company infrastructure or responsibilities", truncate(title, 80))
}

func linkedInActivePoster(in *Input) (string, bool) {
	if n := in.Count("recentPosts"); n >= 0 {
		if n == 0 {
			return "", false
		}
		return fmt.Sprintf("User actively posts on LinkedIn (%d recent posts) - review posts for potential information leaks", n), true
	}
	if in.Fragment == nil && in.Mentions("recentPosts") && in.Says("post") {
		return "", true
	}
	return "", false
}
