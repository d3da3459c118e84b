package extract

import (
	"regexp"
	"strings"

	"github.com/yourorg/opsec-worker/internal/model"
)

var GitHub = &Extractor{
	Platform: model.PlatformGitHub,
	Gate:     profileFound,
	Predicates: []Predicate{
		{
			Type:        model.FindingProfileFound,
			Severity:    model.SeverityMedium,
			Points:      8,
			Description: "GitHub profile found with real name",
			Match:       always,
		},
		{
			Type:        model.FindingCompanyEmailExposed,
			Severity:    model.SeverityHigh,
			Points:      20,
			Description: "Company email address found in Git commits",
			Match:       gitHubEmail,
		},
		{
			Type:        model.FindingCompanyInBio,
			Severity:    model.SeverityMedium,
			Points:      10,
			Description: "GitHub profile bio mentions company name",
			Match:       gitHubCompanyInBio,
		},
	},
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// commit addresses that do not identify the author
var privateEmailDomains = []string{"users.noreply.github.com", "noreply.github.com", "example.com"}

func gitHubEmail(in *Input) (string, bool) {
	candidates := []string{in.String("email")}
	candidates = append(candidates, emailPattern.FindAllString(in.Text, -1)...)
	for _, c := range candidates {
		if c == "" || !emailPattern.MatchString(c) || isPrivateEmail(c) {
			continue
		}
		return "Company email address found in Git commits: " + emailPattern.FindString(c), true
	}
	return "", false
}

func isPrivateEmail(addr string) bool {
	addr = strings.ToLower(addr)
	for _, d := range privateEmailDomains {
		if strings.HasSuffix(addr, "@"+d) || strings.HasSuffix(addr, "."+d) {
			return true
		}
	}
	return false
}

func gitHubCompanyInBio(in *Input) (string, bool) {
	if v, ok := in.Bool("companyInBio"); ok {
		if !v {
			return "", false
		}
		if c := in.String("company"); c != "" {
			return "GitHub profile bio mentions company name: " + truncate(c, 80), true
		}
		return "", true
	}
	if in.Says("company") {
		return "", true
	}
	return "", in.Fragment == nil && in.Mentions("companyInBio")
}
