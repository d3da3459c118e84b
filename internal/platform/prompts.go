package platform

import (
	"fmt"
	"strings"

	"github.com/yourorg/opsec-worker/internal/config"
	"github.com/yourorg/opsec-worker/internal/model"
)

func NewLinkedIn(d Deps, creds config.Credentials) Scanner {
	return newScanner(d, scanner{
		platform: model.PlatformLinkedIn,
		maxSteps: 20,
		auth:     authSurfaced,
		creds:    creds,
		prompt:   linkedInPrompt,
	})
}

func NewGitHub(d Deps) Scanner {
	return newScanner(d, scanner{
		platform: model.PlatformGitHub,
		maxSteps: 15,
		prompt:   gitHubPrompt,
	})
}

func NewTwitter(d Deps, creds config.Credentials) Scanner {
	return newScanner(d, scanner{
		platform: model.PlatformTwitter,
		maxSteps: 15,
		auth:     authInternal,
		creds:    creds,
		prompt:   twitterPrompt,
	})
}

func NewFacebook(d Deps) Scanner {
	return newScanner(d, scanner{
		platform: model.PlatformFacebook,
		maxSteps: 10,
		prompt:   facebookPrompt,
	})
}

func linkedInPrompt(r model.ScanRequest) string {
	if r.Company != "" {
		return fmt.Sprintf(`Search LinkedIn for %q who works at %s. Use the search bar and filter by People. `+
			`Once you find their profile, analyze: 1) Their current job title and full description, `+
			`2) Recent posts and articles they've shared (look for mentions of tools, frameworks, or tech stack), `+
			`3) Skills section for technical tools, 4) Any posts mentioning security practices, infrastructure, or internal systems. `+
			`Return detailed findings in JSON format with: {profileUrl, jobTitle, jobDescription, recentPosts: [{content, date}], `+
			`techStackMentions: [string], securityMentions: [string], hasDetailedJobDescription: boolean}`,
			r.FullName, r.Company)
	}
	return fmt.Sprintf(`Search LinkedIn for %q. Use the search bar and filter by People. `+
		`Once you find their profile, analyze: 1) Current company and job title, 2) Recent posts they've shared, `+
		`3) Skills that might reveal company tech stack, 4) Job description details. `+
		`Return detailed findings in JSON format with: {profileUrl, company, jobTitle, recentPosts: [{content, date}], techStackMentions: [string]}`,
		r.FullName)
}

func gitHubPrompt(r model.ScanRequest) string {
	return fmt.Sprintf(`Search GitHub for users with name %q or usernames similar to: %s. `+
		`For any matching profiles found: 1) Check if they use a company email in commits, `+
		`2) Look for repositories that might be work-related, 3) Check profile bio for company mentions. `+
		`Return a JSON object with: profileUrl, email (if found in commits), company, companyInBio (boolean), publicRepos (count).`,
		r.FullName, searchTerms(r))
}

func twitterPrompt(r model.ScanRequest) string {
	if r.Company != "" {
		return fmt.Sprintf(`Search Twitter/X for profiles matching: %s. Use the search function to find the user. `+
			`If a matching profile is found: 1) Check their bio for company name %q, `+
			`2) Read their recent tweets (at least 10) for mentions of work, internal tools, or company information, `+
			`3) Check if profile is public or protected. `+
			`Return detailed JSON: {profileUrl, bio, bioMentionsCompany: boolean, recentTweets: [{text, date}], tweetsMentionWork: boolean, mentionedTools: [string]}`,
			searchTerms(r), r.Company)
	}
	return fmt.Sprintf(`Search Twitter/X for profiles matching: %s. Use the search function. `+
		`If found: 1) Check bio for company/employer mentions, 2) Read recent tweets for work-related content, 3) Check profile visibility. `+
		`Return JSON: {profileUrl, bio, hasWorkTweets: boolean, recentTweets: [{text}], isPublic: boolean}`,
		searchTerms(r))
}

func facebookPrompt(r model.ScanRequest) string {
	where := ""
	if r.Location != "" {
		where = " in " + r.Location
	}
	return fmt.Sprintf(`Search Facebook for %q%s. Check if there's a public profile visible without login. `+
		`Return a JSON object with: hasPublicProfile (boolean), visibleInfo (string describing what's visible).`,
		r.FullName, where)
}

// searchTerms is the known usernames, or the full name when none were given.
func searchTerms(r model.ScanRequest) string {
	if u := r.Usernames(); len(u) > 0 {
		return strings.Join(u, ", ")
	}
	return r.FullName
}
