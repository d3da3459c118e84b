package extract

import (
	"fmt"
	"strings"

	"github.com/yourorg/opsec-worker/internal/model"
)

var Twitter = &Extractor{
	Platform: model.PlatformTwitter,
	Gate:     profileFound,
	Predicates: []Predicate{
		{
			Type:        model.FindingProfileFound,
			Severity:    model.SeverityLow,
			Points:      5,
			Description: "Twitter/X profile found",
			Match:       always,
		},
		{
			Type:        model.FindingCompanyInBio,
			Severity:    model.SeverityMedium,
			Points:      10,
			Description: "Twitter bio mentions company name or employer",
			Match:       twitterCompanyInBio,
		},
		{
			Type:        model.FindingWorkTweets,
			Severity:    model.SeverityMedium,
			Points:      12,
			Description: "Tweets mention work, company information, or technical tools",
			Match:       twitterWorkTweets,
		},
		{
			Type:        model.FindingTechStackTweets,
			Severity:    model.SeverityHigh,
			Points:      15,
			Description: "Tweets reveal specific technologies or tools used at work",
			Match:       twitterTechStack,
		},
	},
}

func twitterCompanyInBio(in *Input) (string, bool) {
	if v, ok := in.Bool("bioMentionsCompany"); ok {
		if !v {
			return "", false
		}
		if bio := in.String("bio"); bio != "" {
			return fmt.Sprintf("Twitter bio mentions company name or employer: %q", truncate(bio, 100)), true
		}
		return "", true
	}
	if in.Says("company") || in.Says("employer") {
		return "", true
	}
	return "", in.Fragment == nil && in.Mentions("bioMentionsCompany")
}

func twitterWorkTweets(in *Input) (string, bool) {
	fires := len(in.Strings("mentionedTools", "name")) > 0
	for _, key := range []string{"tweetsMentionWork", "hasWorkTweets"} {
		if v, ok := in.Bool(key); ok && v {
			fires = true
		}
	}
	if len(in.Keywords(workKeywords)) > 0 {
		fires = true
	}
	if in.Fragment == nil && in.Mentions("mentionedTools") {
		fires = true
	}
	if !fires {
		return "", false
	}
	for _, tweet := range in.Strings("recentTweets", "text") {
		lower := strings.ToLower(tweet)
		for _, k := range workKeywords {
			if strings.Contains(lower, k) {
				return fmt.Sprintf("Tweets mention work or company information, e.g. %q", truncate(tweet, 100)), true
			}
		}
	}
	return "", true
}

func twitterTechStack(in *Input) (string, bool) {
	found := in.Keywords(tweetTechKeywords)
	tools := in.Strings("mentionedTools", "name")
	if len(found) == 0 {
		return "", false
	}
	if len(tools) > 0 {
		return "Tweets reveal tools used at work: " + strings.Join(tools, ", "), true
	}
	return "Tweets reveal specific technologies: " + strings.ToUpper(strings.Join(found, ", ")), true
}
