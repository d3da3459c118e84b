package extract

import (
	"github.com/yourorg/opsec-worker/internal/model"
)

var Facebook = &Extractor{
	Platform: model.PlatformFacebook,
	Predicates: []Predicate{
		{
			Type:        model.FindingPublicProfile,
			Severity:    model.SeverityMedium,
			Points:      15,
			Description: "Facebook profile is publicly accessible without login",
			Match:       facebookPublic,
		},
	},
}

func facebookPublic(in *Input) (string, bool) {
	if v, ok := in.Bool("hasPublicProfile"); ok {
		if !v {
			return "", false
		}
		if info := in.String("visibleInfo"); info != "" {
			return "Facebook profile is publicly accessible without login: " + truncate(info, 120), true
		}
		return "", true
	}
	return "", in.Says("true") || in.Says("public")
}
