package scoring

import (
	"math/rand"
	"testing"

	"github.com/yourorg/opsec-worker/internal/model"
)

func f(t model.FindingType, points int) model.Finding {
	return model.Finding{Type: t, PointsDeducted: points}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		findings []model.Finding
		want     int
	}{
		{"empty", nil, 100},
		{"scan errors only", []model.Finding{f(model.FindingScanError, 0), f(model.FindingScanError, 0)}, 100},
		{"mixed", []model.Finding{
			f(model.FindingTechStackExposure, 15),
			f(model.FindingCompanyEmailExposed, 20),
			f(model.FindingProfileFound, 5),
		}, 60},
		{"exactly zero", []model.Finding{f(model.FindingPublicProfile, 50), f(model.FindingPublicProfile, 50)}, 0},
		{"clamped", []model.Finding{
			f(model.FindingTechStackExposure, 25),
			f(model.FindingTechStackExposure, 25),
			f(model.FindingTechStackExposure, 25),
			f(model.FindingTechStackExposure, 25),
			f(model.FindingTechStackExposure, 25),
		}, 0},
		{"negative deductions ignored", []model.Finding{f(model.FindingProfileFound, -30), f(model.FindingProfileFound, 5)}, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.findings); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreBoundedAndOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := rng.Intn(12)
		fs := make([]model.Finding, n)
		sum := 0
		for j := range fs {
			p := rng.Intn(30)
			fs[j] = f(model.FindingWorkTweets, p)
			sum += p
		}
		want := max(0, 100-sum)
		got := Score(fs)
		if got != want {
			t.Fatalf("Score = %d, want %d (sum %d)", got, want, sum)
		}
		if got < 0 || got > 100 {
			t.Fatalf("Score %d out of range", got)
		}
		rng.Shuffle(len(fs), func(a, b int) { fs[a], fs[b] = fs[b], fs[a] })
		if again := Score(fs); again != got {
			t.Fatalf("permutation changed score: %d vs %d", again, got)
		}
	}
}

func TestRecommendScenario(t *testing.T) {
	recs := Recommend([]model.Finding{
		f(model.FindingTechStackExposure, 15),
		f(model.FindingCompanyEmailExposed, 20),
		f(model.FindingProfileFound, 5),
	})
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2: %+v", len(recs), recs)
	}
	if recs[0].Title != "Remove tech stack details from LinkedIn" {
		t.Errorf("recs[0] = %q", recs[0].Title)
	}
	if recs[1].Title != "Use personal email for GitHub commits" {
		t.Errorf("recs[1] = %q", recs[1].Title)
	}
}

func TestRecommendEmpty(t *testing.T) {
	recs := Recommend(nil)
	if recs == nil || len(recs) != 0 {
		t.Errorf("Recommend(nil) = %#v, want empty non-nil slice", recs)
	}
}

func TestRecommendDeduplicates(t *testing.T) {
	recs := Recommend([]model.Finding{
		{Platform: model.PlatformGitHub, Type: model.FindingCompanyInBio},
		{Platform: model.PlatformTwitter, Type: model.FindingCompanyInBio},
		{Platform: model.PlatformTwitter, Type: model.FindingWorkTweets},
		{Platform: model.PlatformLinkedIn, Type: model.FindingScanError},
		{Platform: model.PlatformTwitter, Type: model.FindingTechStackTweets},
		{Platform: model.PlatformLinkedIn, Type: model.FindingActivePoster},
	})
	seen := map[string]bool{}
	for _, r := range recs {
		if seen[r.Title] {
			t.Errorf("duplicate title %q", r.Title)
		}
		seen[r.Title] = true
	}
	if len(recs) != 2 {
		t.Errorf("got %d recommendations, want 2: %+v", len(recs), recs)
	}
	if recs[0].Title != "Consider removing company from bio" {
		t.Errorf("first-seen order not preserved: %q", recs[0].Title)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]model.Finding{
		{Severity: model.SeverityHigh},
		{Severity: model.SeverityHigh},
		{Severity: model.SeverityMedium},
		{Severity: model.SeverityLow},
		{Severity: model.SeverityInfo},
	})
	want := model.Summary{Total: 5, High: 2, Medium: 1, Low: 1, Info: 1}
	if s != want {
		t.Errorf("Summarize = %+v, want %+v", s, want)
	}
}

func TestByImpact(t *testing.T) {
	in := []model.Finding{
		{Type: model.FindingProfileFound, PointsDeducted: 5},
		{Type: model.FindingCompanyEmailExposed, PointsDeducted: 20},
		{Type: model.FindingScanError, PointsDeducted: 0},
		{Type: model.FindingTechStackExposure, PointsDeducted: 5},
	}
	got := ByImpact(in)
	want := []model.FindingType{
		model.FindingCompanyEmailExposed,
		model.FindingProfileFound,
		model.FindingTechStackExposure,
		model.FindingScanError,
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if in[0].Type != model.FindingProfileFound {
		t.Error("input must not be reordered")
	}
}

func TestNewReportNeverNil(t *testing.T) {
	r := NewReport(model.ScanRecord{ID: "s"}, nil)
	if r.Findings == nil || r.Recommendations == nil {
		t.Errorf("report slices must be non-nil: %+v", r)
	}
}
