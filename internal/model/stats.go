package model

// Stats aggregates an owner's scan history. Averages are nil until at least
// one scan has completed.
type Stats struct {
	TotalScans     int            `json:"total_scans"`
	CompletedScans int            `json:"completed_scans"`
	AverageScore   *float64       `json:"average_score"`
	LatestScore    *int           `json:"latest_score"`
	GlobalAverage  *float64       `json:"global_average_score"`
	ByType         map[string]int `json:"findings_by_type"`
	ByPlatform     map[string]int `json:"findings_by_platform"`
	BySeverity     map[string]int `json:"findings_by_severity"`
}
