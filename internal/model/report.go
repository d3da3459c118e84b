package model

// Report is the read model of one scan: the record, its findings and the
// advice derived from them.
type Report struct {
	Scan            ScanRecord       `json:"scan"`
	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations"`
	Events          []ProgressEvent  `json:"events,omitempty"`
}
