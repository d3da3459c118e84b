package worker

import "fmt"

// OrchestratorError is a failure outside any single platform scanner. It is
// fatal to the scan, which ends up failed without a score.
type OrchestratorError struct {
	ScanID string
	Stage  string
	Err    error
}

func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("scan %s: %s: %v", e.ScanID, e.Stage, e.Err)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }
