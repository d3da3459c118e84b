package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScanning  Status = "scanning"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrInvalidTransition is returned when a status update names a scan
	// whose current status may not move to the requested one.
	ErrInvalidTransition = errors.New("invalid scan status transition")
	// ErrScanFinalized is returned when findings are appended to a scan that
	// already reached a terminal status.
	ErrScanFinalized = errors.New("scan already finalized")
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AllowedFrom lists the statuses a scan may hold immediately before moving to s.
func (s Status) AllowedFrom() []Status {
	switch s {
	case StatusScanning:
		return []Status{StatusPending}
	case StatusCompleted:
		return []Status{StatusPending, StatusScanning}
	case StatusFailed:
		return []Status{StatusPending, StatusScanning}
	default:
		return nil
	}
}

// CanTransition reports whether from -> to is an edge of the scan lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range to.AllowedFrom() {
		if s == from {
			return true
		}
	}
	return false
}

// ScanRequest is the subject of one assessment. It is never modified after
// submission.
type ScanRequest struct {
	FullName         string `json:"full_name"`
	Company          string `json:"company,omitempty"`
	Location         string `json:"location,omitempty"`
	UsernamePatterns string `json:"username_patterns,omitempty"`
}

// Validate trims the request in place and rejects it when the subject name is missing.
func (r *ScanRequest) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Company = strings.TrimSpace(r.Company)
	r.Location = strings.TrimSpace(r.Location)
	r.UsernamePatterns = strings.TrimSpace(r.UsernamePatterns)
	if r.FullName == "" {
		return &ValidationError{Field: "full_name", Msg: "full name is required"}
	}
	if len(r.FullName) > 200 {
		return &ValidationError{Field: "full_name", Msg: "full name is too long"}
	}
	return nil
}

// Usernames splits the comma separated username patterns, dropping blanks.
func (r ScanRequest) Usernames() []string {
	var out []string
	for _, u := range strings.Split(r.UsernamePatterns, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

type ScanRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	ScanRequest
	Status      Status     `json:"status"`
	Score       *int       `json:"score"`
	LiveURL     *string    `json:"live_url"`
	SessionID   *string    `json:"session_id"`
	ErrorMsg    *string    `json:"error_msg,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// StatusUpdate carries the fields an orchestrator run writes when it moves a
// scan along its lifecycle. Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	Status      Status
	Score       *int
	Summary     *Summary
	ErrorMsg    *string
	CompletedAt *time.Time
}

// StaleScan is a scan failed by stale recovery, with the session it had
// recorded ("" when none).
type StaleScan struct {
	ID        string
	SessionID string
}

type ProgressEvent struct {
	Stage  string    `json:"stage"`
	Detail string    `json:"detail"`
	Pct    int       `json:"pct"`
	TS     time.Time `json:"ts"`
}

type Summary struct {
	Total  int `json:"total_findings"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Info   int `json:"info"`
}

// ValidationError rejects caller input before any scanning work begins.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}
