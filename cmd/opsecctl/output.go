package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/opsec-worker/internal/model"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

// render writes v as json or yaml, or calls table for the default format.
func render(w io.Writer, format string, v any, table func() error) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		return table()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func formatStatus(s model.Status) string {
	switch s {
	case model.StatusCompleted:
		return colorSuccess(string(s))
	case model.StatusFailed:
		return colorError(string(s))
	case model.StatusScanning:
		return colorInfo(string(s))
	default:
		return string(s)
	}
}

func formatSeverity(s model.Severity) string {
	switch s {
	case model.SeverityHigh:
		return colorError(string(s))
	case model.SeverityMedium:
		return colorWarn(string(s))
	case model.SeverityLow:
		return colorInfo(string(s))
	default:
		return string(s)
	}
}

// formatScore keeps a failed scan's missing score distinct from a score of 0.
func formatScore(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score) + "/100"
}

func writeScanTable(w io.Writer, scans []model.ScanRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSCORE\tCREATED")
	for _, s := range scans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.FullName, formatStatus(s.Status), formatScore(s.Score), s.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func writeReport(w io.Writer, r model.Report) error {
	s := r.Scan
	fmt.Fprintf(w, "Scan %s: %s\n", s.ID, s.FullName)
	fmt.Fprintf(w, "Status: %s  Score: %s\n", formatStatus(s.Status), formatScore(s.Score))
	if s.ErrorMsg != nil {
		fmt.Fprintf(w, "Error: %s\n", *s.ErrorMsg)
	}
	if s.LiveURL != nil {
		fmt.Fprintf(w, "Live session: %s\n", *s.LiveURL)
	}

	fmt.Fprintf(w, "\nFindings (%d)\n", len(r.Findings))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range r.Findings {
		fmt.Fprintf(tw, "  %s\t%s\t-%d\t%s\n", f.Platform, formatSeverity(f.Severity), f.PointsDeducted, f.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  [%s] %s\n      %s\n", formatSeverity(rec.Severity), rec.Title, rec.Description)
		}
	}

	if len(r.Events) > 0 {
		fmt.Fprintln(w, "\nEvents")
		for _, ev := range r.Events {
			fmt.Fprintf(w, "  %s %3d%% %-18s %s\n", ev.TS.Format("15:04:05"), ev.Pct, ev.Stage, ev.Detail)
		}
	}
	return nil
}

func writeStats(w io.Writer, st *model.Stats) error {
	avg := "-"
	if st.AverageScore != nil {
		avg = fmt.Sprintf("%.1f", *st.AverageScore)
	}
	fmt.Fprintf(w, "Scans: %d (%d completed)  Average score: %s  Latest: %s\n",
		st.TotalScans, st.CompletedScans, avg, formatScore(st.LatestScore))
	for _, group := range []struct {
		title string
		m     map[string]int
	}{
		{"By severity", st.BySeverity},
		{"By platform", st.ByPlatform},
		{"By type", st.ByType},
	} {
		fmt.Fprintf(w, "%s:\n", group.title)
		keys := make([]string, 0, len(group.m))
		for k := range group.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-28s %d\n", k, group.m[k])
		}
	}
	return nil
}
