package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/opsec-worker/internal/model"
	s3c "github.com/yourorg/opsec-worker/internal/s3"
	"github.com/yourorg/opsec-worker/internal/scoring"
)

var scanReq model.ScanRequest

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Create a scan and run it to completion in this process",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := scanReq.Validate(); err != nil {
			return err
		}
		r, err := newRunner()
		if err != nil {
			return err
		}
		scan, err := store.CreateScan(cmd.Context(), owner, scanReq)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "scan %s started, this can take several minutes\n", scan.ID)
		if err := r.Run(cmd.Context(), scan.ID); err != nil {
			return err
		}
		return showScan(cmd, scan.ID)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Show a scan with its findings and recommendations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showScan(cmd, args[0])
	},
}

func showScan(cmd *cobra.Command, id string) error {
	if showArchived {
		return showArchivedReport(cmd, id)
	}
	scan, err := store.GetScan(cmd.Context(), id)
	if err != nil {
		return err
	}
	findings, err := store.ListFindings(cmd.Context(), id)
	if err != nil {
		return err
	}
	report := scoring.NewReport(*scan, scoring.ByImpact(findings))
	if showEvents {
		if report.Events, err = store.ListEvents(cmd.Context(), id); err != nil {
			return err
		}
	}
	return render(cmd.OutOrStdout(), output, report, func() error {
		return writeReport(cmd.OutOrStdout(), report)
	})
}

var (
	listLimit    int
	showEvents   bool
	showArchived bool
)

// reportReader fetches an archived report. *s3.Client implements it.
type reportReader interface {
	GetJSON(ctx context.Context, bucket, key string, v any) error
}

func showArchivedReport(cmd *cobra.Command, id string) error {
	if !cfg.ArchiveEnabled() {
		return errors.New("report archive is not configured (S3_ENDPOINT, REPORTS_BUCKET)")
	}
	client, err := s3c.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL)
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}
	report, err := loadArchived(cmd.Context(), client, cfg.ReportsBucket, id)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, report, func() error {
		return writeReport(cmd.OutOrStdout(), report)
	})
}

// loadArchived reads the report stored when scan id completed. Findings are
// put in display order as they are for a live report.
func loadArchived(ctx context.Context, r reportReader, bucket, id string) (model.Report, error) {
	var report model.Report
	if err := r.GetJSON(ctx, bucket, s3c.ReportKey(id), &report); err != nil {
		return model.Report{}, fmt.Errorf("load archived report %s: %w", id, err)
	}
	report.Findings = scoring.ByImpact(report.Findings)
	return report, nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		scans, err := store.ListScans(cmd.Context(), owner, listLimit)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), output, scans, func() error {
			return writeScanTable(cmd.OutOrStdout(), scans)
		})
	},
}

var forceCompleteCmd = &cobra.Command{
	Use:   "force-complete <scan-id>",
	Short: "Finalize a stuck scan on the findings collected so far",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner()
		if err != nil {
			return err
		}
		scan, err := r.ForceComplete(cmd.Context(), args[0])
		if err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				return fmt.Errorf("cannot force complete %s: %w", args[0], err)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scan %s %s with score %s\n",
			scan.ID, formatStatus(scan.Status), formatScore(scan.Score))
		return nil
	},
}

var staleAfter time.Duration

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Fail scans left scanning by a worker that is gone",
	RunE: func(cmd *cobra.Command, args []string) error {
		if staleAfter > 0 {
			cfg.StaleScanAfter = staleAfter
		}
		r, err := newRunner()
		if err != nil {
			return err
		}
		ids := r.RecoverStaleScans(cmd.Context())
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no stale scans")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, formatStatus(model.StatusFailed))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate scan statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Stats(cmd.Context(), owner)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), output, st, func() error {
			return writeStats(cmd.OutOrStdout(), st)
		})
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanReq.FullName, "name", "", "full name of the person to assess (required)")
	f.StringVar(&scanReq.Company, "company", "", "current employer")
	f.StringVar(&scanReq.Location, "location", "", "city or region")
	f.StringVar(&scanReq.UsernamePatterns, "usernames", "", "comma separated known usernames")
	_ = scanCmd.MarkFlagRequired("name")

	showCmd.Flags().BoolVar(&showEvents, "events", false, "include the progress event log")
	showCmd.Flags().BoolVar(&showArchived, "archived", false, "read the report archived in object storage instead of the database")
	scanCmd.Flags().BoolVar(&showEvents, "events", false, "include the progress event log")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum scans to list")
	recoverCmd.Flags().DurationVar(&staleAfter, "after", 0, "idle time after which a scanning scan is stale (default STALE_SCAN_AFTER)")
}
