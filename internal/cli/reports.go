package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/media"
	"github.com/trafficai/violation-reporter/internal/report"
)

type submitResult struct {
	Report    *report.Report           `json:"report"`
	Thumbnail *media.Frame             `json:"thumbnail,omitempty"`
	Stations  []analysis.PoliceStation `json:"stations,omitempty"`
}

func (a *app) submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <file>",
		Short: "Analyze a photo or video and record the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireAnalysis(); err != nil {
				return err
			}
			name, data, err := readMedia(args[0])
			if err != nil {
				return err
			}
			deps, err := a.dependencies(cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			out, err := deps.Reporter.Submit(cmd.Context(), report.SubmitInput{
				Data:     data,
				Name:     name,
				UserID:   a.user,
				Username: a.user,
			})
			if err != nil {
				return err
			}

			p := a.printer(cmd)
			if p.asJSON {
				return p.writeJSON(submitResult{Report: out.Report, Thumbnail: out.Thumbnail, Stations: out.Stations})
			}
			p.report(out.Report)
			if out.Report.IsViolation() && len(out.Stations) > 0 {
				p.good.Fprintln(p.w, "Report logged. Notifying nearby authorities.")
			}
			p.stations(out.Stations)
			return nil
		},
	}
}

func (a *app) reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse and manage recorded reports",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List reports, newest first (only yours with --user)",
			Args:  cobra.NoArgs,
			RunE:  a.listReports,
		},
		&cobra.Command{
			Use:   "show <report-id>",
			Short: "Show one report",
			Args:  cobra.ExactArgs(1),
			RunE:  a.showReport,
		},
		&cobra.Command{
			Use:   "delete <report-id>",
			Short: "Delete a report",
			Args:  cobra.ExactArgs(1),
			RunE:  a.deleteReport,
		},
	)
	return cmd
}

func (a *app) listReports(cmd *cobra.Command, _ []string) error {
	deps, err := a.dependencies(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	reports, err := deps.Reporter.List(cmd.Context(), a.user)
	if err != nil {
		return err
	}

	p := a.printer(cmd)
	if p.asJSON {
		return p.writeJSON(reports)
	}
	if len(reports) == 0 {
		fmt.Fprintln(p.w, "No reports found")
		return nil
	}
	for _, r := range reports {
		status := p.good.Sprint("ok       ")
		if r.IsViolation() {
			status = p.bad.Sprint("violation")
		}
		fmt.Fprintf(p.w, "%s  %s  %-5s  %s  %s\n",
			r.ID, status, r.MediaType, r.CreatedAt.Local().Format("2006-01-02 15:04"), p.location(r.Location))
	}
	return nil
}

func (a *app) showReport(cmd *cobra.Command, args []string) error {
	deps, err := a.dependencies(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	r, err := deps.Reporter.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	p := a.printer(cmd)
	if p.asJSON {
		return p.writeJSON(r)
	}
	p.report(r)
	return nil
}

func (a *app) deleteReport(cmd *cobra.Command, args []string) error {
	deps, err := a.dependencies(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.Reporter.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}

	p := a.printer(cmd)
	if p.asJSON {
		return p.writeJSON(map[string]string{"deleted": args[0]})
	}
	p.good.Fprintf(p.w, "Deleted %s\n", args[0])
	return nil
}
