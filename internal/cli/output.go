package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/report"
)

// printer renders command results as coloured text or JSON.
type printer struct {
	w      io.Writer
	asJSON bool

	title *color.Color
	label *color.Color
	good  *color.Color
	bad   *color.Color
	warn  *color.Color
	dim   *color.Color
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{
		w:      w,
		asJSON: asJSON,
		title:  color.New(color.FgWhite, color.Bold),
		label:  color.New(color.FgCyan),
		good:   color.New(color.FgGreen),
		bad:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow),
		dim:    color.New(color.Faint),
	}
}

func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) field(name string, format string, args ...any) {
	p.label.Fprintf(p.w, "  %-12s ", name)
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) location(c *geo.Coordinate) string {
	if c == nil {
		return p.dim.Sprint("unknown")
	}
	return c.String()
}

func (p *printer) report(r *report.Report) {
	if r.IsViolation() {
		p.bad.Fprintf(p.w, "%s  VIOLATION\n", r.ID)
	} else {
		p.good.Fprintf(p.w, "%s  no violation\n", r.ID)
	}
	p.field("Media", "%s %s", r.MediaType, p.dim.Sprint(r.MIMEType))
	if r.MediaName != "" {
		p.field("File", "%s", r.MediaName)
	}
	p.field("Fingerprint", "%s", r.MediaHash)
	p.field("Location", "%s", p.location(r.Location))
	if r.CapturedAt != nil {
		p.field("Captured", "%s", r.CapturedAt.Format("2006-01-02 15:04:05"))
	}
	p.field("Reported", "%s", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if r.Username != "" {
		p.field("By", "%s", r.Username)
	}
	if r.MediaURL != "" {
		p.field("Archived", "%s", r.MediaURL)
	}
	if r.FrameCount > 0 {
		p.field("Frames", "%d", r.FrameCount)
	}
	for _, v := range r.Verdict.Reported() {
		p.violation(v)
	}
	if s := strings.TrimSpace(r.Verdict.SummaryReasoning); s != "" {
		p.field("Summary", "%s", s)
	}
	env := r.Verdict.Environment
	if env.TimeOfDay != "" {
		p.field("Scene", "%s, %s, %s", env.TimeOfDay, env.Weather, env.RoadType)
	}
}

func (p *printer) violation(v analysis.Violation) {
	sev := p.warn
	if v.Severity == analysis.SeverityHigh {
		sev = p.bad
	}
	fmt.Fprintf(p.w, "  - %s %s %.0f%%\n", v.ViolationType, sev.Sprintf("[%s]", v.Severity), v.ConfidenceScore*100)
	vd := v.VehicleDetails
	fmt.Fprintf(p.w, "    %s %s %s %s\n", vd.Color, vd.Type, p.dim.Sprint("plate"), vd.LicensePlate)
	if v.Reasoning != "" {
		fmt.Fprintf(p.w, "    %s\n", p.dim.Sprint(v.Reasoning))
	}
}

func (p *printer) stations(stations []analysis.PoliceStation) {
	if len(stations) == 0 {
		return
	}
	p.title.Fprintln(p.w, "Nearby police stations")
	for _, s := range stations {
		fmt.Fprintf(p.w, "  %-40s %6.2f km\n", s.Name, s.DistanceKM)
	}
}
