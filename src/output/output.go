// Package output renders run reports and audit findings for the
// terminal, with GitLab CI niceties when running in a pipeline.
package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/conveyorbuild/conveyor/src/audit"
	"github.com/conveyorbuild/conveyor/src/graph"
)

// Colors for terminal output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

// Printer formats and writes run results.
type Printer struct {
	Writer io.Writer
	Color  bool
}

// NewPrinter creates a printer writing to stdout with color
// auto-detection.
func NewPrinter() *Printer {
	return &Printer{
		Writer: os.Stdout,
		Color:  UseColor(),
	}
}

// PrintReport renders the per-task summary and failure details.
// Returns true if every task succeeded or was skipped-free.
func (p *Printer) PrintReport(report *graph.Report) bool {
	var total time.Duration
	for _, t := range report.Tasks {
		total += t.Duration
	}

	sec := NewSection(p.Writer, "Tasks", total, p.Color)
	for _, t := range report.Tasks {
		detail := formatElapsed(t.Duration)
		if t.Cached {
			detail = Dimmed("up to date", p.Color)
		}
		sec.Row("%-24s %s  %s", t.ID, p.statusIcon(t.Status), detail)
	}

	counts := report.Counts()
	sec.Separator()
	sec.Row("%d succeeded, %d failed, %d skipped, %d cancelled",
		counts[graph.StatusSucceeded], counts[graph.StatusFailed],
		counts[graph.StatusSkipped], counts[graph.StatusCancelled])
	sec.Close()

	for _, t := range report.Tasks {
		if t.Status != graph.StatusFailed {
			continue
		}
		sec := NewSection(p.Writer, "Failed: "+t.ID, t.Duration, p.Color)
		if t.Err != nil {
			sec.Row("%s", p.colorize(t.Err.Error(), colorRed))
		}
		if t.Output != "" {
			sec.Separator()
			for _, line := range splitLines(t.Output) {
				sec.Row("%s", line)
			}
		}
		sec.Close()
	}

	if report.Fatal != nil {
		fmt.Fprintf(p.Writer, "\n    %s %s\n",
			p.colorize("fatal:", colorBold+colorRed), report.Fatal)
	}

	return report.OK()
}

// PrintFindings renders credential audit findings. Returns true if
// any finding exists.
func (p *Printer) PrintFindings(findings []audit.Finding) bool {
	if len(findings) == 0 {
		return false
	}

	sec := NewSection(p.Writer, "Credential audit", 0, p.Color)
	sec.Row("%s", p.colorize("credentials left on disk after the run:", colorRed))
	sec.Row("")
	for _, f := range findings {
		sec.Row("%s:%d", p.colorize(f.File, colorBold), f.Line)
		sec.Row("  %s (%s)", f.Description, p.colorize(f.RuleID, colorCyan))
	}
	sec.Close()
	return true
}

func (p *Printer) statusIcon(s graph.Status) string {
	switch s {
	case graph.StatusSucceeded:
		return StatusIcon("success", p.Color)
	case graph.StatusFailed:
		return StatusIcon("failed", p.Color)
	default:
		return StatusIcon("skipped", p.Color)
	}
}

func (p *Printer) colorize(text, color string) string {
	if !p.Color {
		return text
	}
	return color + text + colorReset
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}
