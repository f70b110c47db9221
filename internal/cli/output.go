package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/climateseal/carbonmatch/internal/domain/batch"
)

// Printer writes status lines. Success and info go to out, failures to errOut.
// It is safe for concurrent use, so ingest progress callbacks can share one.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	green  func(a ...any) string
	yellow func(a ...any) string
	red    func(a ...any) string
	cyan   func(a ...any) string
}

// NewPrinter creates a printer. Colors follow fatih/color's terminal detection.
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{
		out:    out,
		errOut: errOut,
		green:  color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow: color.New(color.FgYellow, color.Bold).SprintFunc(),
		red:    color.New(color.FgRed, color.Bold).SprintFunc(),
		cyan:   color.New(color.FgCyan, color.Bold).SprintFunc(),
	}
}

func (p *Printer) line(w io.Writer, icon, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(w, "  %s  %s\n", icon, msg)
}

// OK prints a success line.
func (p *Printer) OK(format string, args ...any) { p.line(p.out, p.green("✓"), fmt.Sprintf(format, args...)) }

// Info prints a neutral line.
func (p *Printer) Info(format string, args ...any) { p.line(p.out, p.cyan("~"), fmt.Sprintf(format, args...)) }

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.line(p.out, p.yellow("⚠"), fmt.Sprintf(format, args...))
}

// Err prints a failure line to errOut.
func (p *Printer) Err(format string, args ...any) {
	p.line(p.errOut, p.red("✗"), fmt.Sprintf(format, args...))
}

// Chunk prints one ingestion chunk outcome, with up to three rejected documents.
func (p *Printer) Chunk(cr batch.ChunkResult) {
	switch cr.Status() {
	case batch.StatusOK:
		p.OK("chunk %d: %d/%d indexed", cr.Index(), cr.Indexed(), cr.Attempted())
	case batch.StatusPartial:
		p.Warn("chunk %d: %d/%d indexed, %d rejected", cr.Index(), cr.Indexed(), cr.Attempted(), len(cr.DocErrors()))
		for i, de := range cr.DocErrors() {
			if i == 3 {
				p.Warn("    ... %d more", len(cr.DocErrors())-i)
				break
			}
			p.Warn("    %s: %s: %s", de.ID, de.Type, de.Reason)
		}
	default:
		p.Err("chunk %d: %d records failed: %v", cr.Index(), cr.Attempted(), cr.Err())
	}
}

// Summary prints run totals and, in chunk order, the indexes of chunks that failed.
func (p *Printer) Summary(r *batch.Report) {
	var failed []int
	for _, cr := range r.Chunks {
		if cr.Status() == batch.StatusError {
			failed = append(failed, cr.Index())
		}
	}
	totals := fmt.Sprintf("%d chunks: %d succeeded, %d failed; %d documents indexed, %d rejected",
		len(r.Chunks), r.Succeeded(), r.Failed(), r.Indexed(), r.DocFailures())
	switch {
	case r.Clean():
		p.OK("%s", totals)
	case len(failed) > 0:
		p.Err("%s", totals)
		p.Err("failed chunks: %v", failed)
	default:
		p.Warn("%s", totals)
	}
}
