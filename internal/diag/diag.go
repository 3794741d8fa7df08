package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/logrusorgru/aurora"
)

// Severity classifies a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Pos locates a diagnostic in a source description. A zero Line means the
// position is unknown.
type Pos struct {
	File string
	Line int
}

func (p Pos) String() string {
	switch {
	case p.File == "" && p.Line == 0:
		return ""
	case p.Line == 0:
		return p.File
	default:
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
}

// Diagnostic is a single reported message.
type Diagnostic struct {
	Severity Severity
	Pos      Pos
	Message  string
}

// Reporter collects diagnostics and writes them as they arrive, either as
// plain text or as one JSON object per line. It is safe for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	strict   bool
	au       aurora.Aurora
	errors   int
	warnings int
	diags    []Diagnostic
}

// NewReporter creates a reporter writing to w. Unknown formats fall back to
// text. Text severities are coloured when w is a terminal.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format, au: aurora.NewAurora(IsTerminal(w))}
}

// SetColor forces coloured severities in text output on or off.
func (r *Reporter) SetColor(color bool) {
	r.mu.Lock()
	r.au = aurora.NewAurora(color)
	r.mu.Unlock()
}

// IsTerminal reports whether w is a character device such as a tty.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// SetStrict makes every later warning count as an error.
func (r *Reporter) SetStrict(strict bool) {
	r.mu.Lock()
	r.strict = strict
	r.mu.Unlock()
}

// Strict reports whether warnings are promoted to errors.
func (r *Reporter) Strict() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strict
}

// Errorf reports an error without a source position.
func (r *Reporter) Errorf(format string, args ...interface{}) {
	r.Report(Diagnostic{Severity: Error, Message: fmt.Sprintf(format, args...)})
}

// ErrorAt reports an error at pos.
func (r *Reporter) ErrorAt(pos Pos, format string, args ...interface{}) {
	r.Report(Diagnostic{Severity: Error, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Warnf reports a warning without a source position.
func (r *Reporter) Warnf(format string, args ...interface{}) {
	r.Report(Diagnostic{Severity: Warning, Message: fmt.Sprintf(format, args...)})
}

// WarnAt reports a warning at pos.
func (r *Reporter) WarnAt(pos Pos, format string, args ...interface{}) {
	r.Report(Diagnostic{Severity: Warning, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Report records d and writes it out.
func (r *Reporter) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Severity == Warning && r.strict {
		d.Severity = Error
	}
	if d.Severity == Error {
		r.errors++
	} else {
		r.warnings++
	}
	r.diags = append(r.diags, d)
	r.write(d)
}

func (r *Reporter) write(d Diagnostic) {
	if r.format == "json" {
		rec := struct {
			Severity string `json:"severity"`
			File     string `json:"file,omitempty"`
			Line     int    `json:"line,omitempty"`
			Message  string `json:"message"`
		}{d.Severity.String(), d.Pos.File, d.Pos.Line, d.Message}
		data, err := json.Marshal(rec)
		if err != nil {
			return
		}
		fmt.Fprintln(r.w, string(data))
		return
	}
	severity := r.au.Red(d.Severity)
	if d.Severity == Warning {
		severity = r.au.Yellow(d.Severity)
	}
	if pos := d.Pos.String(); pos != "" {
		fmt.Fprintf(r.w, "%s: %s: %s\n", pos, severity, d.Message)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", severity, d.Message)
}

// HasErrors reports whether any error was recorded.
func (r *Reporter) HasErrors() bool {
	return r.ErrorCount() > 0
}

// ErrorCount returns the number of errors recorded so far.
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// WarningCount returns the number of warnings recorded so far.
func (r *Reporter) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warnings
}

// Diagnostics returns a copy of everything reported.
func (r *Reporter) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}
