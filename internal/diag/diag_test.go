package diag

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/logrusorgru/aurora"
)

func TestReporterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "text")
	r.ErrorAt(Pos{File: "top.gupl", Line: 7}, "bad field %q", "x")
	r.Warnf("two storage fields")
	want := "top.gupl:7: error: bad field \"x\"\nwarning: two storage fields\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("text output mismatch (-want +got):\n%s", diff)
	}
	if !r.HasErrors() || r.ErrorCount() != 1 || r.WarningCount() != 1 {
		t.Fatalf("unexpected counts: errors=%d warnings=%d", r.ErrorCount(), r.WarningCount())
	}
}

func TestReporterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "json")
	r.WarnAt(Pos{File: "a.gupl", Line: 3}, "wide stage")
	want := `{"severity":"warning","file":"a.gupl","line":3,"message":"wide stage"}` + "\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("json output mismatch (-want +got):\n%s", diff)
	}
	if r.HasErrors() {
		t.Fatalf("warning must not count as error")
	}
}

func TestReporterStrictPromotesWarnings(t *testing.T) {
	r := NewReporter(nil, "text")
	r.SetStrict(true)
	r.Warnf("promoted")
	if !r.HasErrors() {
		t.Fatalf("expected strict warning to count as error")
	}
	got := r.Diagnostics()
	if len(got) != 1 || got[0].Severity != Error {
		t.Fatalf("expected one error diagnostic, got %+v", got)
	}
}

func TestReporterColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "text")
	r.SetColor(true)
	r.ErrorAt(Pos{File: "top.gupl", Line: 2}, "boom")
	r.Warnf("careful")
	want := fmt.Sprintf("top.gupl:2: %s: boom\n%s: careful\n", aurora.Red("error"), aurora.Yellow("warning"))
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("coloured output mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Contains(buf.Bytes(), []byte("\x1b[")) {
		t.Fatalf("expected escape sequences in %q", buf.String())
	}

	buf.Reset()
	r.SetColor(false)
	r.Warnf("careful")
	if diff := cmp.Diff("warning: careful\n", buf.String()); diff != "" {
		t.Fatalf("plain output mismatch (-want +got):\n%s", diff)
	}
}

func TestReporterJSONIgnoresColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "json")
	r.SetColor(true)
	r.ErrorAt(Pos{File: "a.gupl", Line: 1}, "bad")
	want := `{"severity":"error","file":"a.gupl","line":1,"message":"bad"}` + "\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("json output mismatch (-want +got):\n%s", diff)
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatalf("a buffer is not a terminal")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "diag.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Fatalf("a regular file is not a terminal")
	}
}
