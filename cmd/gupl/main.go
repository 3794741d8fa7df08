package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"gupl/internal/backend"
	"gupl/internal/diag"
	"gupl/internal/frontend"
	"gupl/internal/fsm"
	"gupl/internal/ir"
	"gupl/internal/passes"
	"gupl/internal/sim"
	"gupl/internal/validate"
	"gupl/internal/vhdl"
)

// ramSourceEnv names the environment fallback for -ram-src.
const ramSourceEnv = "GUPL_RAM_SRC"

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "compile":
		return runCompile(args[1:])
	case "sim":
		return runSim(args[1:])
	case "lint":
		return runLint(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(stderr, "gupl: UPL channel compiler\n\n")
	fmt.Fprintf(stderr, "Usage:\n")
	fmt.Fprintf(stderr, "  gupl <command> [options] <file.gupl>...\n\n")
	fmt.Fprintf(stderr, "Commands:\n")
	fmt.Fprintf(stderr, "  compile    Generate VHDL (or dump the IR / state list)\n")
	fmt.Fprintf(stderr, "  sim        Run the generated state machine against stream peers\n")
	fmt.Fprintf(stderr, "  lint       Parse, validate and run analysis passes only\n")
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	emit := fs.String("emit", "vhdl", "output format (vhdl|ir|states)")
	output := fs.String("o", "", "output file path, - for stdout (single input only)")
	outDir := fs.String("out-dir", "", "output directory (default: directory of each input)")
	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	color := fs.String("color", "auto", "colour text diagnostics (auto|always|never)")
	ramSrc := fs.String("ram-src", os.Getenv(ramSourceEnv), "path to a simple_dualportram implementation copied next to outputs that use storage fields")
	strict := fs.Bool("strict", false, "treat warnings as errors")
	jobs := fs.Int("j", runtime.GOMAXPROCS(0), "number of inputs compiled in parallel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("compile command requires at least one .gupl file")
	}
	inputs := fs.Args()
	if *output != "" && len(inputs) > 1 {
		return fmt.Errorf("-o can only be used with a single input")
	}
	switch *emit {
	case "vhdl", "ir", "states":
	default:
		return fmt.Errorf("unknown emit format: %s", *emit)
	}

	result, err := prepareEntities(inputs, *diagFormat, *color, *strict)
	if err != nil {
		return err
	}

	// Text dumps and stdout VHDL are buffered per input and printed in input
	// order once every job has finished.
	buffered := *emit != "vhdl" || *output == "-"
	outputs := make([][]byte, len(result.units))
	aux := make([][]string, len(result.units))

	g := new(errgroup.Group)
	if *jobs > 0 {
		g.SetLimit(*jobs)
	}
	for i, unit := range result.units {
		i, unit := i, unit
		g.Go(func() error {
			m, err := checkAndAssemble(unit, result.reporter)
			if err != nil {
				return fmt.Errorf("%s: %w", unit.Path, err)
			}
			if buffered {
				var buf bytes.Buffer
				if err := emitText(&buf, *emit, unit.Entity, m); err != nil {
					return fmt.Errorf("%s: %w", unit.Path, err)
				}
				outputs[i] = buf.Bytes()
				return nil
			}
			res, err := backend.WriteVHDL(unit.Entity, m, unit.Path, backend.Options{
				OutputPath: *output,
				OutDir:     *outDir,
				RAMSource:  *ramSrc,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", unit.Path, err)
			}
			aux[i] = res.AuxPaths
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if buffered {
		return withOutputWriter(*output, func(w io.Writer) error {
			for _, out := range outputs {
				if _, err := w.Write(out); err != nil {
					return err
				}
			}
			return nil
		})
	}
	var written []string
	seen := make(map[string]bool)
	for _, paths := range aux {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				written = append(written, p)
			}
		}
	}
	if len(written) > 0 {
		fmt.Fprintf(stderr, "additional sources written: %s\n", strings.Join(written, ", "))
	}
	return nil
}

func emitText(w io.Writer, emit string, e *ir.Entity, m *fsm.Machine) error {
	switch emit {
	case "ir":
		ir.Dump(e, w)
	case "states":
		fsm.Dump(m, w)
	default:
		return vhdl.Emit(w, e, m)
	}
	return nil
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	fs.SetOutput(stderr)

	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	color := fs.String("color", "auto", "colour text diagnostics (auto|always|never)")
	strict := fs.Bool("strict", false, "treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("lint requires at least one .gupl file")
	}

	result, err := prepareEntities(fs.Args(), *diagFormat, *color, *strict)
	if err != nil {
		return err
	}
	var failed int
	for _, unit := range result.units {
		if err := checkEntity(unit, result.reporter); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("lint failed for %d of %d input(s)", failed, len(result.units))
	}
	return nil
}

type frontendResult struct {
	reporter *diag.Reporter
	units    []*frontend.Unit
}

func prepareEntities(sources []string, diagFormat, color string, strict bool) (*frontendResult, error) {
	reporter := diag.NewReporter(stderr, diagFormat)
	switch color {
	case "auto":
	case "always":
		reporter.SetColor(true)
	case "never":
		reporter.SetColor(false)
	default:
		return nil, fmt.Errorf("unknown color mode: %s", color)
	}
	reporter.SetStrict(strict)
	units, err := frontend.LoadEntities(frontend.LoadConfig{Sources: sources}, reporter)
	if err != nil {
		return nil, err
	}
	return &frontendResult{reporter: reporter, units: units}, nil
}

// checkEntity runs validation and the analysis passes on one input.
func checkEntity(unit *frontend.Unit, reporter *diag.Reporter) error {
	if err := validate.CheckEntity(unit.Entity, reporter); err != nil {
		return err
	}
	if err := passes.Default(reporter).Run(unit.Entity); err != nil {
		return err
	}
	return nil
}

func checkAndAssemble(unit *frontend.Unit, reporter *diag.Reporter) (*fsm.Machine, error) {
	if err := checkEntity(unit, reporter); err != nil {
		return nil, err
	}
	return fsm.Assemble(unit.Entity, fsm.Options{})
}

// feedList collects repeated -feed ch=w1,w2,... flags.
type feedList []feed

type feed struct {
	channel string
	words   []uint64
}

func (f *feedList) String() string {
	parts := make([]string, 0, len(*f))
	for _, fd := range *f {
		parts = append(parts, fd.channel)
	}
	return strings.Join(parts, ",")
}

func (f *feedList) Set(value string) error {
	name, list, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("feed must look like <channel>=<word>,<word>,...")
	}
	fd := feed{channel: name}
	if list != "" {
		for _, tok := range strings.Split(list, ",") {
			w, err := strconv.ParseUint(strings.TrimSpace(tok), 0, 64)
			if err != nil {
				return fmt.Errorf("feed %s: bad word %q", name, tok)
			}
			fd.words = append(fd.words, w)
		}
	}
	*f = append(*f, fd)
	return nil
}

func runSim(args []string) error {
	fs := flag.NewFlagSet("sim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	color := fs.String("color", "auto", "colour text diagnostics (auto|always|never)")
	cycles := fs.Int("cycles", 1000, "number of clock cycles to run after reset")
	expectPath := fs.String("expect", "", "path to file containing expected simulator output (optional)")
	var feeds feedList
	fs.Var(&feeds, "feed", "words for a receive channel, as <channel>=<w1>,<w2>,... (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("sim requires exactly one .gupl file")
	}
	if *cycles <= 0 {
		return fmt.Errorf("sim requires -cycles > 0 (got %d)", *cycles)
	}
	input := fs.Arg(0)
	if *expectPath == "" {
		if candidate := defaultSimExpectPath(input); candidate != "" {
			if _, err := os.Stat(candidate); err == nil {
				*expectPath = candidate
			}
		}
	}

	result, err := prepareEntities([]string{input}, *diagFormat, *color, false)
	if err != nil {
		return err
	}
	unit := result.units[0]
	m, err := checkAndAssemble(unit, result.reporter)
	if err != nil {
		return err
	}
	s, err := sim.New(unit.Entity, m)
	if err != nil {
		return err
	}

	var peers []sim.Peer
	for _, fd := range feeds {
		ch := unit.Entity.Channel(ir.Receive, fd.channel)
		if ch == nil {
			return fmt.Errorf("feed: %s is not a receive channel of %s", fd.channel, unit.Entity.Name)
		}
		sender, err := sim.NewStreamSender(ch, fd.words)
		if err != nil {
			return err
		}
		peers = append(peers, sender)
	}
	var collectors []*sim.Collector
	for _, ch := range unit.Entity.SendChannels {
		c, err := sim.NewCollector(ch)
		if err != nil {
			return err
		}
		collectors = append(collectors, c)
		peers = append(peers, c)
	}

	if err := s.Run(*cycles, peers...); err != nil {
		return err
	}

	var out bytes.Buffer
	for _, c := range collectors {
		digits := (c.Channel().Width + 3) / 4
		for _, w := range c.Words() {
			fmt.Fprintf(&out, "%s 0x%0*x\n", c.Channel().Name, digits, w)
		}
	}
	if _, err := stdout.Write(out.Bytes()); err != nil {
		return err
	}
	if *expectPath != "" {
		return compareSimulatorOutput(*expectPath, out.Bytes())
	}
	return nil
}

// defaultSimExpectPath returns <input>.expected, used when -expect is not
// given and the file exists.
func defaultSimExpectPath(input string) string {
	if input == "" {
		return ""
	}
	cleaned := filepath.Clean(input)
	return strings.TrimSuffix(cleaned, filepath.Ext(cleaned)) + ".expected"
}

func compareSimulatorOutput(expectPath string, got []byte) error {
	want, err := os.ReadFile(expectPath)
	if err != nil {
		return fmt.Errorf("read expect file: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(got), bytes.TrimSpace(want)) {
		return fmt.Errorf("simulator output mismatch\nexpected:\n%s\nactual:\n%s", string(want), string(got))
	}
	return nil
}

func withOutputWriter(path string, fn func(io.Writer) error) error {
	w, cleanup, err := outputWriter(path)
	if err != nil {
		return err
	}
	if cleanup == nil {
		return fn(w)
	}
	err = fn(w)
	if closeErr := cleanup(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

func outputWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
