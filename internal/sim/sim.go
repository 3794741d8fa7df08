// Package sim executes an assembled state machine cycle by cycle.
//
// Every register read during a cycle sees the value from before the clock
// edge; assignments are collected and committed together at the edge, and
// registers that are not assigned keep their value. Each storage buffer is
// backed by a dual-port memory that samples its address, data and write
// enable registers at the same edge, so read data appears one cycle after
// the read address is presented.
package sim

import (
	"fmt"
	"strconv"

	"gupl/internal/fsm"
	"gupl/internal/ir"
	"gupl/internal/rtl"
)

// MaxWidth is the widest register the simulator models.
const MaxWidth = 64

// Simulator holds the register state of one entity.
type Simulator struct {
	machine *fsm.Machine
	states  map[string]*fsm.State
	widths  map[string]int
	values  map[string]uint64
	rams    []*ram
	inputs  map[string]bool

	state string
	next  string
	cycle int

	// per-cycle scratch
	pending     map[string]uint64
	pendingNext string
	target      string
}

type ram struct {
	buf *ir.StorageBuffer
	mem map[uint64]uint64
}

// New prepares a simulator for the entity's machine. All channel ports,
// field registers and storage counters must fit in MaxWidth bits.
func New(e *ir.Entity, m *fsm.Machine) (*Simulator, error) {
	if e == nil || m == nil {
		return nil, fmt.Errorf("sim: entity and machine are required")
	}
	s := &Simulator{
		machine: m,
		states:  make(map[string]*fsm.State, len(m.States)),
		widths:  make(map[string]int),
		values:  make(map[string]uint64),
		inputs:  make(map[string]bool),
		state:   fsm.IdleState,
		next:    fsm.IdleState,
	}
	for _, st := range m.States {
		s.states[st.Name] = st
	}
	for _, ch := range e.Channels() {
		for _, port := range ch.Ports() {
			if err := s.declare(port.Name, port.Width); err != nil {
				return nil, err
			}
			if port.Direction == ir.Input {
				s.inputs[port.Name] = true
			}
		}
	}
	for _, f := range e.UniqueFields() {
		for _, sig := range ir.FieldSignals(f) {
			if err := s.declare(sig.Name, sig.Width); err != nil {
				return nil, err
			}
		}
	}
	for _, buf := range e.StorageBuffers() {
		s.rams = append(s.rams, &ram{buf: buf, mem: make(map[uint64]uint64)})
	}
	// User declarations are only touched by opaque text; keep the ones that
	// fit so callers can still drive and inspect them.
	for _, p := range e.Ports {
		if p.Width <= MaxWidth {
			s.widths[p.Name] = max(p.Width, 1)
			if p.Direction == ir.Input {
				s.inputs[p.Name] = true
			}
		}
	}
	for _, sig := range e.Signals {
		if sig.Width <= MaxWidth {
			s.widths[sig.Name] = max(sig.Width, 1)
		}
	}
	return s, nil
}

func (s *Simulator) declare(name string, width int) error {
	if width == 0 {
		width = 1
	}
	if width > MaxWidth {
		return fmt.Errorf("sim: %s is %d bits wide, at most %d are supported", name, width, MaxWidth)
	}
	s.widths[name] = width
	return nil
}

// State is the current state.
func (s *Simulator) State() string { return s.state }

// Next is the continuation register.
func (s *Simulator) Next() string { return s.next }

// Cycle counts the clock edges since the simulator was created.
func (s *Simulator) Cycle() int { return s.cycle }

// Get returns the current value of a port or register.
func (s *Simulator) Get(name string) (uint64, bool) {
	if _, ok := s.widths[name]; !ok {
		return 0, false
	}
	return s.values[name], true
}

// Set drives an input port. The value is visible to the next Step.
func (s *Simulator) Set(name string, value uint64) error {
	width, ok := s.widths[name]
	if !ok {
		return fmt.Errorf("sim: unknown signal %s", name)
	}
	if !s.inputs[name] {
		return fmt.Errorf("sim: %s is not an input", name)
	}
	s.values[name] = value & mask(width)
	return nil
}

// Memory reads a word of a storage buffer's memory.
func (s *Simulator) Memory(buffer string, addr uint64) (uint64, bool) {
	for _, r := range s.rams {
		if r.buf.Name == buffer {
			return r.mem[addr], true
		}
	}
	return 0, false
}

// Reset runs one clock edge with reset held high.
func (s *Simulator) Reset() error {
	s.begin()
	if err := s.exec(s.machine.Reset); err != nil {
		return err
	}
	s.commit()
	return nil
}

// Step runs one clock edge of the machine.
func (s *Simulator) Step() error {
	s.begin()
	st, ok := s.states[s.state]
	if !ok {
		s.target = fsm.IdleState
	} else if err := s.exec(st.Body); err != nil {
		return fmt.Errorf("sim: cycle %d, state %s: %w", s.cycle, s.state, err)
	}
	s.clockRAMs()
	s.commit()
	return nil
}

func (s *Simulator) begin() {
	s.pending = make(map[string]uint64)
	s.pendingNext = ""
	s.target = ""
}

func (s *Simulator) commit() {
	for name, v := range s.pending {
		s.values[name] = v
	}
	if s.target != "" {
		s.state = s.target
	}
	if s.pendingNext != "" {
		s.next = s.pendingNext
	}
	s.cycle++
}

// clockRAMs applies the memory edge using pre-edge register values.
func (s *Simulator) clockRAMs() {
	for _, r := range s.rams {
		b := r.buf
		dout := r.mem[s.values[b.ReadAddr()]]
		if s.values[b.WriteEnable()]&1 == 1 {
			r.mem[s.values[b.WriteAddr()]] = s.values[b.WriteData()]
		}
		s.pending[b.ReadData()] = dout & mask(b.Width)
	}
}

func (s *Simulator) exec(body []rtl.Stmt) error {
	for _, stmt := range body {
		switch st := stmt.(type) {
		case rtl.Assign:
			if err := s.assign(st); err != nil {
				return err
			}
		case rtl.If:
			cond, err := s.eval(st.Cond, 1)
			if err != nil {
				return err
			}
			branch := st.Else
			if cond != 0 {
				branch = st.Then
			}
			if err := s.exec(branch); err != nil {
				return err
			}
		case rtl.Goto:
			s.target = st.State
		case rtl.Resume:
			s.target = s.next
		case rtl.Hold:
			s.target = s.state
		case rtl.SetNext:
			s.pendingNext = st.State
		case rtl.Text:
			// opaque user code
		default:
			return fmt.Errorf("unsupported statement %T", stmt)
		}
	}
	return nil
}

func (s *Simulator) assign(a rtl.Assign) error {
	switch t := a.Target.(type) {
	case rtl.Ref:
		width, ok := s.widths[t.Name]
		if !ok {
			return fmt.Errorf("assignment to unknown signal %s", t.Name)
		}
		v, err := s.eval(a.Value, width)
		if err != nil {
			return err
		}
		s.pending[t.Name] = v & mask(width)
	case rtl.Slice:
		width, ok := s.widths[t.Name]
		if !ok {
			return fmt.Errorf("assignment to unknown signal %s", t.Name)
		}
		if t.Lo < 0 || t.Hi < t.Lo || t.Hi >= width {
			return fmt.Errorf("slice %s(%d downto %d) is out of range", t.Name, t.Hi, t.Lo)
		}
		sliceWidth := t.Hi - t.Lo + 1
		v, err := s.eval(a.Value, sliceWidth)
		if err != nil {
			return err
		}
		cur, ok := s.pending[t.Name]
		if !ok {
			cur = s.values[t.Name]
		}
		m := mask(sliceWidth) << t.Lo
		s.pending[t.Name] = (cur &^ m) | ((v << t.Lo) & m)
	default:
		return fmt.Errorf("cannot assign to %T", a.Target)
	}
	return nil
}

// eval computes an expression. width is the width of the destination and
// only matters for Fill.
func (s *Simulator) eval(e rtl.Expr, width int) (uint64, error) {
	switch v := e.(type) {
	case rtl.Ref:
		if _, ok := s.widths[v.Name]; !ok {
			return 0, fmt.Errorf("read of unknown signal %s", v.Name)
		}
		return s.values[v.Name], nil
	case rtl.Slice:
		if _, ok := s.widths[v.Name]; !ok {
			return 0, fmt.Errorf("read of unknown signal %s", v.Name)
		}
		if v.Lo < 0 || v.Hi < v.Lo {
			return 0, fmt.Errorf("slice %s(%d downto %d) is out of range", v.Name, v.Hi, v.Lo)
		}
		return (s.values[v.Name] >> v.Lo) & mask(v.Hi-v.Lo+1), nil
	case rtl.Logic:
		if v {
			return 1, nil
		}
		return 0, nil
	case rtl.Vector:
		n, err := strconv.ParseUint(string(v), 2, 64)
		if err != nil {
			return 0, fmt.Errorf("bad vector literal %q", string(v))
		}
		return n, nil
	case rtl.Fill:
		if v {
			return mask(width), nil
		}
		return 0, nil
	case rtl.Inc:
		w, ok := s.widths[v.Name]
		if !ok {
			return 0, fmt.Errorf("read of unknown signal %s", v.Name)
		}
		return (s.values[v.Name] + 1) & mask(w), nil
	case rtl.Eq:
		l, err := s.eval(v.Left, width)
		if err != nil {
			return 0, err
		}
		r, err := s.eval(v.Right, width)
		if err != nil {
			return 0, err
		}
		if l == r {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot evaluate %T", e)
	}
}

func mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
