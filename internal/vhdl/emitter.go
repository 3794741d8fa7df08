// Package vhdl renders an entity and its assembled state machine as a
// single synthesizable VHDL file.
package vhdl

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gupl/internal/fsm"
	"gupl/internal/ir"
	"gupl/internal/rtl"
)

// Render returns the VHDL text of the entity. Nothing is returned when any
// part fails to render.
func Render(e *ir.Entity, m *fsm.Machine) ([]byte, error) {
	var buf bytes.Buffer
	if err := Emit(&buf, e, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Emit writes the VHDL text of the entity to w.
func Emit(w io.Writer, e *ir.Entity, m *fsm.Machine) error {
	if e == nil || m == nil {
		return fmt.Errorf("vhdl: entity and machine are required")
	}
	p := &printer{w: w, machine: m}
	p.emitHeader()
	p.emitEntity(e)
	if err := p.emitArchitecture(e); err != nil {
		return fmt.Errorf("vhdl: %s: %w", e.Name, err)
	}
	return p.err
}

type printer struct {
	w       io.Writer
	indent  int
	machine *fsm.Machine
	// state is the case branch being printed, the target of Hold.
	state string
	err   error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	if format == "" {
		_, p.err = io.WriteString(p.w, "\n")
		return
	}
	_, p.err = fmt.Fprintf(p.w, strings.Repeat("  ", p.indent)+format+"\n", args...)
}

func (p *printer) raw(text string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, text)
}

func (p *printer) emitHeader() {
	p.line("library ieee;")
	p.line("use ieee.std_logic_1164.all;")
	p.line("use ieee.numeric_std.all;")
	p.line("")
}

func (p *printer) emitEntity(e *ir.Entity) {
	p.line("entity %s is", e.Name)
	p.line("port(")
	p.indent++
	for _, ch := range e.RecvChannels {
		p.emitChannelPorts(ch)
	}
	for _, ch := range e.SendChannels {
		p.emitChannelPorts(ch)
	}
	p.line("-- user-defined ports")
	for _, port := range e.Ports {
		p.line("%s : %s %s;", port.Name, port.Direction, logicType("std_logic_vector", port.Width))
	}
	p.line("")
	p.line("-- system clock and reset")
	p.line("clk : in std_logic;")
	p.line("reset : in std_logic")
	p.indent--
	p.line(");")
	p.line("end entity %s;", e.Name)
	p.line("")
}

func (p *printer) emitChannelPorts(ch *ir.Channel) {
	p.line("-- %s", ch.Name)
	for _, port := range ch.Ports() {
		p.line("%s : %s %s;", port.Name, port.Direction, logicType("std_logic_vector", port.Width))
	}
	p.line("")
}

func (p *printer) emitArchitecture(e *ir.Entity) error {
	p.line("architecture RTL of %s is", e.Name)
	p.line("")
	p.indent++
	p.line("-- statemachine type and signal")
	p.line("type StateType is (")
	p.raw("      " + strings.Join(p.machine.StateNames(), ",\n      ") + "\n")
	p.line(");")
	p.line("signal %s : StateType := %s;", p.machine.Register, fsm.IdleState)
	p.line("signal %s : StateType := %s;", p.machine.NextRegister(), fsm.IdleState)
	p.line("")

	p.line("-- UPL signals")
	for _, f := range e.UniqueFields() {
		for _, sig := range ir.FieldSignals(f) {
			p.emitSignal(sig)
		}
	}
	p.line("")
	p.line("-- user-defined signals")
	for _, sig := range e.Signals {
		p.emitSignal(sig)
	}
	p.line("")

	p.line("-- ip-cores")
	buffers := e.StorageBuffers()
	if len(buffers) > 0 {
		component, err := renderRAMComponent()
		if err != nil {
			return fmt.Errorf("render ram component: %w", err)
		}
		p.raw(component)
	}
	p.indent--
	p.line("")

	p.line("begin")
	p.line("")
	p.line("  -- add async")
	p.emitAsync(e.Async)
	p.line("")
	p.emitProcess()
	p.line("")

	instances, err := renderRAMInstances(buffers)
	if err != nil {
		return fmt.Errorf("render ram instances: %w", err)
	}
	p.raw(instances)
	p.line("end RTL;")
	return nil
}

func (p *printer) emitSignal(sig ir.Signal) {
	typ := sig.Type
	if typ == "" {
		typ = "std_logic_vector"
	}
	p.line("signal %s : %s;", sig.Name, logicType(typ, sig.Width))
}

func (p *printer) emitAsync(body string) {
	if body == "" {
		p.line("")
		return
	}
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	p.raw(body)
}

func (p *printer) emitProcess() {
	m := p.machine
	p.line("process(clk)")
	p.line("begin")
	p.indent++
	p.line("if rising_edge(clk) then")
	p.indent++
	p.line("if reset = '1' then")
	p.indent++
	p.emitBody(m.Reset)
	if m.HasUserReset {
		p.line("")
		p.line("-- user-defined reset stage")
		p.emitText(m.UserReset)
		p.line("")
	}
	p.indent--
	p.line("else")
	p.indent++
	p.line("case %s is", m.Register)
	p.indent++
	for _, st := range m.States {
		p.line("when %s =>", st.Name)
		p.indent++
		p.state = st.Name
		if len(st.Body) == 0 {
			p.line("null;")
		} else {
			p.emitBody(st.Body)
		}
		p.indent--
	}
	p.line("when others => %s <= %s;", m.Register, fsm.IdleState)
	p.indent--
	p.line("end case;")
	p.indent--
	p.line("end if;")
	p.indent--
	p.line("end if;")
	p.indent--
	p.line("end process;")
}

func (p *printer) emitText(lines []string) {
	for _, l := range lines {
		p.raw(l + "\n")
	}
}

func (p *printer) emitBody(body []rtl.Stmt) {
	for _, s := range body {
		p.emitStmt(s)
	}
}

func (p *printer) emitStmt(s rtl.Stmt) {
	m := p.machine
	switch st := s.(type) {
	case rtl.Assign:
		if st.Comment != "" {
			p.line("%s <= %s; -- %s", expr(st.Target), expr(st.Value), st.Comment)
			return
		}
		p.line("%s <= %s;", expr(st.Target), expr(st.Value))
	case rtl.If:
		p.line("if %s then", expr(st.Cond))
		p.indent++
		p.emitBody(st.Then)
		p.indent--
		if len(st.Else) > 0 {
			p.line("else")
			p.indent++
			p.emitBody(st.Else)
			p.indent--
		}
		p.line("end if;")
	case rtl.Goto:
		p.line("%s <= %s;", m.Register, st.State)
	case rtl.Resume:
		p.line("%s <= %s;", m.Register, m.NextRegister())
	case rtl.Hold:
		p.line("%s <= %s;", m.Register, p.state)
	case rtl.SetNext:
		p.line("%s <= %s;", m.NextRegister(), st.State)
	case rtl.Text:
		p.raw(st.Line + "\n")
	default:
		p.err = fmt.Errorf("vhdl: unsupported statement %T", s)
	}
}

func expr(e rtl.Expr) string {
	switch v := e.(type) {
	case rtl.Ref:
		return v.Name
	case rtl.Slice:
		return fmt.Sprintf("%s(%d downto %d)", v.Name, v.Hi, v.Lo)
	case rtl.Logic:
		return "'" + bit(bool(v)) + "'"
	case rtl.Vector:
		return `"` + string(v) + `"`
	case rtl.Fill:
		return "(others => '" + bit(bool(v)) + "')"
	case rtl.Inc:
		return fmt.Sprintf("std_logic_vector(unsigned(%s)+1)", v.Name)
	case rtl.Eq:
		return expr(v.Left) + " = " + expr(v.Right)
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// logicType is std_logic for width 0 and typ(width-1 downto 0) otherwise.
func logicType(typ string, width int) string {
	if width <= 0 {
		return "std_logic"
	}
	return fmt.Sprintf("%s(%d-1 downto 0)", typ, width)
}
