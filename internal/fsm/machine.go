package fsm

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"gupl/internal/ir"
	"gupl/internal/rtl"
)

const (
	// DefaultRegister names the current-state register.
	DefaultRegister = "gupl_state"
	// IdleState is the bootstrap state every machine starts in.
	IdleState = "IDLE"
)

// State is one node of the machine.
type State struct {
	Name string
	Body []rtl.Stmt
	// Channel is the channel a generated protocol state belongs to, nil for
	// IDLE and user stages.
	Channel *ir.Channel
}

// Machine is the assembled state machine of an entity. States are frozen
// once Assemble returns.
type Machine struct {
	Register string
	States   []*State
	// Reset is the synchronous reset path, always taken while reset is high.
	Reset []rtl.Stmt
	// UserReset holds the verbatim reset-stage lines, appended after Reset.
	UserReset    []string
	HasUserReset bool
}

// NextRegister names the continuation register.
func (m *Machine) NextRegister() string {
	return m.Register + "_next"
}

// State finds a state by name.
func (m *Machine) State(name string) *State {
	st, ok := lo.Find(m.States, func(s *State) bool { return s.Name == name })
	if !ok {
		return nil
	}
	return st
}

// StateNames lists the states in enumeration order.
func (m *Machine) StateNames() []string {
	return lo.Map(m.States, func(s *State, _ int) string { return s.Name })
}

// Options configures assembly.
type Options struct {
	// Register overrides DefaultRegister.
	Register string
	// ResumeState is where the continuation register points after the idle
	// bootstrap hands control to the main receive channel. It defaults to
	// the entity name.
	ResumeState string
}

// Assemble merges IDLE, the user stages and every channel's protocol states
// into one machine, and builds the reset path.
func Assemble(e *ir.Entity, opts Options) (*Machine, error) {
	if e == nil {
		return nil, fmt.Errorf("fsm: entity is nil")
	}
	m := &Machine{Register: opts.Register}
	if m.Register == "" {
		m.Register = DefaultRegister
	}
	resume := opts.ResumeState
	if resume == "" {
		resume = e.Name
	}

	idle := &State{Name: IdleState}
	idle.Body = append(idle.Body, textLines(e.IdleBody)...)
	if main := e.MainReceive(); main != nil {
		idle.Body = append(idle.Body, bootstrap(e, main, resume)...)
	}
	m.States = append(m.States, idle)

	for _, stage := range e.Stages {
		m.States = append(m.States, &State{Name: stage.Name, Body: lowerActions(stage)})
	}
	for _, ch := range e.SendChannels {
		m.States = append(m.States, Send(ch, rtl.Resume{})...)
	}
	for _, ch := range e.RecvChannels {
		m.States = append(m.States, Receive(ch, rtl.Resume{})...)
	}

	m.Reset = append(quiesce(e), rtl.Goto{State: IdleState}, rtl.SetNext{State: IdleState})
	if e.HasReset {
		m.HasUserReset = true
		m.UserReset = splitLines(e.ResetBody)
	}

	if err := m.check(); err != nil {
		return nil, err
	}
	return m, nil
}

// bootstrap hands IDLE over to the main receive channel and puts every
// channel output and storage buffer into its idle condition. The write
// address starts at all ones so the first write lands at address 0.
func bootstrap(e *ir.Entity, main *ir.Channel, resume string) []rtl.Stmt {
	body := []rtl.Stmt{
		rtl.Goto{State: main.StateName(0)},
		rtl.SetNext{State: resume},
	}
	body = append(body, quiesce(e)...)
	for _, buf := range e.StorageBuffers() {
		body = append(body,
			rtl.Set(buf.WriteEnable(), rtl.Fill(false)),
			rtl.Set(buf.WriteAddr(), rtl.Fill(true)),
			rtl.Set(buf.ReadAddr(), rtl.Fill(false)),
			rtl.Set(buf.RecvWords(), rtl.Fill(false)),
			rtl.Set(buf.SentWords(), rtl.Fill(false)),
		)
	}
	return body
}

// quiesce drives every channel output to its idle value.
func quiesce(e *ir.Entity) []rtl.Stmt {
	var body []rtl.Stmt
	for _, ch := range e.SendChannels {
		body = append(body,
			rtl.Set(ch.EnablePort(), rtl.Logic(false)),
			rtl.Set(ch.RequestPort(), rtl.Logic(false)),
			rtl.Set(ch.DataPort(), rtl.Fill(false)),
		)
	}
	for _, ch := range e.RecvChannels {
		body = append(body, rtl.Set(ch.AckPort(), rtl.Logic(false)))
	}
	return body
}

func lowerActions(stage *ir.UserStage) []rtl.Stmt {
	var body []rtl.Stmt
	for _, action := range stage.Actions {
		switch a := action.(type) {
		case ir.Raw:
			body = append(body, rtl.Text{Line: a.Text})
		case ir.Continue:
			body = append(body, rtl.Goto{State: a.Target})
		case ir.InitiateSend:
			body = append(body,
				rtl.Goto{State: entryState(ir.Send, a.Channel)},
				rtl.SetNext{State: a.Next},
			)
		case ir.InitiateReceive:
			body = append(body,
				rtl.Goto{State: entryState(ir.Receive, a.Channel)},
				rtl.SetNext{State: a.Next},
			)
		}
	}
	return body
}

func entryState(kind ir.ChannelKind, channel string) string {
	ch := &ir.Channel{Kind: kind, Name: channel}
	return ch.StateName(0)
}

// check rejects duplicate state names and transitions to states that do
// not exist.
func (m *Machine) check() error {
	known := make(map[string]bool, len(m.States))
	for _, st := range m.States {
		if known[st.Name] {
			return fmt.Errorf("fsm: duplicate state %s", st.Name)
		}
		known[st.Name] = true
	}
	for _, st := range m.States {
		var bad string
		rtl.Walk(st.Body, func(s rtl.Stmt) bool {
			switch o := s.(type) {
			case rtl.Goto:
				if !known[o.State] {
					bad = o.State
				}
			case rtl.SetNext:
				if !known[o.State] {
					bad = o.State
				}
			}
			return bad == ""
		})
		if bad != "" {
			return &ir.UnknownDirectiveReferenceError{Stage: st.Name, Kind: "state", Name: bad}
		}
	}
	return nil
}

func textLines(body string) []rtl.Stmt {
	return lo.Map(splitLines(body), func(line string, _ int) rtl.Stmt { return rtl.Text{Line: line} })
}

func splitLines(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(body, "\n"), "\n")
}
