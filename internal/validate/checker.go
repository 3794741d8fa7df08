package validate

import (
	"fmt"

	"gupl/internal/diag"
	"gupl/internal/ir"
)

// CheckEntity verifies that every stage directive names a declared channel
// of the right direction and a state that exists, and that the machine can
// resume after the bootstrap receive. Each problem is reported separately.
func CheckEntity(e *ir.Entity, reporter *diag.Reporter) error {
	if e == nil {
		return fmt.Errorf("no entity provided for validation")
	}
	if reporter == nil {
		return fmt.Errorf("no reporter provided for validation")
	}

	c := &checker{
		reporter: reporter,
		entity:   e,
		states:   make(map[string]bool),
	}
	c.run()
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	errCount int
	entity   *ir.Entity
	states   map[string]bool
}

func (c *checker) run() {
	e := c.entity
	c.checkChannels()
	c.declare("IDLE", e.Pos)
	for _, st := range e.Stages {
		c.declare(st.Name, st.Pos)
	}
	for _, ch := range e.Channels() {
		for _, name := range ch.StateNames() {
			c.declare(name, ch.Pos)
		}
	}

	for _, st := range e.Stages {
		for _, action := range st.Actions {
			c.checkAction(st, action)
		}
	}

	if main := e.MainReceive(); main != nil && !c.states[e.Name] {
		c.unknown(main.Pos, &ir.UnknownDirectiveReferenceError{Kind: "resume state", Name: e.Name})
	}
}

func (c *checker) checkChannels() {
	seen := make(map[string]bool)
	for _, ch := range c.entity.Channels() {
		if seen[ch.Name] {
			c.error(ch.Pos, "channel %s is declared more than once", ch.Name)
			continue
		}
		seen[ch.Name] = true
	}
}

func (c *checker) declare(name string, pos diag.Pos) {
	if c.states[name] {
		c.error(pos, "state %s is declared more than once", name)
		return
	}
	c.states[name] = true
}

func (c *checker) checkAction(st *ir.UserStage, action ir.Action) {
	switch a := action.(type) {
	case ir.Continue:
		c.checkState(st, a.Target, a.Pos)
	case ir.InitiateSend:
		if c.entity.Channel(ir.Send, a.Channel) == nil {
			c.unknown(a.Pos, &ir.UnknownDirectiveReferenceError{Stage: st.Name, Kind: "send channel", Name: a.Channel})
		}
		c.checkState(st, a.Next, a.Pos)
	case ir.InitiateReceive:
		if c.entity.Channel(ir.Receive, a.Channel) == nil {
			c.unknown(a.Pos, &ir.UnknownDirectiveReferenceError{Stage: st.Name, Kind: "receive channel", Name: a.Channel})
		}
		c.checkState(st, a.Next, a.Pos)
	}
}

func (c *checker) checkState(st *ir.UserStage, name string, pos diag.Pos) {
	if !c.states[name] {
		c.unknown(pos, &ir.UnknownDirectiveReferenceError{Stage: st.Name, Kind: "state", Name: name})
	}
}

func (c *checker) unknown(pos diag.Pos, err *ir.UnknownDirectiveReferenceError) {
	c.error(pos, "%v", err)
}

func (c *checker) error(pos diag.Pos, format string, args ...any) {
	c.errCount++
	if c.reporter != nil {
		c.reporter.ErrorAt(pos, format, args...)
	}
}
