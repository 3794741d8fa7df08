// Package passes holds checks that run over a parsed entity before its
// state machine is generated.
package passes

import (
	"fmt"

	"gupl/internal/diag"
	"gupl/internal/ir"
)

// Pass inspects an entity. Findings go to the reporter; a returned error
// stops the pipeline.
type Pass interface {
	Name() string
	Run(entity *ir.Entity) error
}

// Manager runs passes in the order they were added.
type Manager struct {
	passes []Pass
}

// NewManager returns a manager preloaded with passes.
func NewManager(passes ...Pass) *Manager {
	return &Manager{passes: passes}
}

// Default returns the standard pass pipeline.
func Default(reporter *diag.Reporter) *Manager {
	return NewManager(
		NewStorageAmbiguity(reporter),
		NewStageWidth(reporter),
	)
}

// Add appends a pass.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Run executes every pass over the entity.
func (m *Manager) Run(entity *ir.Entity) error {
	if entity == nil {
		return fmt.Errorf("passes require a non-nil entity")
	}
	for _, p := range m.passes {
		if err := p.Run(entity); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}
