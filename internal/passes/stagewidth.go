package passes

import (
	"fmt"

	"gupl/internal/diag"
	"gupl/internal/ir"
)

// StageWidth warns about stages whose layout cannot be expressed in one
// channel word: scalar bits running past bit 0, or a storage field sharing
// its word with a scalar on either side.
type StageWidth struct {
	reporter *diag.Reporter
	findings int
}

func NewStageWidth(reporter *diag.Reporter) *StageWidth {
	return &StageWidth{reporter: reporter}
}

func (s *StageWidth) Name() string {
	return "stage-width"
}

func (s *StageWidth) Run(entity *ir.Entity) error {
	s.findings = 0
	for _, ch := range entity.Channels() {
		for _, stage := range ch.Stages {
			s.visitStage(ch, stage)
		}
	}
	if s.findings > 0 && s.reporter != nil && s.reporter.Strict() {
		return fmt.Errorf("%d stage layout issue(s)", s.findings)
	}
	return nil
}

func (s *StageWidth) visitStage(ch *ir.Channel, stage *ir.Stage) {
	if s.reporter == nil {
		return
	}
	scalarBits := 0
	var storage, scalar *ir.Field
	for _, f := range stage.Fields {
		if f.IsStorage() {
			if scalar != nil {
				s.warn(f.Pos, "channel %s stage %d: storage field %s follows field %s in the same word",
					ch.Name, stage.Index, f.Name, scalar.Name)
			}
			storage = f
			continue
		}
		scalar = f
		scalarBits += f.Bits
		if storage != nil {
			s.warn(f.Pos, "channel %s stage %d: field %s follows storage field %s in the same word",
				ch.Name, stage.Index, f.Name, storage.Name)
		}
	}
	if scalarBits > ch.Width {
		s.warn(stage.First().Pos, "channel %s stage %d: %d scalar bits exceed the %d-bit word",
			ch.Name, stage.Index, scalarBits, ch.Width)
	}
}

func (s *StageWidth) warn(pos diag.Pos, format string, args ...any) {
	s.findings++
	s.reporter.WarnAt(pos, format, args...)
}
