package frontend

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"gupl/internal/diag"
	"gupl/internal/ir"
)

// LoadConfig lists the directive files to load.
type LoadConfig struct {
	Sources []string
}

// Unit is one loaded input file and the entity it declares.
type Unit struct {
	Path   string
	Entity *ir.Entity
}

// LoadEntities parses every source. Problems are reported per file, so one
// broken input does not hide the errors of the others.
func LoadEntities(cfg LoadConfig, reporter *diag.Reporter) ([]*Unit, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no source files were provided")
	}

	var units []*Unit
	var hadErrors bool
	for _, path := range cfg.Sources {
		entity, err := LoadFile(path)
		if err != nil {
			report(reporter, err)
			hadErrors = true
			continue
		}
		units = append(units, &Unit{Path: path, Entity: entity})
	}
	if hadErrors {
		return nil, fmt.Errorf("loading failed")
	}
	return units, nil
}

// LoadFile parses a single directive file.
func LoadFile(path string) (*ir.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return Parse(path, f)
}

func report(reporter *diag.Reporter, err error) {
	if reporter == nil {
		return
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		reporter.ErrorAt(perr.Pos, "%v", perr.Err)
		return
	}
	reporter.Errorf("%v", err)
}
