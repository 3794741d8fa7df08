package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"gupl/internal/fsm"
	"gupl/internal/ir"
	"gupl/internal/vhdl"
)

// RAMFileName is the name the memory implementation is copied to.
const RAMFileName = "simple_dualportram.vhd"

// Options configures where VHDL is written.
type Options struct {
	// OutputPath overrides the main output file. When empty the file is
	// named <entity>.vhd inside OutDir.
	OutputPath string
	// OutDir is the output directory. When empty the directory of the input
	// file is used.
	OutDir string
	// RAMSource points to a user-provided simple_dualportram implementation
	// that is copied next to the output when the entity uses storage fields.
	RAMSource string
}

// Result lists the files written for one entity.
type Result struct {
	MainPath string
	AuxPaths []string
}

// WriteVHDL renders the entity and writes it to disk. Nothing is written
// when rendering fails.
func WriteVHDL(e *ir.Entity, m *fsm.Machine, inputPath string, opts Options) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("backend: entity is nil")
	}
	data, err := vhdl.Render(e, m)
	if err != nil {
		return Result{}, fmt.Errorf("backend: render %s: %w", e.Name, err)
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		dir := opts.OutDir
		if dir == "" {
			dir = filepath.Dir(inputPath)
		}
		outputPath = filepath.Join(dir, e.Name+".vhd")
	}
	if err := writeFile(outputPath, data); err != nil {
		return Result{}, fmt.Errorf("backend: write vhdl output: %w", err)
	}
	res := Result{MainPath: outputPath}

	if len(e.StorageBuffers()) == 0 || opts.RAMSource == "" {
		return res, nil
	}
	auxPath, err := copyRAMSource(filepath.Dir(outputPath), opts.RAMSource)
	if err != nil {
		return Result{}, err
	}
	res.AuxPaths = append(res.AuxPaths, auxPath)
	return res, nil
}

func copyRAMSource(dir, source string) (string, error) {
	src, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("backend: read ram source: %w", err)
	}
	auxPath := filepath.Join(dir, RAMFileName)
	if filepath.Clean(auxPath) == filepath.Clean(source) {
		return auxPath, nil
	}
	if err := writeFile(auxPath, src); err != nil {
		return "", fmt.Errorf("backend: write ram source: %w", err)
	}
	return auxPath, nil
}

// writeFile replaces path through a temporary file in the same directory so
// concurrent writers of the same file never leave it half written.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".gupl-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
