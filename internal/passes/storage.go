package passes

import (
	"fmt"

	"github.com/samber/lo"

	"gupl/internal/diag"
	"gupl/internal/ir"
)

// StorageAmbiguity warns about channels declaring more than one storage
// field. Only the last one drives the protocol; the earlier ones still get
// buffers and registers.
type StorageAmbiguity struct {
	reporter *diag.Reporter
}

func NewStorageAmbiguity(reporter *diag.Reporter) *StorageAmbiguity {
	return &StorageAmbiguity{reporter: reporter}
}

func (s *StorageAmbiguity) Name() string {
	return "storage-ambiguity"
}

// Run reports one DuplicateStorageFieldError per ambiguous channel. It only
// fails when the reporter turned the warning into an error.
func (s *StorageAmbiguity) Run(entity *ir.Entity) error {
	var failed int
	for _, ch := range entity.Channels() {
		if len(ch.StorageDecls) < 2 {
			continue
		}
		dup := &ir.DuplicateStorageFieldError{
			Channel: ch.Name,
			Fields:  lo.Map(ch.StorageDecls, func(f *ir.Field, _ int) string { return f.Name }),
		}
		if s.reporter == nil {
			continue
		}
		s.reporter.WarnAt(ch.Pos, "%v", dup)
		if s.reporter.Strict() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d channel(s) with ambiguous storage fields", failed)
	}
	return nil
}
