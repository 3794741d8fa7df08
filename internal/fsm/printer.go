package fsm

import (
	"fmt"
	"io"
	"strings"

	"gupl/internal/rtl"
)

// Dump lists every state with the transitions its body can take. "next"
// stands for the continuation register and "self" for remaining in place.
func Dump(m *Machine, w io.Writer) {
	if m == nil {
		fmt.Fprintln(w, "<nil machine>")
		return
	}
	fmt.Fprintf(w, "machine %s (%d states)\n", m.Register, len(m.States))
	for _, st := range m.States {
		targets := describeTargets(rtl.Targets(st.Body))
		if len(targets) == 0 {
			fmt.Fprintf(w, "  %s\n", st.Name)
			continue
		}
		fmt.Fprintf(w, "  %s -> %s\n", st.Name, strings.Join(targets, " | "))
	}
}

func describeTargets(ts []rtl.Transition) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		switch {
		case t.Resume:
			out = append(out, "next")
		case t.Hold:
			out = append(out, "self")
		default:
			out = append(out, t.State)
		}
	}
	return out
}
