package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a simple human-readable representation of the entity.
func Dump(entity *Entity, w io.Writer) {
	if entity == nil {
		fmt.Fprintln(w, "<nil entity>")
		return
	}
	fmt.Fprintf(w, "entity %s (version %s)\n", entity.Name, entity.Version)
	for _, ch := range entity.Channels() {
		dumpChannel(ch, w)
	}
	dumpPorts(entity, w)
	dumpSignals(entity, w)
	dumpBuffers(entity, w)
	dumpStages(entity, w)
}

func dumpChannel(ch *Channel, w io.Writer) {
	fmt.Fprintf(w, "  %s %s id=%d width=%d\n", ch.Kind, ch.Name, ch.ID, ch.Width)
	for _, stage := range ch.Stages {
		names := make([]string, 0, len(stage.Fields))
		for _, f := range stage.Fields {
			names = append(names, fieldLabel(f))
		}
		fmt.Fprintf(w, "    stage %d: %s\n", stage.Index, strings.Join(names, " "))
	}
	if ch.Storage != nil {
		fmt.Fprintf(w, "    storage: %s\n", ch.Storage.Name)
	}
}

func dumpPorts(entity *Entity, w io.Writer) {
	if len(entity.Ports) == 0 {
		return
	}
	fmt.Fprintln(w, "  ports:")
	for _, port := range entity.Ports {
		fmt.Fprintf(w, "    %-5s %s %db\n", port.Direction, port.Name, port.Width)
	}
}

func dumpSignals(entity *Entity, w io.Writer) {
	if len(entity.Signals) == 0 {
		return
	}
	fmt.Fprintln(w, "  signals:")
	for _, sig := range entity.Signals {
		typ := sig.Type
		if typ == "" {
			typ = "std_logic_vector"
		}
		fmt.Fprintf(w, "    %s %db %s\n", sig.Name, sig.Width, typ)
	}
}

func dumpBuffers(entity *Entity, w io.Writer) {
	buffers := entity.StorageBuffers()
	if len(buffers) == 0 {
		return
	}
	fmt.Fprintln(w, "  buffers:")
	for _, buf := range buffers {
		fmt.Fprintf(w, "    %s words=%d width=%d addr=%d\n", buf.Name, buf.Words(), buf.Width, buf.AddrBits())
	}
}

func dumpStages(entity *Entity, w io.Writer) {
	for _, stage := range entity.Stages {
		fmt.Fprintf(w, "  stage %s\n", stage.Name)
		for _, action := range stage.Actions {
			fmt.Fprintf(w, "    %s\n", renderAction(action))
		}
	}
}

func renderAction(a Action) string {
	switch o := a.(type) {
	case Continue:
		return "to " + o.Target
	case InitiateSend:
		return fmt.Sprintf("send %s -> %s", o.Channel, o.Next)
	case InitiateReceive:
		return fmt.Sprintf("recv %s -> %s", o.Channel, o.Next)
	case Raw:
		return fmt.Sprintf("raw %q", strings.TrimSpace(o.Text))
	default:
		return fmt.Sprintf("<unknown action %T>", a)
	}
}

// fieldLabel renders name[bits]@offset, with <bits> for storage fields.
func fieldLabel(f *Field) string {
	if f.IsStorage() {
		return fmt.Sprintf("%s<%d>@%d", f.Name, f.Bits, f.Offset)
	}
	return fmt.Sprintf("%s[%d]@%d", f.Name, f.Bits, f.Offset)
}
