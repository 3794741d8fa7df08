package ir

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gupl/internal/diag"
)

type fieldDecl struct {
	name  string
	width string
}

func mustChannel(t *testing.T, kind ChannelKind, name string, width int, decls ...fieldDecl) *Channel {
	t.Helper()
	ch, err := NewChannel(kind, 0, name, width, diag.Pos{})
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	for _, d := range decls {
		if _, err := ch.AddField(d.name, d.width, diag.Pos{}); err != nil {
			t.Fatalf("AddField(%s, %s): %v", d.name, d.width, err)
		}
	}
	return ch
}

func stageNames(ch *Channel) [][]string {
	out := make([][]string, 0, len(ch.Stages))
	for _, st := range ch.Stages {
		names := make([]string, 0, len(st.Fields))
		for _, f := range st.Fields {
			names = append(names, f.Name)
		}
		out = append(out, names)
	}
	return out
}

func TestPackStages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		width int
		decls []fieldDecl
		want  [][]string
	}{
		{
			name:  "three halves",
			width: 32,
			decls: []fieldDecl{{"f1", "16"}, {"f2", "16"}, {"f3", "16"}},
			want:  [][]string{{"f1", "f2"}, {"f3"}},
		},
		{
			name:  "full words",
			width: 32,
			decls: []fieldDecl{{"a", "32"}, {"b", "32"}},
			want:  [][]string{{"a"}, {"b"}},
		},
		{
			name:  "storage opens its own stage",
			width: 32,
			decls: []fieldDecl{{"len", "32"}, {"buf", "<96"}},
			want:  [][]string{{"len"}, {"buf"}},
		},
		{
			name:  "storage shares a partial word",
			width: 32,
			decls: []fieldDecl{{"hdr", "8"}, {"buf", "<64"}, {"tail", "8"}},
			want:  [][]string{{"hdr", "buf"}, {"tail"}},
		},
		{
			name:  "storage first",
			width: 64,
			decls: []fieldDecl{{"buf", "<256"}},
			want:  [][]string{{"buf"}},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ch := mustChannel(t, Receive, "in", tc.width, tc.decls...)
			if diff := cmp.Diff(tc.want, stageNames(ch)); diff != "" {
				t.Fatalf("stages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPackKeepsEveryFieldOnceInOrder(t *testing.T) {
	decls := []fieldDecl{{"a", "3"}, {"b", "29"}, {"c", "7"}, {"d", "<40"}, {"e", "12"}, {"f", "1"}}
	ch := mustChannel(t, Send, "out", 16, decls...)

	var order []string
	total := 0
	for i, st := range ch.Stages {
		if st.Index != i {
			t.Fatalf("stage %d has index %d", i, st.Index)
		}
		for _, f := range st.Fields {
			order = append(order, f.Name)
			total += f.Bits
		}
	}
	want := []string{"a", "b", "c", "d", "e", "f"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}
	if total != ch.TotalBits() || total != 3+29+7+40+12+1 {
		t.Fatalf("stage bits %d, declared %d", total, ch.TotalBits())
	}
}

func TestLastStorageFieldWins(t *testing.T) {
	ch := mustChannel(t, Receive, "in", 32, fieldDecl{"first", "<64"}, fieldDecl{"second", "<128"})
	if ch.Storage == nil || ch.Storage.Name != "second" {
		t.Fatalf("expected second storage field to be honored, got %+v", ch.Storage)
	}
	if len(ch.StorageDecls) != 2 {
		t.Fatalf("expected both storage declarations recorded, got %d", len(ch.StorageDecls))
	}
	buf := NewStorageBuffer(ch.Storage)
	if buf.Words() != 4 {
		t.Fatalf("expected the second declaration to size the buffer, got %d words", buf.Words())
	}
}

func TestAddFieldRejectsMalformedWidth(t *testing.T) {
	for _, tok := range []string{"", "abc", "<", "<x", "0", "-4", "<0"} {
		ch := mustChannel(t, Receive, "in", 32)
		_, err := ch.AddField("f", tok, diag.Pos{})
		var malformed *MalformedFieldError
		if !errors.As(err, &malformed) {
			t.Fatalf("token %q: expected MalformedFieldError, got %v", tok, err)
		}
		if len(ch.Fields) != 0 || len(ch.Stages) != 0 {
			t.Fatalf("token %q: malformed field must not be packed", tok)
		}
	}
}

func TestNewChannelRejectsZeroWidth(t *testing.T) {
	_, err := NewChannel(Send, 1, "out", 0, diag.Pos{})
	var malformed *MalformedDirectiveError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedDirectiveError, got %v", err)
	}
}

func TestStateNames(t *testing.T) {
	recv := mustChannel(t, Receive, "in", 32, fieldDecl{"a", "32"})
	send := mustChannel(t, Send, "out", 32, fieldDecl{"a", "32"}, fieldDecl{"b", "32"})
	if diff := cmp.Diff([]string{"in_recv_0", "in_recv_1"}, recv.StateNames()); diff != "" {
		t.Fatalf("recv states (-want +got):\n%s", diff)
	}
	want := []string{"out_send_0", "out_send_1", "out_send_2", "out_send_3"}
	if diff := cmp.Diff(want, send.StateNames()); diff != "" {
		t.Fatalf("send states (-want +got):\n%s", diff)
	}
}

func TestChannelPorts(t *testing.T) {
	ch := mustChannel(t, Send, "out", 16)
	got := ch.Ports()
	want := []Port{
		{Name: "UPL_out_data", Direction: Output, Width: 16},
		{Name: "UPL_out_en", Direction: Output},
		{Name: "UPL_out_req", Direction: Output},
		{Name: "UPL_out_ack", Direction: Input},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ports mismatch (-want +got):\n%s", diff)
	}
}

func TestDump(t *testing.T) {
	e := &Entity{Name: "echo", Version: "1"}
	e.RecvChannels = append(e.RecvChannels, mustChannel(t, Receive, "in", 32, fieldDecl{"len", "32"}, fieldDecl{"buf", "<96"}))
	e.Stages = append(e.Stages, &UserStage{Name: "echo", Actions: []Action{
		Raw{Text: "  x <= y;"},
		InitiateSend{Channel: "out", Next: "IDLE"},
	}})
	var buf bytes.Buffer
	Dump(e, &buf)
	out := buf.String()
	for _, want := range []string{
		"entity echo (version 1)",
		"recv in id=0 width=32",
		"stage 0: len[32]@0",
		"stage 1: buf<96>@32",
		"buf words=3 width=32 addr=2",
		"send out -> IDLE",
		`raw "x <= y;"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
}
