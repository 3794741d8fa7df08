package fsm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gupl/internal/diag"
	"gupl/internal/ir"
	"gupl/internal/rtl"
)

func channel(t *testing.T, kind ir.ChannelKind, id int, name string, width int, fields ...[2]string) *ir.Channel {
	t.Helper()
	ch, err := ir.NewChannel(kind, id, name, width, diag.Pos{})
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	for _, f := range fields {
		if _, err := ch.AddField(f[0], f[1], diag.Pos{}); err != nil {
			t.Fatalf("AddField: %v", err)
		}
	}
	return ch
}

func names(states []*State) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = st.Name
	}
	return out
}

func TestReceiveScalarOnlyChannel(t *testing.T) {
	ch := channel(t, ir.Receive, 0, "in", 32, [2]string{"a", "16"}, [2]string{"b", "16"})
	states := Receive(ch, rtl.Resume{})
	if diff := cmp.Diff([]string{"in_recv_0", "in_recv_1"}, names(states)); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}

	entry := states[0]
	cond, ok := entry.Body[0].(rtl.If)
	if !ok {
		t.Fatalf("recv_0 must open with the enable check, got %T", entry.Body[0])
	}
	if diff := cmp.Diff(rtl.High("UPL_in_en"), cond.Cond); diff != "" {
		t.Fatalf("recv_0 condition (-want +got):\n%s", diff)
	}
	wantThen := []rtl.Stmt{
		rtl.Set("UPL_in_ack", rtl.Logic(false)),
		rtl.Goto{State: "in_recv_1"},
	}
	if diff := cmp.Diff(wantThen, cond.Then); diff != "" {
		t.Fatalf("recv_0 enabled branch (-want +got):\n%s", diff)
	}
	wantElse := []rtl.Stmt{rtl.Set("UPL_in_ack", rtl.Logic(true)), rtl.Hold{}}
	if diff := cmp.Diff(wantElse, cond.Else); diff != "" {
		t.Fatalf("recv_0 idle branch (-want +got):\n%s", diff)
	}
	wantFields := []rtl.Stmt{
		rtl.Set("a", rtl.Slice{Name: "UPL_in_data", Hi: 31, Lo: 16}),
		rtl.Set("b", rtl.Slice{Name: "UPL_in_data", Hi: 15, Lo: 0}),
	}
	if diff := cmp.Diff(wantFields, entry.Body[1:]); diff != "" {
		t.Fatalf("recv_0 unpacking (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]rtl.Stmt{rtl.Resume{}}, states[1].Body); diff != "" {
		t.Fatalf("recv_1 must route to the continuation unconditionally (-want +got):\n%s", diff)
	}
}

func TestReceiveStorageDrain(t *testing.T) {
	ch := channel(t, ir.Receive, 0, "in", 32, [2]string{"len", "32"}, [2]string{"buf", "<96"})
	states := Receive(ch, rtl.Resume{})
	if diff := cmp.Diff([]string{"in_recv_0", "in_recv_1", "in_recv_2"}, names(states)); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}
	store := []rtl.Stmt{
		rtl.Increment("buf_waddr"),
		rtl.Set("buf_we", rtl.Vector("1")),
		rtl.Set("buf_din", rtl.Ref{Name: "UPL_in_data"}),
		rtl.Increment("buf_recv_words"),
	}
	wantBody := []rtl.Stmt{
		rtl.Set("UPL_in_ack", rtl.Logic(false)),
		rtl.If{Cond: rtl.High("UPL_in_en"), Then: store, Else: []rtl.Stmt{rtl.Set("buf_we", rtl.Vector("0"))}},
		rtl.Goto{State: "in_recv_2"},
	}
	if diff := cmp.Diff(wantBody, states[1].Body); diff != "" {
		t.Fatalf("recv_1 (-want +got):\n%s", diff)
	}
	wantDrain := []rtl.Stmt{rtl.If{
		Cond: rtl.Low("UPL_in_en"),
		Then: []rtl.Stmt{rtl.Resume{}, rtl.Set("buf_we", rtl.Vector("0"))},
		Else: append(append([]rtl.Stmt{}, store...), rtl.Hold{}),
	}}
	if diff := cmp.Diff(wantDrain, states[2].Body); diff != "" {
		t.Fatalf("recv_2 (-want +got):\n%s", diff)
	}
}

func TestSendScalarStages(t *testing.T) {
	ch := channel(t, ir.Send, 1, "out", 32, [2]string{"a", "16"}, [2]string{"b", "16"}, [2]string{"c", "8"})
	states := Send(ch, rtl.Resume{})
	want := []string{"out_send_0", "out_send_1", "out_send_2", "out_send_3"}
	if diff := cmp.Diff(want, names(states)); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}
	wantHandshake := []rtl.Stmt{
		rtl.Set("UPL_out_req", rtl.Logic(true)),
		rtl.If{Cond: rtl.High("UPL_out_ack"), Then: []rtl.Stmt{rtl.Goto{State: "out_send_1"}}, Else: []rtl.Stmt{rtl.Hold{}}},
	}
	if diff := cmp.Diff(wantHandshake, states[0].Body); diff != "" {
		t.Fatalf("send_0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]rtl.Stmt{rtl.Goto{State: "out_send_2"}}, states[1].Body); diff != "" {
		t.Fatalf("send_1 (-want +got):\n%s", diff)
	}
	wantFirst := []rtl.Stmt{
		rtl.Set("UPL_out_req", rtl.Logic(false)),
		rtl.Assign{Target: rtl.Slice{Name: "UPL_out_data", Hi: 31, Lo: 16}, Value: rtl.Ref{Name: "a"}},
		rtl.Assign{Target: rtl.Slice{Name: "UPL_out_data", Hi: 15, Lo: 0}, Value: rtl.Ref{Name: "b"}},
		rtl.Set("UPL_out_en", rtl.Logic(true)),
		rtl.Goto{State: "out_send_3"},
	}
	if diff := cmp.Diff(wantFirst, states[2].Body); diff != "" {
		t.Fatalf("send_2 (-want +got):\n%s", diff)
	}
	wantLast := []rtl.Stmt{
		rtl.Set("UPL_out_req", rtl.Logic(false)),
		rtl.Assign{Target: rtl.Slice{Name: "UPL_out_data", Hi: 31, Lo: 24}, Value: rtl.Ref{Name: "c"}},
		rtl.Set("UPL_out_en", rtl.Logic(true)),
		rtl.Resume{},
	}
	if diff := cmp.Diff(wantLast, states[3].Body); diff != "" {
		t.Fatalf("send_3 (-want +got):\n%s", diff)
	}
}

func TestSendStoragePrefetch(t *testing.T) {
	t.Run("storage first", func(t *testing.T) {
		ch := channel(t, ir.Send, 1, "out", 32, [2]string{"buf", "<96"})
		states := Send(ch, rtl.Resume{})
		if got := countIncrements(states[1].Body, "buf_raddr"); got != 1 {
			t.Fatalf("send_1 must prefetch once, got %d", got)
		}
		if got := countIncrements(states[2].Body, "buf_raddr"); got != 1 {
			t.Fatalf("storage stage must prefetch once per word, got %d", got)
		}
	})
	t.Run("storage after header", func(t *testing.T) {
		ch := channel(t, ir.Send, 1, "out", 32, [2]string{"len", "32"}, [2]string{"buf", "<96"})
		states := Send(ch, rtl.Resume{})
		if got := countIncrements(states[1].Body, "buf_raddr"); got != 0 {
			t.Fatalf("send_1 must not prefetch when storage is not first, got %d", got)
		}
		if got := countIncrements(states[2].Body, "buf_raddr"); got != 1 {
			t.Fatalf("stage before storage must prefetch, got %d", got)
		}
		handshake := states[0].Body
		if diff := cmp.Diff(rtl.Set("buf_send_words", rtl.Fill(false)), handshake[1]); diff != "" {
			t.Fatalf("send_0 must clear the sent counter (-want +got):\n%s", diff)
		}
		acked := handshake[2].(rtl.If).Then
		wantReset := rtl.Set("buf_raddr", rtl.Fill(false))
		wantReset.Comment = "for next next"
		if diff := cmp.Diff(wantReset, acked[0]); diff != "" {
			t.Fatalf("acknowledge must clear the read address (-want +got):\n%s", diff)
		}
	})
}

func countIncrements(body []rtl.Stmt, name string) int {
	n := 0
	rtl.Walk(body, func(s rtl.Stmt) bool {
		if a, ok := s.(rtl.Assign); ok {
			if inc, ok := a.Value.(rtl.Inc); ok && inc.Name == name {
				n++
			}
		}
		return true
	})
	return n
}

func echoEntity(t *testing.T) *ir.Entity {
	t.Helper()
	in := channel(t, ir.Receive, 0, "in", 32, [2]string{"len", "32"}, [2]string{"buf", "<96"})
	out := channel(t, ir.Send, 1, "out", 32, [2]string{"len", "32"}, [2]string{"buf", "<96"})
	return &ir.Entity{
		Name:         "echo",
		RecvChannels: []*ir.Channel{in},
		SendChannels: []*ir.Channel{out},
		Stages: []*ir.UserStage{{
			Name:    "echo",
			Actions: []ir.Action{ir.InitiateSend{Channel: "out", Next: "IDLE"}},
		}},
	}
}

func TestAssembleStateOrder(t *testing.T) {
	m, err := Assemble(echoEntity(t), Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []string{
		"IDLE", "echo",
		"out_send_0", "out_send_1", "out_send_2", "out_send_3",
		"in_recv_0", "in_recv_1", "in_recv_2",
	}
	if diff := cmp.Diff(want, m.StateNames()); diff != "" {
		t.Fatalf("state order (-want +got):\n%s", diff)
	}
	if m.Register != "gupl_state" || m.NextRegister() != "gupl_state_next" {
		t.Fatalf("unexpected registers %s/%s", m.Register, m.NextRegister())
	}
	wantStage := []rtl.Stmt{rtl.Goto{State: "out_send_0"}, rtl.SetNext{State: "IDLE"}}
	if diff := cmp.Diff(wantStage, m.State("echo").Body); diff != "" {
		t.Fatalf("user stage lowering (-want +got):\n%s", diff)
	}
}

func TestAssembleIdleBootstrap(t *testing.T) {
	e := echoEntity(t)
	e.IdleBody = "  led <= '0';\n"
	m, err := Assemble(e, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []rtl.Stmt{
		rtl.Text{Line: "  led <= '0';"},
		rtl.Goto{State: "in_recv_0"},
		rtl.SetNext{State: "echo"},
		rtl.Set("UPL_out_en", rtl.Logic(false)),
		rtl.Set("UPL_out_req", rtl.Logic(false)),
		rtl.Set("UPL_out_data", rtl.Fill(false)),
		rtl.Set("UPL_in_ack", rtl.Logic(false)),
		rtl.Set("buf_we", rtl.Fill(false)),
		rtl.Set("buf_waddr", rtl.Fill(true)),
		rtl.Set("buf_raddr", rtl.Fill(false)),
		rtl.Set("buf_recv_words", rtl.Fill(false)),
		rtl.Set("buf_send_words", rtl.Fill(false)),
	}
	if diff := cmp.Diff(want, m.State("IDLE").Body); diff != "" {
		t.Fatalf("idle body (-want +got):\n%s", diff)
	}
}

func TestAssembleIdleWithoutMainReceive(t *testing.T) {
	e := echoEntity(t)
	e.RecvChannels[0].ID = 3
	e.IdleBody = "  count <= (others => '0');\n"
	m, err := Assemble(e, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []rtl.Stmt{rtl.Text{Line: "  count <= (others => '0');"}}
	if diff := cmp.Diff(want, m.State("IDLE").Body); diff != "" {
		t.Fatalf("idle body (-want +got):\n%s", diff)
	}
}

func TestAssembleResetPath(t *testing.T) {
	e := echoEntity(t)
	e.HasReset = true
	e.ResetBody = "  led <= '1';\n"
	m, err := Assemble(e, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []rtl.Stmt{
		rtl.Set("UPL_out_en", rtl.Logic(false)),
		rtl.Set("UPL_out_req", rtl.Logic(false)),
		rtl.Set("UPL_out_data", rtl.Fill(false)),
		rtl.Set("UPL_in_ack", rtl.Logic(false)),
		rtl.Goto{State: "IDLE"},
		rtl.SetNext{State: "IDLE"},
	}
	if diff := cmp.Diff(want, m.Reset); diff != "" {
		t.Fatalf("reset path (-want +got):\n%s", diff)
	}
	if !m.HasUserReset || len(m.UserReset) != 1 || m.UserReset[0] != "  led <= '1';" {
		t.Fatalf("user reset lines %+v", m.UserReset)
	}
}

func TestAssembleRejectsUnknownTargets(t *testing.T) {
	e := echoEntity(t)
	e.Stages[0].Actions = append(e.Stages[0].Actions, ir.Continue{Target: "nowhere"})
	_, err := Assemble(e, Options{})
	var unknown *ir.UnknownDirectiveReferenceError
	if !errors.As(err, &unknown) || unknown.Name != "nowhere" {
		t.Fatalf("expected unknown reference to nowhere, got %v", err)
	}

	e = echoEntity(t)
	e.Stages[0].Name = "main"
	if _, err := Assemble(e, Options{}); !errors.As(err, &unknown) || unknown.Name != "echo" {
		t.Fatalf("expected missing resume state to be rejected, got %v", err)
	}
	if _, err := Assemble(e, Options{ResumeState: "main"}); err != nil {
		t.Fatalf("explicit resume state: %v", err)
	}
}

func TestAssembleRejectsDuplicateStates(t *testing.T) {
	e := echoEntity(t)
	e.Stages = append(e.Stages, &ir.UserStage{Name: "in_recv_1"})
	if _, err := Assemble(e, Options{}); err == nil {
		t.Fatalf("expected duplicate state error")
	}
}

func TestDump(t *testing.T) {
	m, err := Assemble(echoEntity(t), Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var buf bytes.Buffer
	Dump(m, &buf)
	want := `machine gupl_state (9 states)
  IDLE -> in_recv_0
  echo -> out_send_0
  out_send_0 -> out_send_1 | self
  out_send_1 -> out_send_2
  out_send_2 -> out_send_3
  out_send_3 -> next | self
  in_recv_0 -> in_recv_1 | self
  in_recv_1 -> in_recv_2
  in_recv_2 -> next | self
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("dump (-want +got):\n%s", diff)
	}
}
