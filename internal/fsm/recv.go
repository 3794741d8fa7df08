package fsm

import (
	"gupl/internal/ir"
	"gupl/internal/rtl"
)

// Receive generates the states recv_0 .. recv_N that unpack the word stream
// of a receive channel. done is the statement that ends a completed
// transfer; the assembler passes rtl.Resume{}.
func Receive(ch *ir.Channel, done rtl.Stmt) []*State {
	states := make([]*State, 0, ch.StateCount())
	for i, stage := range ch.Stages {
		st := &State{Name: ch.StateName(i), Channel: ch}
		if i == 0 {
			// One enable sample both drops ack and admits the first word.
			st.Body = append(st.Body, rtl.If{
				Cond: rtl.High(ch.EnablePort()),
				Then: []rtl.Stmt{
					rtl.Set(ch.AckPort(), rtl.Logic(false)),
					rtl.Goto{State: ch.StateName(1)},
				},
				Else: []rtl.Stmt{
					rtl.Set(ch.AckPort(), rtl.Logic(true)),
					rtl.Hold{},
				},
			})
		} else {
			st.Body = append(st.Body, rtl.Set(ch.AckPort(), rtl.Logic(false)))
		}
		st.Body = append(st.Body, unpackStage(ch, stage)...)
		if i > 0 {
			st.Body = append(st.Body, rtl.Goto{State: ch.StateName(i + 1)})
		}
		states = append(states, st)
	}
	return append(states, drainState(ch, done))
}

// unpackStage assigns each scalar field its slice of the incoming word and
// streams storage fields into their buffers while enable is high.
func unpackStage(ch *ir.Channel, stage *ir.Stage) []rtl.Stmt {
	var body []rtl.Stmt
	pos := ch.Width
	for _, f := range stage.Fields {
		if f.IsStorage() {
			buf := ir.NewStorageBuffer(f)
			body = append(body, rtl.If{
				Cond: rtl.High(ch.EnablePort()),
				Then: storeWord(ch, buf),
				Else: []rtl.Stmt{rtl.Set(buf.WriteEnable(), rtl.Vector("0"))},
			})
			continue
		}
		body = append(body, rtl.Set(f.Name, rtl.Slice{Name: ch.DataPort(), Hi: pos - 1, Lo: pos - f.Bits}))
		pos -= f.Bits
	}
	return body
}

func storeWord(ch *ir.Channel, buf *ir.StorageBuffer) []rtl.Stmt {
	return []rtl.Stmt{
		rtl.Increment(buf.WriteAddr()),
		rtl.Set(buf.WriteEnable(), rtl.Vector("1")),
		rtl.Set(buf.WriteData(), rtl.Ref{Name: ch.DataPort()}),
		rtl.Increment(buf.RecvWords()),
	}
}

// drainState is recv_N. Without a storage field the transfer is complete.
// With one, trailing words keep streaming into the buffer until the sender
// drops enable.
func drainState(ch *ir.Channel, done rtl.Stmt) *State {
	st := &State{Name: ch.StateName(len(ch.Stages)), Channel: ch}
	if ch.Storage == nil {
		st.Body = []rtl.Stmt{done}
		return st
	}
	buf := ir.NewStorageBuffer(ch.Storage)
	st.Body = []rtl.Stmt{rtl.If{
		Cond: rtl.Low(ch.EnablePort()),
		Then: []rtl.Stmt{
			done,
			rtl.Set(buf.WriteEnable(), rtl.Vector("0")),
		},
		Else: append(storeWord(ch, buf), rtl.Hold{}),
	}}
	return st
}
