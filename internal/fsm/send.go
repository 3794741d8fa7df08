package fsm

import (
	"gupl/internal/ir"
	"gupl/internal/rtl"
)

// Send generates the states send_0 .. send_{N+1} that pack fields and
// storage reads into the outgoing word stream of a send channel.
//
// The storage memory has one cycle of read latency, so the read address is
// always advanced one cycle before the word it selects is driven: it is
// cleared on acknowledge, bumped in send_1 or in the stage before the
// storage stage, and bumped again for every word consumed.
func Send(ch *ir.Channel, done rtl.Stmt) []*State {
	var storage *ir.StorageBuffer
	if ch.Storage != nil {
		storage = ir.NewStorageBuffer(ch.Storage)
	}

	handshake := &State{Name: ch.StateName(0), Channel: ch}
	handshake.Body = append(handshake.Body, rtl.Set(ch.RequestPort(), rtl.Logic(true)))
	var acked []rtl.Stmt
	if storage != nil {
		handshake.Body = append(handshake.Body, rtl.Set(storage.SentWords(), rtl.Fill(false)))
		acked = append(acked, prefetch(rtl.Set(storage.ReadAddr(), rtl.Fill(false))))
	}
	acked = append(acked, rtl.Goto{State: ch.StateName(1)})
	handshake.Body = append(handshake.Body, rtl.If{
		Cond: rtl.High(ch.AckPort()),
		Then: acked,
		Else: []rtl.Stmt{rtl.Hold{}},
	})

	settle := &State{Name: ch.StateName(1), Channel: ch}
	if len(ch.Stages) == 0 {
		settle.Body = append(settle.Body, done)
		return []*State{handshake, settle}
	}
	settle.Body = append(settle.Body, rtl.Goto{State: ch.StateName(2)})
	if storage != nil && ch.Stages[0].First() == ch.Storage {
		settle.Body = append(settle.Body, prefetch(rtl.Increment(storage.ReadAddr())))
	}

	states := []*State{handshake, settle}
	for i := range ch.Stages {
		states = append(states, packStage(ch, storage, i, done))
	}
	return states
}

// prefetch marks a read address update that selects the word two cycles
// ahead.
func prefetch(a rtl.Assign) rtl.Assign {
	a.Comment = "for next next"
	return a
}

func packStage(ch *ir.Channel, storage *ir.StorageBuffer, i int, done rtl.Stmt) *State {
	stage := ch.Stages[i]
	st := &State{Name: ch.StateName(i + 2), Channel: ch}
	st.Body = append(st.Body, rtl.Set(ch.RequestPort(), rtl.Logic(false)))

	pos := ch.Width
	for _, f := range stage.Fields {
		if f.IsStorage() {
			st.Body = append(st.Body, streamWord(ch, ir.NewStorageBuffer(f), done))
			continue
		}
		st.Body = append(st.Body, rtl.Assign{
			Target: rtl.Slice{Name: ch.DataPort(), Hi: pos - 1, Lo: pos - f.Bits},
			Value:  rtl.Ref{Name: f.Name},
		})
		pos -= f.Bits
	}

	if storage != nil && i+1 < len(ch.Stages) && ch.Stages[i+1].First() == ch.Storage {
		st.Body = append(st.Body, prefetch(rtl.Increment(storage.ReadAddr())))
	}

	if !stage.HasStorage() {
		st.Body = append(st.Body, rtl.Set(ch.EnablePort(), rtl.Logic(true)))
		if i == len(ch.Stages)-1 {
			st.Body = append(st.Body, done)
		} else {
			st.Body = append(st.Body, rtl.Goto{State: ch.StateName(i + 3)})
		}
	}
	return st
}

// streamWord sends one buffered word per cycle until every received word
// has been sent.
func streamWord(ch *ir.Channel, buf *ir.StorageBuffer, done rtl.Stmt) rtl.Stmt {
	return rtl.If{
		Cond: rtl.Eq{Left: rtl.Ref{Name: buf.RecvWords()}, Right: rtl.Ref{Name: buf.SentWords()}},
		Then: []rtl.Stmt{
			done,
			rtl.Set(ch.EnablePort(), rtl.Logic(false)),
		},
		Else: []rtl.Stmt{
			prefetch(rtl.Increment(buf.ReadAddr())),
			rtl.Set(ch.DataPort(), rtl.Ref{Name: buf.ReadData()}),
			rtl.Increment(buf.SentWords()),
			rtl.Set(ch.EnablePort(), rtl.Logic(true)),
			rtl.Hold{},
		},
	}
}
