package sim

import (
	"fmt"

	"gupl/internal/ir"
)

// Peer models a module on the other end of a channel. Tick runs before
// every clock edge; it sees the pre-edge outputs and drives inputs.
type Peer interface {
	Tick(s *Simulator) error
}

// Run resets the machine and advances it cycles times, ticking every peer
// before each edge.
func (s *Simulator) Run(cycles int, peers ...Peer) error {
	if err := s.Reset(); err != nil {
		return err
	}
	for i := 0; i < cycles; i++ {
		for _, p := range peers {
			if err := p.Tick(s); err != nil {
				return err
			}
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// StreamSender feeds words into a receive channel of the machine. It waits
// for ack, then presents one word per cycle with enable high and drops
// enable after the last one.
type StreamSender struct {
	ch      *ir.Channel
	words   []uint64
	started bool
	sent    int
}

func NewStreamSender(ch *ir.Channel, words []uint64) (*StreamSender, error) {
	if ch == nil || ch.Kind != ir.Receive {
		return nil, fmt.Errorf("sim: a stream sender needs a receive channel")
	}
	return &StreamSender{ch: ch, words: words}, nil
}

// Done reports whether every word was presented.
func (p *StreamSender) Done() bool {
	return p.sent == len(p.words)
}

func (p *StreamSender) Tick(s *Simulator) error {
	if !p.started {
		ack, _ := s.Get(p.ch.AckPort())
		p.started = ack == 1
	}
	if !p.started || p.Done() {
		return s.Set(p.ch.EnablePort(), 0)
	}
	if err := s.Set(p.ch.DataPort(), p.words[p.sent]); err != nil {
		return err
	}
	p.sent++
	return s.Set(p.ch.EnablePort(), 1)
}

// Collector acknowledges a send channel of the machine and records every
// word it transfers. A transfer starts with a request; words are taken once
// the request drops. Scalar-only channels deliver one word per stage;
// channels with storage deliver words until enable drops.
type Collector struct {
	ch        *ir.Channel
	words     []uint64
	requested bool
	count     int
}

func NewCollector(ch *ir.Channel) (*Collector, error) {
	if ch == nil || ch.Kind != ir.Send {
		return nil, fmt.Errorf("sim: a collector needs a send channel")
	}
	return &Collector{ch: ch}, nil
}

// Channel is the observed channel.
func (p *Collector) Channel() *ir.Channel {
	return p.ch
}

// Words returns everything collected so far.
func (p *Collector) Words() []uint64 {
	return p.words
}

func (p *Collector) Tick(s *Simulator) error {
	req, _ := s.Get(p.ch.RequestPort())
	en, _ := s.Get(p.ch.EnablePort())
	switch {
	case req == 1:
		if !p.requested {
			p.requested = true
			p.count = 0
		}
	case p.requested && en == 1:
		data, _ := s.Get(p.ch.DataPort())
		p.words = append(p.words, data)
		p.count++
		if p.ch.Storage == nil && p.count == len(p.ch.Stages) {
			p.requested = false
		}
	case p.requested && p.ch.Storage != nil && p.count > 0:
		p.requested = false
	}
	return s.Set(p.ch.AckPort(), req)
}
