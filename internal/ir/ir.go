package ir

import (
	"strconv"

	"gupl/internal/diag"
)

// PortPrefix starts the name of every channel port.
const PortPrefix = "UPL"

// Entity is the top-level hardware description built from one input file.
type Entity struct {
	Name         string
	Version      string
	RecvChannels []*Channel
	SendChannels []*Channel
	Ports        []Port
	Signals      []Signal
	Stages       []*UserStage
	// ResetBody is appended verbatim to the reset path when HasReset is set.
	ResetBody string
	HasReset  bool
	IdleBody  string
	Async     string
	Pos       diag.Pos
}

// ChannelKind tells whether the entity receives or sends on a channel.
type ChannelKind int

const (
	Receive ChannelKind = iota
	Send
)

func (k ChannelKind) String() string {
	if k == Send {
		return "send"
	}
	return "recv"
}

// Channel is one point-to-point UPL link of fixed word width.
type Channel struct {
	Kind   ChannelKind
	ID     int
	Name   string
	Width  int
	Fields []*Field
	Stages []*Stage
	// Storage is the storage field honored by the protocol generators. When
	// several fields are marked storage the last declared one wins; all of
	// them are kept in StorageDecls.
	Storage      *Field
	StorageDecls []*Field
	Pos          diag.Pos

	cursor int
}

// FieldKind classifies a field.
type FieldKind int

const (
	Scalar FieldKind = iota
	Storage
)

// Field is a named datum carried by a channel. For storage fields Bits is
// the declared total size, which only sizes the backing memory.
type Field struct {
	Name   string
	Kind   FieldKind
	Bits   int
	Offset int
	Owner  *Channel
	Pos    diag.Pos
}

// IsStorage reports whether the field is backed by a dual-port memory.
func (f *Field) IsStorage() bool {
	return f != nil && f.Kind == Storage
}

// Stage is the group of fields transferred in one channel word.
type Stage struct {
	Index  int
	Fields []*Field
}

// HasStorage reports whether the stage carries a storage field.
func (s *Stage) HasStorage() bool {
	for _, f := range s.Fields {
		if f.IsStorage() {
			return true
		}
	}
	return false
}

// First returns the first field of the stage.
func (s *Stage) First() *Field {
	if s == nil || len(s.Fields) == 0 {
		return nil
	}
	return s.Fields[0]
}

// Port is a user-declared entity port.
type Port struct {
	Name      string
	Direction PortDirection
	Width     int
	Pos       diag.Pos
}

// PortDirection enumerates supported port directions.
type PortDirection int

const (
	Input PortDirection = iota
	Output
	InOut
)

func (d PortDirection) String() string {
	switch d {
	case Output:
		return "out"
	case InOut:
		return "inout"
	default:
		return "in"
	}
}

// Signal is a local signal declaration. Width 0 declares a single bit. An
// empty Type means std_logic_vector.
type Signal struct {
	Name  string
	Width int
	Type  string
	Pos   diag.Pos
}

// UserStage is a user-authored state whose body was resolved into actions.
type UserStage struct {
	Name    string
	Actions []Action
	Pos     diag.Pos
}

// Action is one resolved step of a user stage body.
type Action interface {
	isAction()
}

// Raw is a verbatim line of user text.
type Raw struct {
	Text string
}

func (Raw) isAction() {}

// Continue moves the machine to Target on the next cycle.
type Continue struct {
	Target string
	Pos    diag.Pos
}

func (Continue) isAction() {}

// InitiateSend starts a transfer on a send channel and resumes at Next when
// it completes.
type InitiateSend struct {
	Channel string
	Next    string
	Pos     diag.Pos
}

func (InitiateSend) isAction() {}

// InitiateReceive starts a transfer on a receive channel and resumes at Next
// when it completes.
type InitiateReceive struct {
	Channel string
	Next    string
	Pos     diag.Pos
}

func (InitiateReceive) isAction() {}

// MainReceive returns the receive channel with id 0, which bootstraps the
// machine out of IDLE, or nil.
func (e *Entity) MainReceive() *Channel {
	for _, ch := range e.RecvChannels {
		if ch.ID == 0 {
			return ch
		}
	}
	return nil
}

// Channels lists send channels first, then receive channels. This is the
// order states, signals and buffers are generated in.
func (e *Entity) Channels() []*Channel {
	all := make([]*Channel, 0, len(e.SendChannels)+len(e.RecvChannels))
	all = append(all, e.SendChannels...)
	return append(all, e.RecvChannels...)
}

// Channel finds a channel by kind and name.
func (e *Entity) Channel(kind ChannelKind, name string) *Channel {
	list := e.RecvChannels
	if kind == Send {
		list = e.SendChannels
	}
	for _, ch := range list {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// Stage finds a user stage by name.
func (e *Entity) Stage(name string) *UserStage {
	for _, st := range e.Stages {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// DataPort, EnablePort, RequestPort and AckPort name the channel ports.
func (c *Channel) DataPort() string    { return c.portName("data") }
func (c *Channel) EnablePort() string  { return c.portName("en") }
func (c *Channel) RequestPort() string { return c.portName("req") }
func (c *Channel) AckPort() string     { return c.portName("ack") }

func (c *Channel) portName(suffix string) string {
	return PortPrefix + "_" + c.Name + "_" + suffix
}

// Ports returns the four handshake ports of the channel in declaration
// order (data, en, req, ack).
func (c *Channel) Ports() []Port {
	in, out := Input, Output
	if c.Kind == Send {
		in, out = Output, Input
	}
	return []Port{
		{Name: c.DataPort(), Direction: in, Width: c.Width},
		{Name: c.EnablePort(), Direction: in},
		{Name: c.RequestPort(), Direction: in},
		{Name: c.AckPort(), Direction: out},
	}
}

// StateCount is the number of generated protocol states.
func (c *Channel) StateCount() int {
	if c.Kind == Send {
		return len(c.Stages) + 2
	}
	return len(c.Stages) + 1
}

// StateName names the i-th generated state of the channel.
func (c *Channel) StateName(i int) string {
	return c.Name + "_" + c.Kind.String() + "_" + strconv.Itoa(i)
}

// StateNames lists every generated state of the channel in order.
func (c *Channel) StateNames() []string {
	names := make([]string, c.StateCount())
	for i := range names {
		names[i] = c.StateName(i)
	}
	return names
}
