package ir

import (
	"math/bits"

	"github.com/samber/lo"
)

// CounterWidth is the width of storage address and word counters.
const CounterWidth = 32

// StorageBuffer is the register set and memory sizing behind one storage
// field name. Channels sharing the field name share the buffer.
type StorageBuffer struct {
	Name      string
	Width     int
	TotalBits int
	Field     *Field
}

// NewStorageBuffer sizes the buffer of a storage field using the word width
// of its owning channel.
func NewStorageBuffer(f *Field) *StorageBuffer {
	width := 1
	if f.Owner != nil {
		width = f.Owner.Width
	}
	return &StorageBuffer{Name: f.Name, Width: width, TotalBits: f.Bits, Field: f}
}

// Words is the memory depth in words, ceil(TotalBits / Width).
func (b *StorageBuffer) Words() int {
	return (b.TotalBits + b.Width - 1) / b.Width
}

// AddrBits is the number of address bits needed to cover Words, at least 1.
func (b *StorageBuffer) AddrBits() int {
	words := b.Words()
	if words <= 1 {
		return 1
	}
	return bits.Len(uint(words - 1))
}

// Register names are always <field>_{waddr,we,din,raddr,dout,send_words,recv_words}.
func (b *StorageBuffer) WriteAddr() string   { return b.Name + "_waddr" }
func (b *StorageBuffer) WriteEnable() string { return b.Name + "_we" }
func (b *StorageBuffer) WriteData() string   { return b.Name + "_din" }
func (b *StorageBuffer) ReadAddr() string    { return b.Name + "_raddr" }
func (b *StorageBuffer) ReadData() string    { return b.Name + "_dout" }
func (b *StorageBuffer) SentWords() string   { return b.Name + "_send_words" }
func (b *StorageBuffer) RecvWords() string   { return b.Name + "_recv_words" }

// Signals returns the buffer's register declarations in declaration order.
func (b *StorageBuffer) Signals() []Signal {
	return []Signal{
		{Name: b.WriteAddr(), Width: CounterWidth},
		{Name: b.WriteEnable(), Width: 1},
		{Name: b.WriteData(), Width: b.Width},
		{Name: b.ReadAddr(), Width: CounterWidth},
		{Name: b.ReadData(), Width: b.Width},
		{Name: b.SentWords(), Width: CounterWidth},
		{Name: b.RecvWords(), Width: CounterWidth},
	}
}

// FieldSignals returns the local signal declarations a field needs: one
// vector for a scalar, the buffer registers for a storage field.
func FieldSignals(f *Field) []Signal {
	if f.IsStorage() {
		return NewStorageBuffer(f).Signals()
	}
	return []Signal{{Name: f.Name, Width: f.Bits}}
}

// UniqueFields lists every field of the entity once, deduplicated by name
// with the first declaration winning. Send channels are scanned first.
func (e *Entity) UniqueFields() []*Field {
	var all []*Field
	for _, ch := range e.Channels() {
		all = append(all, ch.Fields...)
	}
	return lo.UniqBy(all, func(f *Field) string { return f.Name })
}

// StorageBuffers returns one buffer per unique storage field name.
func (e *Entity) StorageBuffers() []*StorageBuffer {
	storage := lo.Filter(e.UniqueFields(), func(f *Field, _ int) bool { return f.IsStorage() })
	return lo.Map(storage, func(f *Field, _ int) *StorageBuffer { return NewStorageBuffer(f) })
}

// StorageBuffer returns the shared buffer for a storage field name, or nil.
func (e *Entity) StorageBuffer(name string) *StorageBuffer {
	buf, ok := lo.Find(e.StorageBuffers(), func(b *StorageBuffer) bool { return b.Name == name })
	if !ok {
		return nil
	}
	return buf
}
