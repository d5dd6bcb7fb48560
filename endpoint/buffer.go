package endpoint

import (
	"log"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/hooking"
)

// HookPosBufPush marks when a buffer is held by an entity.
var HookPosBufPush = &hooking.HookPos{Name: "Buffer Push"}

// HookPosBufPop marks when a held buffer leaves an entity.
var HookPosBufPop = &hooking.HookPos{Name: "Buffer Pop"}

// A Buffer is a bounded fifo of memory buffers that an entity keeps while
// it cannot pass them on.
type Buffer struct {
	hooking.HookableBase

	name     string
	capacity int
	elements []driver.Mbuf
}

// NewBuffer creates a Buffer.
func NewBuffer(name string, capacity int) *Buffer {
	return &Buffer{
		name:     name,
		capacity: capacity,
	}
}

// Name returns the name of the buffer.
func (b *Buffer) Name() string {
	return b.name
}

// CanPush tells if the buffer has room for one more element.
func (b *Buffer) CanPush() bool {
	return len(b.elements) < b.capacity
}

// Push appends an element. It panics if the buffer is full.
func (b *Buffer) Push(e driver.Mbuf) {
	if len(b.elements) >= b.capacity {
		log.Panic("buffer overflow")
	}

	b.elements = append(b.elements, e)
	b.invoke(HookPosBufPush, e)
}

// PushFront puts an element back at the head. It panics if the buffer is
// full.
func (b *Buffer) PushFront(e driver.Mbuf) {
	if len(b.elements) >= b.capacity {
		log.Panic("buffer overflow")
	}

	b.elements = append([]driver.Mbuf{e}, b.elements...)
	b.invoke(HookPosBufPush, e)
}

// Pop removes the head element.
func (b *Buffer) Pop() (driver.Mbuf, bool) {
	if len(b.elements) == 0 {
		return 0, false
	}

	e := b.elements[0]
	b.elements = b.elements[1:]
	b.invoke(HookPosBufPop, e)

	return e, true
}

// Peek returns the head element.
func (b *Buffer) Peek() (driver.Mbuf, bool) {
	if len(b.elements) == 0 {
		return 0, false
	}

	return b.elements[0], true
}

// Capacity returns the maximum number of elements.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Size returns the number of elements.
func (b *Buffer) Size() int {
	return len(b.elements)
}

// Clear removes all elements and returns them.
func (b *Buffer) Clear() []driver.Mbuf {
	out := b.elements
	b.elements = nil

	return out
}

func (b *Buffer) invoke(pos *hooking.HookPos, e driver.Mbuf) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    pos,
		Item:   e,
	})
}
