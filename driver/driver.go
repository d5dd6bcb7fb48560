// Package driver declares the capabilities the router consumes: the hardware
// queue driver, the memory-buffer allocator, the remote fabric and the source
// of hardware events.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/bqs/commchannel"
)

// Errors reported by drivers.
var (
	ErrEmpty    = errors.New("queue empty")
	ErrFull     = errors.New("queue full")
	ErrNotExist = errors.New("queue not exist")
)

// QueueAddr locates a hardware queue.
type QueueAddr struct {
	DeviceID uint32
	QueueID  uint32
}

func (a QueueAddr) String() string {
	return fmt.Sprintf("dev%d:q%d", a.DeviceID, a.QueueID)
}

// Mbuf is a handle to a driver-owned memory buffer.
type Mbuf uint64

// EventKind is the kind of hardware event a queue can raise.
type EventKind uint8

// Event kinds.
const (
	EventEnqueue EventKind = iota
	EventFullToNotFull
)

func (k EventKind) String() string {
	if k == EventEnqueue {
		return "enqueue"
	}

	return "f2nf"
}

// Event is raised by the hardware when a subscribed condition happens.
type Event struct {
	Addr QueueAddr
	Kind EventKind
}

// QueueStatus reports whether a queue holds data.
type QueueStatus uint8

// Queue statuses.
const (
	StatusEmpty QueueStatus = iota
	StatusNormal
)

// QueueDriver moves buffers in and out of hardware queues.
//
// Peek, Dequeue and Enqueue never block. DequeueBuffer and EnqueueBuffer copy
// data between host memory and a queue and may block until ctx is done.
type QueueDriver interface {
	// Peek returns the data length of the head element.
	Peek(addr QueueAddr) (int, error)
	Dequeue(addr QueueAddr) (Mbuf, error)
	Enqueue(addr QueueAddr, buf Mbuf) error
	DequeueBuffer(ctx context.Context, addr QueueAddr, iov [][]byte) error
	EnqueueBuffer(ctx context.Context, addr QueueAddr, iov [][]byte) error
	Subscribe(addr QueueAddr, kind EventKind) error
	Unsubscribe(addr QueueAddr, kind EventKind) error
	Status(addr QueueAddr) (QueueStatus, error)
}

// Allocator manages memory buffers.
type Allocator interface {
	Alloc(size uint64) (Mbuf, error)
	Free(buf Mbuf) error
	DataLen(buf Mbuf) (uint64, error)
	SetDataLen(buf Mbuf, n uint64) error
	// PrivInfo returns the writable private header of the buffer.
	PrivInfo(buf Mbuf) ([]byte, error)
	// Data returns the whole data area of the buffer.
	Data(buf Mbuf) ([]byte, error)
	// CopyRef returns a new handle sharing the data of buf.
	CopyRef(buf Mbuf) (Mbuf, error)
}

// Request is a handle to an asynchronous fabric operation.
type Request uint64

// Envelope describes a message found by Improbe.
type Envelope struct {
	Handle uint64
	Len    int
}

// Completion reports the end of a fabric operation.
type Completion struct {
	Request Request
	Err     error
}

// Fabric is an HCCL-like remote communication library.
type Fabric interface {
	Isend(ch *commchannel.Channel, data []byte) (Request, error)
	Improbe(ch *commchannel.Channel) (Envelope, bool, error)
	Imrecv(ch *commchannel.Channel, env Envelope, buf []byte) (Request, error)
	// TestSome returns the completions of the requests that finished.
	TestSome(reqs []Request) ([]Completion, error)
	// Cancel withdraws a posted request. Once it returns nil, the fabric no
	// longer touches the buffer of the request and never reports it.
	Cancel(req Request) error
}

// EventSource yields pending hardware events without blocking.
type EventSource interface {
	PollEvents(max int) []Event
}
