package endpoint

import (
	"context"
	"errors"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// QueueEntity drives a plain hardware queue through the non-blocking mbuf
// interface of the driver.
type QueueEntity struct {
	base

	addr  driver.QueueAddr
	drv   driver.QueueDriver
	alloc driver.Allocator
	held  *Buffer
}

// NewQueueEntity creates the runtime entity of a hardware queue.
func NewQueueEntity(
	info *entity.Info,
	dir entity.Direction,
	deps Deps,
) *QueueEntity {
	e := &QueueEntity{
		addr:  driver.QueueAddr{DeviceID: info.DeviceID, QueueID: info.ID},
		drv:   deps.Driver,
		alloc: deps.Allocator,
		held:  NewBuffer(info.String()+".held", deps.heldDepth()),
	}
	e.init(info, dir, deps.Logger)

	return e
}

// Addr returns the hardware queue address.
func (e *QueueEntity) Addr() driver.QueueAddr {
	return e.addr
}

// Addrs returns the hardware queue address.
func (e *QueueEntity) Addrs() []driver.QueueAddr {
	return []driver.QueueAddr{e.addr}
}

// Dequeue takes the head buffer of the queue.
func (e *QueueEntity) Dequeue(context.Context) (driver.Mbuf, Result, error) {
	if err := e.mustBe(entity.DirSrc, "Dequeue"); err != nil {
		return 0, Done, err
	}

	buf, err := e.drv.Dequeue(e.addr)
	switch {
	case err == nil:
		return buf, Done, nil
	case errors.Is(err, driver.ErrEmpty):
		e.ready.Store(false)
		return 0, Empty, nil
	default:
		return 0, Done, status.Wrap(status.CodeDriverError, "Dequeue", err)
	}
}

// Enqueue appends buf to the queue, keeping it if the queue is full.
func (e *QueueEntity) Enqueue(
	_ context.Context,
	buf driver.Mbuf,
) (Result, error) {
	if err := e.mustBe(entity.DirDst, "Enqueue"); err != nil {
		_ = e.alloc.Free(buf)
		return Done, err
	}

	if e.held.Size() > 0 {
		return e.hold(buf)
	}

	err := e.drv.Enqueue(e.addr, buf)
	switch {
	case err == nil:
		return Done, nil
	case errors.Is(err, driver.ErrFull):
		return e.hold(buf)
	default:
		_ = e.alloc.Free(buf)
		return Done, status.Wrap(status.CodeDriverError, "Enqueue", err)
	}
}

func (e *QueueEntity) hold(buf driver.Mbuf) (Result, error) {
	if !e.held.CanPush() {
		_ = e.alloc.Free(buf)
		return Done, status.Wrap(status.CodeInnerError, "Enqueue",
			ErrHeldOverflow)
	}

	e.held.Push(buf)

	return Full, nil
}

// Flush retries the held buffers in order.
func (e *QueueEntity) Flush(context.Context) (Result, error) {
	for {
		buf, found := e.held.Peek()
		if !found {
			return Done, nil
		}

		err := e.drv.Enqueue(e.addr, buf)
		switch {
		case err == nil:
			e.held.Pop()
		case errors.Is(err, driver.ErrFull):
			return Full, nil
		default:
			e.held.Pop()
			_ = e.alloc.Free(buf)

			return Done, status.Wrap(status.CodeDriverError, "Flush", err)
		}
	}
}

// Held returns the number of buffers waiting for room in the queue.
func (e *QueueEntity) Held() int {
	return e.held.Size()
}

// Outstanding equals Held: once the driver accepts a buffer it is delivered.
func (e *QueueEntity) Outstanding() int {
	return e.held.Size()
}

// Progress does nothing; queue operations complete synchronously.
func (e *QueueEntity) Progress(context.Context) error {
	return nil
}

// Clear drops everything waiting in the queue (source side) or held by the
// entity (destination side).
func (e *QueueEntity) Clear(context.Context) error {
	if e.dir == entity.DirDst {
		return freeAll(e.alloc, e.held.Clear())
	}

	e.ready.Store(false)

	for {
		buf, err := e.drv.Dequeue(e.addr)
		if errors.Is(err, driver.ErrEmpty) {
			return nil
		}

		if err != nil {
			return status.Wrap(status.CodeDriverError, "Clear", err)
		}

		if err := e.alloc.Free(buf); err != nil {
			return status.Wrap(status.CodeDriverError, "Clear", err)
		}
	}
}

// Close frees the held buffers.
func (e *QueueEntity) Close() error {
	return freeAll(e.alloc, e.held.Clear())
}
