package endpoint

import (
	"context"
	"errors"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// ClientState is the state of an async-memory entity.
type ClientState uint8

// Client states. A worker is only started from ClientInit.
const (
	ClientInit ClientState = iota
	ClientWait
	ClientSent
)

func (s ClientState) String() string {
	switch s {
	case ClientInit:
		return "init"
	case ClientWait:
		return "wait"
	default:
		return "sent"
	}
}

type clientResult struct {
	buf   driver.Mbuf
	empty bool
	err   error
}

// ClientEntity moves buffers through the blocking buffer interface of the
// driver. Each blocking call runs on the worker pool; the scheduler polls the
// entity until the call has finished.
type ClientEntity struct {
	base

	addr  driver.QueueAddr
	drv   driver.QueueDriver
	alloc driver.Allocator
	pool  *WorkerPool

	state   ClientState
	pending *future[clientResult]
	result  clientResult
	discard bool

	// current is the buffer the running worker enqueues.
	current driver.Mbuf
	held    *Buffer
}

// NewClientEntity creates the runtime entity of an async-memory queue.
func NewClientEntity(
	info *entity.Info,
	dir entity.Direction,
	deps Deps,
) *ClientEntity {
	e := &ClientEntity{
		addr:  driver.QueueAddr{DeviceID: info.DeviceID, QueueID: info.ID},
		drv:   deps.Driver,
		alloc: deps.Allocator,
		pool:  deps.Pool,
		held:  NewBuffer(info.String()+".held", deps.heldDepth()),
	}
	e.init(info, dir, deps.Logger)

	return e
}

// State returns the current state.
func (e *ClientEntity) State() ClientState {
	return e.state
}

// Addrs returns the hardware queue address.
func (e *ClientEntity) Addrs() []driver.QueueAddr {
	return []driver.QueueAddr{e.addr}
}

func (e *ClientEntity) start(job func(ctx context.Context) clientResult) bool {
	if e.state != ClientInit {
		return false
	}

	f := newFuture[clientResult]()

	started := e.pool.TryGo(func(ctx context.Context) {
		f.set(job(ctx))
	})
	if !started {
		return false
	}

	e.pending = f
	e.state = ClientWait

	return true
}

// poll observes the running worker. It returns true exactly once per
// started worker, when its result is consumed.
func (e *ClientEntity) poll() (clientResult, bool) {
	if e.state == ClientWait {
		r, ok := e.pending.tryGet()
		if !ok {
			return clientResult{}, false
		}

		e.result = r
		e.pending = nil
		e.state = ClientSent
	}

	if e.state != ClientSent {
		return clientResult{}, false
	}

	r := e.result
	e.result = clientResult{}
	e.state = ClientInit

	return r, true
}

func (e *ClientEntity) dequeueJob(ctx context.Context) clientResult {
	n, err := e.drv.Peek(e.addr)
	if errors.Is(err, driver.ErrEmpty) {
		return clientResult{empty: true}
	}

	if err != nil {
		return clientResult{err: err}
	}

	buf, err := e.alloc.Alloc(uint64(n))
	if err != nil {
		return clientResult{err: err}
	}

	data, err := e.alloc.Data(buf)
	if err == nil {
		err = e.drv.DequeueBuffer(ctx, e.addr, [][]byte{data[:n]})
	}

	if err != nil {
		_ = e.alloc.Free(buf)

		if errors.Is(err, driver.ErrEmpty) {
			return clientResult{empty: true}
		}

		return clientResult{err: err}
	}

	return clientResult{buf: buf}
}

// Dequeue polls the dequeue state machine. The first call starts a worker
// and returns Keep; a later call returns the buffer once the worker is done.
func (e *ClientEntity) Dequeue(context.Context) (driver.Mbuf, Result, error) {
	if err := e.mustBe(entity.DirSrc, "Dequeue"); err != nil {
		return 0, Done, err
	}

	if e.state == ClientInit {
		e.start(e.dequeueJob)
		return 0, Keep, nil
	}

	r, finished := e.poll()
	if !finished {
		return 0, Keep, nil
	}

	switch {
	case r.err != nil:
		return 0, Done, status.Wrap(status.CodeDriverError, "Dequeue", r.err)
	case r.empty:
		e.ready.Store(false)
		return 0, Empty, nil
	case e.discard:
		e.discard = false
		_ = e.alloc.Free(r.buf)
		return 0, Empty, nil
	default:
		return r.buf, Done, nil
	}
}

func (e *ClientEntity) enqueueJob(buf driver.Mbuf) func(context.Context) clientResult {
	return func(ctx context.Context) clientResult {
		n, err := e.alloc.DataLen(buf)
		if err != nil {
			return clientResult{buf: buf, err: err}
		}

		data, err := e.alloc.Data(buf)
		if err != nil {
			return clientResult{buf: buf, err: err}
		}

		err = e.drv.EnqueueBuffer(ctx, e.addr, [][]byte{data[:n]})
		if err != nil {
			return clientResult{buf: buf, err: err}
		}

		_ = e.alloc.Free(buf)

		return clientResult{}
	}
}

// Enqueue queues buf for the next worker. It returns Done if the buffer is
// being written and Full if it waits behind another one.
func (e *ClientEntity) Enqueue(
	ctx context.Context,
	buf driver.Mbuf,
) (Result, error) {
	if err := e.mustBe(entity.DirDst, "Enqueue"); err != nil {
		_ = e.alloc.Free(buf)
		return Done, err
	}

	if e.Outstanding() >= e.held.Capacity() {
		_ = e.alloc.Free(buf)
		return Done, status.Wrap(status.CodeInnerError, "Enqueue",
			ErrHeldOverflow)
	}

	e.held.Push(buf)

	return e.Flush(ctx)
}

// Flush consumes a finished worker and starts the next one.
func (e *ClientEntity) Flush(ctx context.Context) (Result, error) {
	if err := e.Progress(ctx); err != nil {
		return Done, err
	}

	if e.state == ClientInit {
		if buf, found := e.held.Pop(); found {
			if e.start(e.enqueueJob(buf)) {
				e.current = buf
			} else {
				e.held.PushFront(buf)
			}
		}
	}

	if e.held.Size() > 0 {
		return Full, nil
	}

	return Done, nil
}

// Progress consumes the result of a finished enqueue worker. A failed write
// is reported exactly once.
func (e *ClientEntity) Progress(context.Context) error {
	if e.dir != entity.DirDst {
		return nil
	}

	r, finished := e.poll()
	if !finished {
		return nil
	}

	e.current = 0

	switch {
	case r.err == nil:
		return nil
	case errors.Is(r.err, driver.ErrFull):
		e.held.PushFront(r.buf)
		return nil
	default:
		_ = e.alloc.Free(r.buf)
		return status.Wrap(status.CodeDriverError, "Enqueue", r.err)
	}
}

// Held returns the number of buffers waiting for a worker.
func (e *ClientEntity) Held() int {
	return e.held.Size()
}

// Outstanding counts held buffers and the one being written.
func (e *ClientEntity) Outstanding() int {
	n := e.held.Size()
	if e.state != ClientInit {
		n++
	}

	return n
}

// Clear drops held buffers. On the source side, a buffer being read is
// dropped when the worker finishes.
func (e *ClientEntity) Clear(context.Context) error {
	if e.dir == entity.DirSrc {
		if e.state != ClientInit {
			e.discard = true
		}

		e.ready.Store(false)

		return nil
	}

	return freeAll(e.alloc, e.held.Clear())
}

// Close frees held buffers. A running worker still owns its buffer.
func (e *ClientEntity) Close() error {
	return freeAll(e.alloc, e.held.Clear())
}
