// Package endpoint implements the runtime objects that move data in and out
// of bound endpoints: plain device queues, async-memory client queues, remote
// channel tags and groups of them.
package endpoint

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// Result tells the caller how an operation ended.
type Result uint8

// Results.
const (
	// Done means the operation finished.
	Done Result = iota
	// Keep means the operation is in progress and must be polled again.
	Keep
	// Empty means a source has nothing to give.
	Empty
	// Full means a destination kept the buffer and will retry on Flush.
	Full
)

func (r Result) String() string {
	switch r {
	case Done:
		return "done"
	case Keep:
		return "keep"
	case Empty:
		return "empty"
	default:
		return "full"
	}
}

// ErrHeldOverflow is returned when a destination cannot hold one more buffer.
var ErrHeldOverflow = errors.New("held buffer overflow")

// An Entity is the live state of one endpoint in one direction.
type Entity interface {
	Info() *entity.Info
	Key() entity.Key
	Dir() entity.Direction

	// Ready tells if a source may have data to give.
	Ready() bool
	MarkReady()

	// Dequeue takes one buffer from a source.
	Dequeue(ctx context.Context) (driver.Mbuf, Result, error)

	// Enqueue hands a buffer over to a destination. The entity owns the
	// buffer afterwards and frees it if it cannot be delivered.
	Enqueue(ctx context.Context, buf driver.Mbuf) (Result, error)

	// Flush retries the buffers a destination holds. It returns Done when
	// nothing is held anymore.
	Flush(ctx context.Context) (Result, error)

	// Held returns the number of buffers a destination keeps because the
	// downstream is full.
	Held() int

	// Outstanding returns the number of buffers handed to a destination
	// that have not been acknowledged yet.
	Outstanding() int

	// Progress advances asynchronous operations without starting new ones.
	Progress(ctx context.Context) error

	// Clear discards the data waiting at the entity.
	Clear(ctx context.Context) error

	// Addrs returns the hardware queues whose events drive the entity.
	Addrs() []driver.QueueAddr

	SetNeedTransID(need bool)
	NeedTransID() bool

	// Close releases every buffer the entity holds.
	Close() error
}

// Deps bundles what entities need from the outside.
type Deps struct {
	Driver    driver.QueueDriver
	Allocator driver.Allocator
	Fabric    driver.Fabric
	Pool      *WorkerPool
	Requests  *RequestSet
	Clock     func() uint64
	Logger    zerolog.Logger

	// HeldDepth bounds the buffers a destination keeps.
	HeldDepth int
	// ChannelDepth is the depth of the in-flight ring of channel entities.
	ChannelDepth uint32
}

func (d Deps) heldDepth() int {
	if d.HeldDepth <= 0 {
		return 64
	}

	return d.HeldDepth
}

func (d Deps) now() uint64 {
	if d.Clock == nil {
		return 0
	}

	return d.Clock()
}

type base struct {
	info        entity.Info
	dir         entity.Direction
	ready       atomic.Bool
	needTransID atomic.Bool
	log         zerolog.Logger
}

func (b *base) init(
	info *entity.Info,
	dir entity.Direction,
	log zerolog.Logger,
) {
	b.info = info.Detached()
	b.dir = dir
	b.log = log.With().
		Stringer("entity", info.Key()).
		Stringer("dir", dir).
		Logger()
}

func (b *base) Info() *entity.Info       { return &b.info }
func (b *base) Key() entity.Key          { return b.info.Key() }
func (b *base) Dir() entity.Direction    { return b.dir }
func (b *base) Ready() bool              { return b.ready.Load() }
func (b *base) MarkReady()               { b.ready.Store(true) }
func (b *base) SetNeedTransID(need bool) { b.needTransID.Store(need) }
func (b *base) NeedTransID() bool        { return b.needTransID.Load() }

func (b *base) mustBe(dir entity.Direction, op string) error {
	if b.dir != dir {
		return status.New(status.CodeInnerError, op,
			"%s is a %s entity", b.info.Key(), b.dir)
	}

	return nil
}

func freeAll(alloc driver.Allocator, bufs []driver.Mbuf) error {
	var errs []error

	for _, buf := range bufs {
		if err := alloc.Free(buf); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// pollInterval is how long WaitOutputCompletion sleeps between checks.
const pollInterval = 50 * time.Microsecond

// WaitOutputCompletion blocks until e has no outstanding send, driving its
// progress while waiting.
func WaitOutputCompletion(ctx context.Context, e Entity) error {
	for {
		if _, err := e.Flush(ctx); err != nil {
			return err
		}

		if err := e.Progress(ctx); err != nil {
			return err
		}

		if e.Outstanding() == 0 {
			return nil
		}

		t := time.NewTimer(pollInterval)

		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
