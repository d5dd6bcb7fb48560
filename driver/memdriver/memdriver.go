// Package memdriver provides in-memory implementations of the driver
// capabilities. It backs the bqs CLI and the integration tests.
package memdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/bqs/driver"
)

// PrivInfoSize is the size of the private header of every buffer.
const PrivInfoSize = 32

// ErrUnknownBuffer is returned for handles that were never allocated or were
// already freed.
var ErrUnknownBuffer = errors.New("unknown mbuf")

type payload struct {
	data []byte
	refs int
}

type mbuf struct {
	payload *payload
	dataLen uint64
	priv    []byte
}

type queue struct {
	depth int
	items []driver.Mbuf
}

type subKey struct {
	addr driver.QueueAddr
	kind driver.EventKind
}

// Driver is an in-memory QueueDriver, Allocator and EventSource.
type Driver struct {
	mu sync.Mutex

	queues  map[driver.QueueAddr]*queue
	subs    map[subKey]struct{}
	events  []driver.Event
	bufs    map[driver.Mbuf]*mbuf
	nextBuf driver.Mbuf

	subscribeErr map[driver.QueueAddr]error
	bufLatency   time.Duration
}

// New creates an empty Driver.
func New() *Driver {
	return &Driver{
		queues:       make(map[driver.QueueAddr]*queue),
		subs:         make(map[subKey]struct{}),
		bufs:         make(map[driver.Mbuf]*mbuf),
		subscribeErr: make(map[driver.QueueAddr]error),
	}
}

// CreateQueue creates a queue that holds at most depth buffers.
func (d *Driver) CreateQueue(addr driver.QueueAddr, depth int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, found := d.queues[addr]; found {
		return fmt.Errorf("queue %s already exists", addr)
	}

	if depth <= 0 {
		return fmt.Errorf("queue %s: invalid depth %d", addr, depth)
	}

	d.queues[addr] = &queue{depth: depth}

	return nil
}

// DestroyQueue removes a queue and frees what it holds. Later operations on
// the queue fail with driver.ErrNotExist.
func (d *Driver) DestroyQueue(addr driver.QueueAddr) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, found := d.queues[addr]
	if !found {
		return
	}

	for _, b := range q.items {
		d.freeLocked(b)
	}

	delete(d.queues, addr)
	delete(d.subs, subKey{addr, driver.EventEnqueue})
	delete(d.subs, subKey{addr, driver.EventFullToNotFull})
}

// FailSubscribe makes every later Subscribe on addr fail with err. A nil err
// removes the failure.
func (d *Driver) FailSubscribe(addr driver.QueueAddr, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		delete(d.subscribeErr, addr)
		return
	}

	d.subscribeErr[addr] = err
}

// SetBufferLatency makes EnqueueBuffer and DequeueBuffer take at least dur.
func (d *Driver) SetBufferLatency(dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bufLatency = dur
}

// Subscribed tells if events of kind are subscribed on addr.
func (d *Driver) Subscribed(addr driver.QueueAddr, kind driver.EventKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, found := d.subs[subKey{addr, kind}]

	return found
}

// Len returns the number of buffers in a queue.
func (d *Driver) Len(addr driver.QueueAddr) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, found := d.queues[addr]
	if !found {
		return 0
	}

	return len(q.items)
}

// LiveBuffers returns the number of buffers not freed yet.
func (d *Driver) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.bufs)
}

// Put copies data into a new buffer and enqueues it.
func (d *Driver) Put(addr driver.QueueAddr, data []byte) error {
	buf, err := d.Alloc(uint64(len(data)))
	if err != nil {
		return err
	}

	d.mu.Lock()
	b := d.bufs[buf]
	copy(b.payload.data, data)
	d.mu.Unlock()

	if err := d.Enqueue(addr, buf); err != nil {
		_ = d.Free(buf)
		return err
	}

	return nil
}

// Take dequeues a buffer and returns its data and private header.
func (d *Driver) Take(addr driver.QueueAddr) (data, priv []byte, err error) {
	buf, err := d.Dequeue(addr)
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.bufs[buf]
	data = append([]byte(nil), b.payload.data[:b.dataLen]...)
	priv = append([]byte(nil), b.priv...)
	d.freeLocked(buf)

	return data, priv, nil
}

// Peek returns the data length of the head buffer.
func (d *Driver) Peek(addr driver.QueueAddr) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, found := d.queues[addr]
	if !found {
		return 0, driver.ErrNotExist
	}

	if len(q.items) == 0 {
		return 0, driver.ErrEmpty
	}

	return int(d.bufs[q.items[0]].dataLen), nil
}

// Dequeue removes the head buffer.
func (d *Driver) Dequeue(addr driver.QueueAddr) (driver.Mbuf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dequeueLocked(addr)
}

func (d *Driver) dequeueLocked(addr driver.QueueAddr) (driver.Mbuf, error) {
	q, found := d.queues[addr]
	if !found {
		return 0, driver.ErrNotExist
	}

	if len(q.items) == 0 {
		return 0, driver.ErrEmpty
	}

	wasFull := len(q.items) >= q.depth

	buf := q.items[0]
	q.items = q.items[1:]

	if wasFull {
		d.raiseLocked(addr, driver.EventFullToNotFull)
	}

	return buf, nil
}

// Enqueue appends a buffer to a queue. The queue takes the buffer over.
func (d *Driver) Enqueue(addr driver.QueueAddr, buf driver.Mbuf) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.enqueueLocked(addr, buf)
}

func (d *Driver) enqueueLocked(addr driver.QueueAddr, buf driver.Mbuf) error {
	q, found := d.queues[addr]
	if !found {
		return driver.ErrNotExist
	}

	if _, found := d.bufs[buf]; !found {
		return ErrUnknownBuffer
	}

	if len(q.items) >= q.depth {
		return driver.ErrFull
	}

	q.items = append(q.items, buf)
	d.raiseLocked(addr, driver.EventEnqueue)

	return nil
}

func (d *Driver) raiseLocked(addr driver.QueueAddr, kind driver.EventKind) {
	if _, found := d.subs[subKey{addr, kind}]; !found {
		return
	}

	d.events = append(d.events, driver.Event{Addr: addr, Kind: kind})
}

func (d *Driver) wait(ctx context.Context) error {
	d.mu.Lock()
	latency := d.bufLatency
	d.mu.Unlock()

	if latency == 0 {
		return ctx.Err()
	}

	t := time.NewTimer(latency)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DequeueBuffer removes the head buffer and copies its data into iov.
func (d *Driver) DequeueBuffer(
	ctx context.Context,
	addr driver.QueueAddr,
	iov [][]byte,
) error {
	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.dequeueLocked(addr)
	if err != nil {
		return err
	}

	b := d.bufs[buf]
	data := b.payload.data[:b.dataLen]

	for _, v := range iov {
		n := copy(v, data)
		data = data[n:]
	}

	d.freeLocked(buf)

	return nil
}

// EnqueueBuffer copies iov into a new buffer and enqueues it.
func (d *Driver) EnqueueBuffer(
	ctx context.Context,
	addr driver.QueueAddr,
	iov [][]byte,
) error {
	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var data []byte
	for _, v := range iov {
		data = append(data, v...)
	}

	buf := d.allocLocked(uint64(len(data)))
	copy(d.bufs[buf].payload.data, data)

	if err := d.enqueueLocked(addr, buf); err != nil {
		d.freeLocked(buf)
		return err
	}

	return nil
}

// Subscribe starts raising events of kind on addr.
func (d *Driver) Subscribe(addr driver.QueueAddr, kind driver.EventKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, found := d.subscribeErr[addr]; found {
		return err
	}

	if _, found := d.queues[addr]; !found {
		return driver.ErrNotExist
	}

	d.subs[subKey{addr, kind}] = struct{}{}

	return nil
}

// Unsubscribe stops raising events of kind on addr.
func (d *Driver) Unsubscribe(addr driver.QueueAddr, kind driver.EventKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, found := d.queues[addr]; !found {
		return driver.ErrNotExist
	}

	delete(d.subs, subKey{addr, kind})

	return nil
}

// Status tells if a queue holds data.
func (d *Driver) Status(addr driver.QueueAddr) (driver.QueueStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, found := d.queues[addr]
	if !found {
		return driver.StatusEmpty, driver.ErrNotExist
	}

	if len(q.items) == 0 {
		return driver.StatusEmpty, nil
	}

	return driver.StatusNormal, nil
}

// PollEvents returns at most max pending events. A max of 0 or less returns
// all of them.
func (d *Driver) PollEvents(max int) []driver.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.events)
	if max > 0 && max < n {
		n = max
	}

	out := make([]driver.Event, n)
	copy(out, d.events[:n])
	d.events = d.events[n:]

	return out
}

// Alloc allocates a buffer of size bytes.
func (d *Driver) Alloc(size uint64) (driver.Mbuf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.allocLocked(size), nil
}

func (d *Driver) allocLocked(size uint64) driver.Mbuf {
	d.nextBuf++
	d.bufs[d.nextBuf] = &mbuf{
		payload: &payload{data: make([]byte, size), refs: 1},
		dataLen: size,
		priv:    make([]byte, PrivInfoSize),
	}

	return d.nextBuf
}

// Free releases a buffer handle.
func (d *Driver) Free(buf driver.Mbuf) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, found := d.bufs[buf]; !found {
		return ErrUnknownBuffer
	}

	d.freeLocked(buf)

	return nil
}

func (d *Driver) freeLocked(buf driver.Mbuf) {
	b, found := d.bufs[buf]
	if !found {
		return
	}

	b.payload.refs--
	delete(d.bufs, buf)
}

// DataLen returns the valid data length of a buffer.
func (d *Driver) DataLen(buf driver.Mbuf) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, found := d.bufs[buf]
	if !found {
		return 0, ErrUnknownBuffer
	}

	return b.dataLen, nil
}

// SetDataLen sets the valid data length of a buffer.
func (d *Driver) SetDataLen(buf driver.Mbuf, n uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, found := d.bufs[buf]
	if !found {
		return ErrUnknownBuffer
	}

	if n > uint64(len(b.payload.data)) {
		return fmt.Errorf("data length %d exceeds buffer size %d",
			n, len(b.payload.data))
	}

	b.dataLen = n

	return nil
}

// PrivInfo returns the private header of a buffer.
func (d *Driver) PrivInfo(buf driver.Mbuf) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, found := d.bufs[buf]
	if !found {
		return nil, ErrUnknownBuffer
	}

	return b.priv, nil
}

// Data returns the data area of a buffer.
func (d *Driver) Data(buf driver.Mbuf) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, found := d.bufs[buf]
	if !found {
		return nil, ErrUnknownBuffer
	}

	return b.payload.data, nil
}

// CopyRef creates a new handle sharing the data of buf. The private header
// is copied.
func (d *Driver) CopyRef(buf driver.Mbuf) (driver.Mbuf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, found := d.bufs[buf]
	if !found {
		return 0, ErrUnknownBuffer
	}

	b.payload.refs++
	d.nextBuf++
	d.bufs[d.nextBuf] = &mbuf{
		payload: b.payload,
		dataLen: b.dataLen,
		priv:    append([]byte(nil), b.priv...),
	}

	return d.nextBuf, nil
}
