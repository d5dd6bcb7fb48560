package endpoint

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/bqs/commchannel"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// DefaultChannelDepth is the in-flight ring depth used when Deps does not set
// one.
const DefaultChannelDepth = 128

// Inflight is a fabric request that has been posted and not yet retired.
type Inflight struct {
	Req       driver.Request
	Buf       driver.Mbuf
	StartTick uint64

	done bool
	err  error
}

// PendingRequest is an entry of a RequestSet.
type PendingRequest struct {
	Req       driver.Request
	Owner     *ChannelEntity
	StartTick uint64
}

// RequestSet is the list of fabric requests of all the channel entities of
// one direction. It is shared between the entities and the poller.
type RequestSet struct {
	mu   sync.Mutex
	reqs []PendingRequest
}

// NewRequestSet creates an empty RequestSet.
func NewRequestSet() *RequestSet {
	return &RequestSet{}
}

// Add appends a request.
func (s *RequestSet) Add(r PendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reqs = append(s.reqs, r)
}

// Remove deletes the request and reports whether it was present.
func (s *RequestSet) Remove(req driver.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.reqs {
		if r.Req == req {
			s.reqs = append(s.reqs[:i], s.reqs[i+1:]...)
			return true
		}
	}

	return false
}

// RemoveOwner deletes every request of owner.
func (s *RequestSet) RemoveOwner(owner *ChannelEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.reqs[:0]
	for _, r := range s.reqs {
		if r.Owner != owner {
			kept = append(kept, r)
		}
	}

	s.reqs = kept
}

// Snapshot returns a copy of the requests.
func (s *RequestSet) Snapshot() []PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]PendingRequest(nil), s.reqs...)
}

// Len returns the number of requests.
func (s *RequestSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.reqs)
}

// ChannelEntity sends to or receives from a remote peer over one comm
// channel. Requests are retired in posting order.
type ChannelEntity struct {
	base

	id       commchannel.ID
	ch       *commchannel.Channel
	fabric   driver.Fabric
	alloc    driver.Allocator
	requests *RequestSet
	clock    func() uint64

	inflight *commchannel.Queue[*Inflight]
	byReq    map[driver.Request]*Inflight

	// received holds data that arrived on a source; held holds data a
	// destination could not post yet.
	received  *Buffer
	held      *Buffer
	congested atomic.Bool
	failures  atomic.Uint64
}

// NewChannelEntity creates the runtime entity of a comm tag.
func NewChannelEntity(
	info *entity.Info,
	dir entity.Direction,
	id commchannel.ID,
	ch *commchannel.Channel,
	deps Deps,
) (*ChannelEntity, error) {
	depth := deps.ChannelDepth
	if depth == 0 {
		depth = DefaultChannelDepth
	}

	ring, err := commchannel.NewQueue[*Inflight](depth)
	if err != nil {
		return nil, status.Wrap(status.CodeParamInvalid, "NewChannelEntity", err)
	}

	requests := deps.Requests
	if requests == nil {
		requests = NewRequestSet()
	}

	e := &ChannelEntity{
		id:       id,
		ch:       ch,
		fabric:   deps.Fabric,
		alloc:    deps.Allocator,
		requests: requests,
		clock:    deps.Clock,
		inflight: ring,
		byReq:    make(map[driver.Request]*Inflight),
		received: NewBuffer(info.String()+".received", int(depth)),
		held:     NewBuffer(info.String()+".held", deps.heldDepth()),
	}
	e.init(info, dir, deps.Logger)

	return e, nil
}

// ChannelID returns the id of the comm channel.
func (e *ChannelEntity) ChannelID() commchannel.ID {
	return e.id
}

// Channel returns the comm channel.
func (e *ChannelEntity) Channel() *commchannel.Channel {
	return e.ch
}

// Congested tells if the peer refused a send since the last Flush.
func (e *ChannelEntity) Congested() bool {
	return e.congested.Load()
}

// Failures returns the number of failed requests.
func (e *ChannelEntity) Failures() uint64 {
	return e.failures.Load()
}

// Addrs returns nil. Channel entities are driven by fabric polling.
func (e *ChannelEntity) Addrs() []driver.QueueAddr {
	return nil
}

func (e *ChannelEntity) now() uint64 {
	if e.clock == nil {
		return 0
	}

	return e.clock()
}

func (e *ChannelEntity) track(req driver.Request, buf driver.Mbuf) {
	f := &Inflight{Req: req, Buf: buf, StartTick: e.now()}

	e.inflight.Push(f)
	e.byReq[req] = f
	e.requests.Add(PendingRequest{Req: req, Owner: e, StartTick: f.StartTick})
}

// PostRecv receives one pending message if there is one. It reports whether
// a receive was posted.
func (e *ChannelEntity) PostRecv(context.Context) (bool, error) {
	if err := e.mustBe(entity.DirSrc, "PostRecv"); err != nil {
		return false, err
	}

	pending := e.received.Size() + int(e.inflight.Size())
	if e.inflight.IsFull() || pending >= e.received.Capacity() {
		return false, nil
	}

	env, found, err := e.fabric.Improbe(e.ch)
	if err != nil {
		return false, status.Wrap(status.CodeDriverError, "Improbe", err)
	}

	if !found {
		return false, nil
	}

	buf, err := e.alloc.Alloc(uint64(env.Len))
	if err != nil {
		return false, status.Wrap(status.CodeDriverError, "Alloc", err)
	}

	req, err := e.recvInto(env, buf)
	if err != nil {
		_ = e.alloc.Free(buf)
		return false, status.Wrap(status.CodeDriverError, "Imrecv", err)
	}

	e.track(req, buf)

	return true, nil
}

func (e *ChannelEntity) recvInto(
	env driver.Envelope,
	buf driver.Mbuf,
) (driver.Request, error) {
	if err := e.alloc.SetDataLen(buf, uint64(env.Len)); err != nil {
		return 0, err
	}

	data, err := e.alloc.Data(buf)
	if err != nil {
		return 0, err
	}

	return e.fabric.Imrecv(e.ch, env, data[:env.Len])
}

// OnComplete records the end of a request and retires the finished requests
// at the head of the in-flight ring. Received data becomes available to
// Dequeue. It reports the request error, if any.
func (e *ChannelEntity) OnComplete(req driver.Request, reqErr error) error {
	e.requests.Remove(req)

	f, found := e.byReq[req]
	if !found {
		return status.New(status.CodeInnerError, "OnComplete",
			"%s has no request %d", e.info.Key(), req)
	}

	f.done = true
	f.err = reqErr

	e.retire()

	if reqErr != nil {
		e.failures.Add(1)
		return status.Wrap(status.CodeDriverError, "OnComplete", reqErr)
	}

	return nil
}

func (e *ChannelEntity) retire() {
	for {
		f, found := e.inflight.Front()
		if !found || !f.done {
			return
		}

		e.inflight.Pop()
		delete(e.byReq, f.Req)

		if e.dir == entity.DirDst || f.err != nil {
			_ = e.alloc.Free(f.Buf)
			continue
		}

		e.received.Push(f.Buf)
		e.MarkReady()
	}
}

// Dequeue takes the oldest received buffer.
func (e *ChannelEntity) Dequeue(context.Context) (driver.Mbuf, Result, error) {
	if err := e.mustBe(entity.DirSrc, "Dequeue"); err != nil {
		return 0, Done, err
	}

	buf, found := e.received.Pop()
	if !found {
		e.ready.Store(false)
		return 0, Empty, nil
	}

	return buf, Done, nil
}

// Enqueue sends buf to the peer. The buffer is kept when the peer is
// congested or too many sends are in flight.
func (e *ChannelEntity) Enqueue(
	_ context.Context,
	buf driver.Mbuf,
) (Result, error) {
	if err := e.mustBe(entity.DirDst, "Enqueue"); err != nil {
		_ = e.alloc.Free(buf)
		return Done, err
	}

	if e.held.Size() > 0 || e.inflight.IsFull() {
		return e.hold(buf)
	}

	err := e.send(buf)
	switch {
	case err == nil:
		return Done, nil
	case errors.Is(err, driver.ErrFull):
		e.congested.Store(true)
		return e.hold(buf)
	default:
		_ = e.alloc.Free(buf)
		e.failures.Add(1)

		return Done, status.Wrap(status.CodeDriverError, "Isend", err)
	}
}

func (e *ChannelEntity) hold(buf driver.Mbuf) (Result, error) {
	if !e.held.CanPush() {
		_ = e.alloc.Free(buf)
		return Done, status.Wrap(status.CodeInnerError, "Enqueue",
			ErrHeldOverflow)
	}

	e.held.Push(buf)

	return Full, nil
}

func (e *ChannelEntity) send(buf driver.Mbuf) error {
	n, err := e.alloc.DataLen(buf)
	if err != nil {
		return err
	}

	data, err := e.alloc.Data(buf)
	if err != nil {
		return err
	}

	req, err := e.fabric.Isend(e.ch, data[:n])
	if err != nil {
		return err
	}

	e.track(req, buf)

	return nil
}

// Flush posts held buffers while the peer accepts them. A buffer that fails
// with an error other than congestion is dropped.
func (e *ChannelEntity) Flush(context.Context) (Result, error) {
	e.congested.Store(false)

	for {
		buf, found := e.held.Peek()
		if !found {
			return Done, nil
		}

		if e.inflight.IsFull() {
			return Full, nil
		}

		err := e.send(buf)
		switch {
		case err == nil:
			e.held.Pop()
		case errors.Is(err, driver.ErrFull):
			e.congested.Store(true)
			return Full, nil
		default:
			e.held.Pop()
			_ = e.alloc.Free(buf)
			e.failures.Add(1)

			return Done, status.Wrap(status.CodeDriverError, "Isend", err)
		}
	}
}

// Requests returns the requests of the entity that are in flight.
func (e *ChannelEntity) Requests() []driver.Request {
	reqs := make([]driver.Request, 0, len(e.byReq))
	for req, f := range e.byReq {
		if !f.done {
			reqs = append(reqs, req)
		}
	}

	return reqs
}

// Progress tests the requests of this entity only.
func (e *ChannelEntity) Progress(context.Context) error {
	reqs := e.Requests()
	if len(reqs) == 0 {
		return nil
	}

	done, err := e.fabric.TestSome(reqs)
	if err != nil {
		return status.Wrap(status.CodeDriverError, "TestSome", err)
	}

	var errs []error

	for _, c := range done {
		if err := e.OnComplete(c.Request, c.Err); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Held returns the number of buffers waiting to be posted.
func (e *ChannelEntity) Held() int {
	return e.held.Size()
}

// Outstanding counts held buffers and unretired requests.
func (e *ChannelEntity) Outstanding() int {
	return e.held.Size() + int(e.inflight.Size())
}

// Clear drops received (source) or held (destination) buffers.
func (e *ChannelEntity) Clear(context.Context) error {
	if e.dir == entity.DirSrc {
		e.ready.Store(false)
		return freeAll(e.alloc, e.received.Clear())
	}

	return freeAll(e.alloc, e.held.Clear())
}

// Close frees every buffer and cancels the requests in flight. The buffer of
// a request the fabric refuses to cancel is left allocated, as the fabric may
// still use it.
func (e *ChannelEntity) Close() error {
	e.requests.RemoveOwner(e)

	bufs := append(e.received.Clear(), e.held.Clear()...)

	for {
		f, found := e.inflight.Pop()
		if !found {
			break
		}

		if !f.done {
			if err := e.fabric.Cancel(f.Req); err != nil {
				e.log.Warn().Err(err).
					Uint64("request", uint64(f.Req)).
					Msg("cannot cancel fabric request, leaving its buffer")

				continue
			}
		}

		bufs = append(bufs, f.Buf)
	}

	clear(e.byReq)

	return freeAll(e.alloc, bufs)
}
