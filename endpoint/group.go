package endpoint

import (
	"context"
	"errors"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// GroupEntity combines the entities of the members of a group. As a source
// it takes data from the members in turn. As a destination it copies data to
// every member, or hands each buffer to the next member in turn when the
// group uses the round-robin policy.
type GroupEntity struct {
	base

	alloc   driver.Allocator
	members []Entity
	next    int
}

// NewGroupEntity creates the runtime entity of a group from the entities of
// its members. The group owns the member entities.
func NewGroupEntity(
	info *entity.Info,
	dir entity.Direction,
	members []Entity,
	deps Deps,
) *GroupEntity {
	e := &GroupEntity{
		alloc:   deps.Allocator,
		members: members,
	}
	e.init(info, dir, deps.Logger)

	return e
}

// Members returns the member entities.
func (e *GroupEntity) Members() []Entity {
	return e.members
}

// Addrs returns the hardware queues of all members.
func (e *GroupEntity) Addrs() []driver.QueueAddr {
	var addrs []driver.QueueAddr
	for _, m := range e.members {
		addrs = append(addrs, m.Addrs()...)
	}

	return addrs
}

// Ready tells if any member may have data.
func (e *GroupEntity) Ready() bool {
	for _, m := range e.members {
		if m.Ready() {
			return true
		}
	}

	return false
}

// MarkReady marks every member ready. Members without data turn themselves
// back on the next Dequeue.
func (e *GroupEntity) MarkReady() {
	for _, m := range e.members {
		m.MarkReady()
	}
}

// MarkAddrReady marks the members driven by addr ready.
func (e *GroupEntity) MarkAddrReady(addr driver.QueueAddr) {
	for _, m := range e.members {
		for _, a := range m.Addrs() {
			if a == addr {
				m.MarkReady()
			}
		}
	}
}

// Dequeue takes a buffer from the next member that has one. A member that is
// still reading keeps the turn.
func (e *GroupEntity) Dequeue(ctx context.Context) (driver.Mbuf, Result, error) {
	if err := e.mustBe(entity.DirSrc, "Dequeue"); err != nil {
		return 0, Done, err
	}

	n := len(e.members)
	for i := 0; i < n; i++ {
		idx := (e.next + i) % n
		m := e.members[idx]

		if !m.Ready() {
			continue
		}

		buf, res, err := m.Dequeue(ctx)
		if err != nil {
			e.next = (idx + 1) % n
			return 0, Done, err
		}

		switch res {
		case Done:
			e.next = (idx + 1) % n
			return buf, Done, nil
		case Keep:
			e.next = idx
			return 0, Keep, nil
		}
	}

	return 0, Empty, nil
}

// Enqueue delivers buf to the members.
func (e *GroupEntity) Enqueue(
	ctx context.Context,
	buf driver.Mbuf,
) (Result, error) {
	if err := e.mustBe(entity.DirDst, "Enqueue"); err != nil {
		_ = e.alloc.Free(buf)
		return Done, err
	}

	if len(e.members) == 0 {
		_ = e.alloc.Free(buf)
		return Done, status.New(status.CodeInnerError, "Enqueue",
			"group %s has no member", e.info.Key())
	}

	if e.info.GroupPolicy == entity.PolicyRoundRobin {
		m := e.members[e.next]
		e.next = (e.next + 1) % len(e.members)

		return m.Enqueue(ctx, buf)
	}

	return e.broadcast(ctx, buf)
}

func (e *GroupEntity) broadcast(
	ctx context.Context,
	buf driver.Mbuf,
) (Result, error) {
	var errs []error

	result := Done
	last := len(e.members) - 1

	for i, m := range e.members {
		b := buf

		if i != last {
			ref, err := e.alloc.CopyRef(buf)
			if err != nil {
				errs = append(errs,
					status.Wrap(status.CodeDriverError, "CopyRef", err))
				continue
			}

			b = ref
		}

		res, err := m.Enqueue(ctx, b)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if res == Full {
			result = Full
		}
	}

	return result, errors.Join(errs...)
}

// Flush flushes every member.
func (e *GroupEntity) Flush(ctx context.Context) (Result, error) {
	var errs []error

	result := Done

	for _, m := range e.members {
		res, err := m.Flush(ctx)
		if err != nil {
			errs = append(errs, err)
		}

		if res == Full {
			result = Full
		}
	}

	return result, errors.Join(errs...)
}

// Held sums the held buffers of the members.
func (e *GroupEntity) Held() int {
	n := 0
	for _, m := range e.members {
		n += m.Held()
	}

	return n
}

// Outstanding sums the outstanding buffers of the members.
func (e *GroupEntity) Outstanding() int {
	n := 0
	for _, m := range e.members {
		n += m.Outstanding()
	}

	return n
}

// Progress advances every member.
func (e *GroupEntity) Progress(ctx context.Context) error {
	var errs []error

	for _, m := range e.members {
		if err := m.Progress(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Clear clears every member.
func (e *GroupEntity) Clear(ctx context.Context) error {
	var errs []error

	for _, m := range e.members {
		if err := m.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close closes every member.
func (e *GroupEntity) Close() error {
	var errs []error

	for _, m := range e.members {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
