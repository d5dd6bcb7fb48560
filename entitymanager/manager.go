// Package entitymanager owns the runtime entities of one partition.
package entitymanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/commchannel"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/endpoint"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

type entKey struct {
	key entity.Key
	dir entity.Direction
}

// Manager is the registry of the runtime entities of one partition. Entities
// are keyed by endpoint identity and direction.
type Manager struct {
	partition int
	deps      endpoint.Deps
	channels  *commchannel.Manager
	log       zerolog.Logger

	mu       sync.RWMutex
	entities map[entKey]endpoint.Entity
	byAddr   map[driver.QueueAddr][]endpoint.Entity

	src *CommChannels
	dst *CommChannels

	entityFull    atomic.Bool
	notFull       atomic.Bool
	asyncMemDsts  atomic.Int32
	droppedEvents atomic.Uint64
}

// Partition returns the partition the manager serves.
func (m *Manager) Partition() int {
	return m.partition
}

// Channels returns the comm channel manager.
func (m *Manager) Channels() *commchannel.Manager {
	return m.channels
}

// Allocator returns the allocator the entities use.
func (m *Manager) Allocator() driver.Allocator {
	return m.deps.Allocator
}

// Fabric returns the remote fabric the channel entities use.
func (m *Manager) Fabric() driver.Fabric {
	return m.deps.Fabric
}

// SrcChannels returns the channel entities that receive data.
func (m *Manager) SrcChannels() *CommChannels {
	return m.src
}

// DstChannels returns the channel entities that send data.
func (m *Manager) DstChannels() *CommChannels {
	return m.dst
}

func (m *Manager) channelsOf(dir entity.Direction) *CommChannels {
	if dir == entity.DirSrc {
		return m.src
	}

	return m.dst
}

// CreateEntity creates the runtime entity of info in the given direction.
// A group needs the Infos of its members. If the entity already exists, it is
// returned together with status.ErrEntityExist.
func (m *Manager) CreateEntity(
	info *entity.Info,
	dir entity.Direction,
	members ...*entity.Info,
) (endpoint.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entKey{info.Key(), dir}
	if e, found := m.entities[k]; found {
		return e, status.New(status.CodeEntityExist, "CreateEntity",
			"%s %s entity exists", info, dir)
	}

	e, err := m.build(info, dir, members)
	if err != nil {
		return nil, err
	}

	m.entities[k] = e
	for _, addr := range e.Addrs() {
		m.byAddr[addr] = append(m.byAddr[addr], e)
	}

	info.SetEntity(entity.Ref{Partition: m.partition, Key: k.key, Dir: dir})

	m.log.Debug().
		Stringer("entity", k.key).
		Stringer("dir", dir).
		Msg("entity created")

	return e, nil
}

func (m *Manager) build(
	info *entity.Info,
	dir entity.Direction,
	members []*entity.Info,
) (endpoint.Entity, error) {
	switch info.Variant {
	case entity.VariantQueue:
		return m.buildQueue(info, dir), nil
	case entity.VariantTag:
		return m.buildTag(info, dir)
	case entity.VariantGroup:
		return m.buildGroup(info, dir, members)
	default:
		return nil, status.New(status.CodeParamInvalid, "CreateEntity",
			"%s has an unknown variant", info)
	}
}

func (m *Manager) buildQueue(
	info *entity.Info,
	dir entity.Direction,
) endpoint.Entity {
	if info.Class == entity.ClassClientQueue {
		if dir == entity.DirDst {
			m.asyncMemDsts.Add(1)
		}

		return endpoint.NewClientEntity(info, dir, m.deps)
	}

	return endpoint.NewQueueEntity(info, dir, m.deps)
}

func (m *Manager) buildTag(
	info *entity.Info,
	dir entity.Direction,
) (endpoint.Entity, error) {
	if info.Channel == nil {
		return nil, status.New(status.CodeParamInvalid, "CreateEntity",
			"tag %s has no channel", info)
	}

	deps := m.deps
	deps.Requests = m.channelsOf(dir).Requests

	id, ch := m.channels.Acquire(*info.Channel)

	e, err := endpoint.NewChannelEntity(info, dir, id, ch, deps)
	if err != nil {
		m.channels.Release(*ch)
		return nil, err
	}

	m.channelsOf(dir).add(e)

	return e, nil
}

func (m *Manager) buildGroup(
	info *entity.Info,
	dir entity.Direction,
	members []*entity.Info,
) (endpoint.Entity, error) {
	if len(members) == 0 {
		return nil, status.New(status.CodeParamInvalid, "CreateEntity",
			"group %s has no member", info)
	}

	built := make([]endpoint.Entity, 0, len(members))

	for _, mi := range members {
		var (
			e   endpoint.Entity
			err error
		)

		switch mi.Variant {
		case entity.VariantQueue:
			e = m.buildQueue(mi, dir)
		case entity.VariantTag:
			e, err = m.buildTag(mi, dir)
		default:
			err = status.New(status.CodeParamInvalid, "CreateEntity",
				"group %s has nested member %s", info, mi)
		}

		if err != nil {
			for _, b := range built {
				_ = m.forget(b)
			}

			return nil, err
		}

		built = append(built, e)
	}

	return endpoint.NewGroupEntity(info, dir, built, m.deps), nil
}

// Entity returns the runtime entity of key in the given direction.
func (m *Manager) Entity(
	key entity.Key,
	dir entity.Direction,
) (endpoint.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, found := m.entities[entKey{key, dir}]

	return e, found
}

// Entities returns all runtime entities.
func (m *Manager) Entities() []endpoint.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]endpoint.Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}

	return out
}

// Len returns the number of runtime entities.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entities)
}

// DeleteEntity closes and removes the runtime entity of key in the given
// direction. Deleting an absent entity does nothing.
func (m *Manager) DeleteEntity(key entity.Key, dir entity.Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entKey{key, dir}

	e, found := m.entities[k]
	if !found {
		return nil
	}

	delete(m.entities, k)

	for _, addr := range e.Addrs() {
		m.byAddr[addr] = removeEntity(m.byAddr[addr], e)
		if len(m.byAddr[addr]) == 0 {
			delete(m.byAddr, addr)
		}
	}

	err := m.forget(e)

	m.log.Debug().
		Stringer("entity", key).
		Stringer("dir", dir).
		Msg("entity deleted")

	return err
}

// forget closes e and drops what the manager tracks for it.
func (m *Manager) forget(e endpoint.Entity) error {
	switch t := e.(type) {
	case *endpoint.GroupEntity:
		var errs []error

		for _, member := range t.Members() {
			if err := m.forget(member); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(errs...)
	case *endpoint.ChannelEntity:
		m.channelsOf(t.Dir()).remove(t)
		m.channels.Release(*t.Channel())
	case *endpoint.ClientEntity:
		if t.Dir() == entity.DirDst {
			m.asyncMemDsts.Add(-1)
		}
	}

	return e.Close()
}

func removeEntity(list []endpoint.Entity, e endpoint.Entity) []endpoint.Entity {
	for i, x := range list {
		if x == e {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}

// SupplyEvent applies a hardware event to the entities driven by its queue.
// Enqueue events make sources ready. Full-to-not-full events are remembered
// until TakeNotFull. It reports whether any entity was interested.
func (m *Manager) SupplyEvent(ev driver.Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	handled := false

	for _, e := range m.byAddr[ev.Addr] {
		switch {
		case ev.Kind == driver.EventEnqueue && e.Dir() == entity.DirSrc:
			if g, ok := e.(*endpoint.GroupEntity); ok {
				g.MarkAddrReady(ev.Addr)
			} else {
				e.MarkReady()
			}

			handled = true
		case ev.Kind == driver.EventFullToNotFull && e.Dir() == entity.DirDst:
			m.notFull.Store(true)
			handled = true
		}
	}

	if !handled {
		m.droppedEvents.Add(1)
	}

	return handled
}

// DroppedEvents returns the number of events no entity was interested in.
func (m *Manager) DroppedEvents() uint64 {
	return m.droppedEvents.Load()
}

// TakeNotFull reports and clears whether a destination queue has room again
// since the last call.
func (m *Manager) TakeNotFull() bool {
	return m.notFull.Swap(false)
}

// EntityFull tells if a destination refused data since the flag was last
// cleared.
func (m *Manager) EntityFull() bool {
	return m.entityFull.Load()
}

// SetEntityFull raises the entity-full flag.
func (m *Manager) SetEntityFull() {
	m.entityFull.Store(true)
}

// ClearEntityFull lowers the entity-full flag.
func (m *Manager) ClearEntityFull() {
	m.entityFull.Store(false)
}

// HasAsyncMemDst tells if an async-memory destination exists.
func (m *Manager) HasAsyncMemDst() bool {
	return m.asyncMemDsts.Load() > 0
}

// ProbeSrcCommChannel calls fn on every receiving channel entity and returns
// the errors of all calls.
func (m *Manager) ProbeSrcCommChannel(
	fn func(e *endpoint.ChannelEntity) error,
) error {
	var errs []error

	for _, e := range m.src.Entities() {
		if err := fn(e); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// TestSomeCommChannels hands the in-flight requests of the given direction to
// fn.
func (m *Manager) TestSomeCommChannels(
	dir entity.Direction,
	fn func(reqs []endpoint.PendingRequest) error,
) error {
	reqs := m.channelsOf(dir).Requests.Snapshot()
	if len(reqs) == 0 {
		return nil
	}

	return fn(reqs)
}

// Close closes every entity.
func (m *Manager) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for k, e := range m.entities {
		if err := m.forget(e); err != nil {
			errs = append(errs, err)
		}

		delete(m.entities, k)
	}

	clear(m.byAddr)

	return errors.Join(errs...)
}
