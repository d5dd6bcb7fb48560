// Package bindrelation implements the router. It keeps the relations between
// source and destination endpoints, drives the creation and deletion of
// their runtime entities, and moves data along the relations.
package bindrelation

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/entitymanager"
	"github.com/sarchlab/bqs/hooking"
	"github.com/sarchlab/bqs/idgen"
	"github.com/sarchlab/bqs/status"
)

// Hook positions of a Relation. The hook item is a Pair, except for
// HookPosOrder where it is the computed order.
var (
	HookPosBind     = &hooking.HookPos{Name: "Bind"}
	HookPosUnbind   = &hooking.HookPos{Name: "Unbind"}
	HookPosAbnormal = &hooking.HookPos{Name: "Abnormal"}
	HookPosOrder    = &hooking.HookPos{Name: "Order"}
)

// Pair is one relation.
type Pair struct {
	Src entity.Key
	Dst entity.Key
}

// Stats is a summary of one partition.
type Stats struct {
	BindCount         int
	AbnormalBindCount int
	SubscribeCount    int

	Delivered           uint64
	Faults              uint64
	Blocked             uint64
	UnsubscribeFailures uint64
}

type keySet map[entity.Key]struct{}

func (s keySet) sorted() []entity.Key {
	keys := make([]entity.Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, compareKeys)

	return keys
}

func compareKeys(a, b entity.Key) int {
	switch {
	case a.Class != b.Class:
		return int(a.Class) - int(b.Class)
	case a.DeviceID != b.DeviceID:
		return cmpUint32(a.DeviceID, b.DeviceID)
	case a.Variant != b.Variant:
		return int(a.Variant) - int(b.Variant)
	default:
		return cmpUint32(a.ID, b.ID)
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func addEdge(m map[entity.Key]keySet, from, to entity.Key) {
	s, found := m[from]
	if !found {
		s = make(keySet)
		m[from] = s
	}

	s[to] = struct{}{}
}

func removeEdge(m map[entity.Key]keySet, from, to entity.Key) {
	s, found := m[from]
	if !found {
		return
	}

	delete(s, to)

	if len(s) == 0 {
		delete(m, from)
	}
}

func hasEdge(m map[entity.Key]keySet, from, to entity.Key) bool {
	_, found := m[from][to]
	return found
}

// partition is one independent copy of the relation graph.
type partition struct {
	mu sync.Mutex

	index int
	mgr   *entitymanager.Manager

	nodes    map[entity.Key]*entity.Info
	srcToDst map[entity.Key]keySet
	dstToSrc map[entity.Key]keySet

	abnormalSrcToDst map[entity.Key]keySet
	abnormalDstToSrc map[entity.Key]keySet

	// srcOrder lists sources in the order they were first bound.
	srcOrder   []entity.Key
	order      []entity.Key
	orderDirty bool
	loop       bool

	subscriptions int
	stats         Stats
}

func newPartition(index int, mgr *entitymanager.Manager) *partition {
	return &partition{
		index:            index,
		mgr:              mgr,
		nodes:            make(map[entity.Key]*entity.Info),
		srcToDst:         make(map[entity.Key]keySet),
		dstToSrc:         make(map[entity.Key]keySet),
		abnormalSrcToDst: make(map[entity.Key]keySet),
		abnormalDstToSrc: make(map[entity.Key]keySet),
	}
}

// referenced tells if key appears in any live or quarantined relation.
func (p *partition) referenced(key entity.Key) bool {
	return len(p.srcToDst[key]) > 0 ||
		len(p.dstToSrc[key]) > 0 ||
		len(p.abnormalSrcToDst[key]) > 0 ||
		len(p.abnormalDstToSrc[key]) > 0
}

func (p *partition) dropNodeIfUnused(key entity.Key) {
	if !p.referenced(key) {
		delete(p.nodes, key)
	}
}

func (p *partition) bindCount() int {
	n := 0
	for _, dsts := range p.srcToDst {
		n += len(dsts)
	}

	return n
}

func (p *partition) abnormalBindCount() int {
	n := 0
	for _, dsts := range p.abnormalSrcToDst {
		n += len(dsts)
	}

	return n
}

type abnormalReport struct {
	key entity.Key
	dir entity.Direction
}

// Relation is the router. Control operations (binding, groups and fault
// handling) are serialized by a relation-wide lock and then lock the
// partition they touch. Delivery only locks its partition.
type Relation struct {
	hooking.HookableBase

	mu     sync.Mutex
	parts  []*partition
	groups map[uint32]*Group

	drv           driver.QueueDriver
	devicePart    map[uint32]int
	groupIDs      idgen.Generator
	transIDs      idgen.Generator
	defaultBudget int
	log           zerolog.Logger

	reportMu sync.Mutex
	reports  []abnormalReport
}

// Partitions returns the number of partitions.
func (r *Relation) Partitions() int {
	return len(r.parts)
}

// Manager returns the entity manager of a partition.
func (r *Relation) Manager(resIndex int) *entitymanager.Manager {
	p, err := r.partition(resIndex)
	if err != nil {
		return nil
	}

	return p.mgr
}

func (r *Relation) partition(resIndex int) (*partition, error) {
	if resIndex < 0 || resIndex >= len(r.parts) {
		return nil, status.New(status.CodeParamInvalid, "partition",
			"partition %d out of range [0, %d)", resIndex, len(r.parts))
	}

	return r.parts[resIndex], nil
}

// WithPartition runs fn while holding the lock of a partition.
func (r *Relation) WithPartition(
	resIndex int,
	fn func(mgr *entitymanager.Manager) error,
) error {
	p, err := r.partition(resIndex)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return fn(p.mgr)
}

// Relations returns the live relations of a partition.
func (r *Relation) Relations(resIndex int) []Pair {
	p, err := r.partition(resIndex)
	if err != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return pairs(p.srcToDst)
}

// AbnormalRelations returns the quarantined relations of a partition.
func (r *Relation) AbnormalRelations(resIndex int) []Pair {
	p, err := r.partition(resIndex)
	if err != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return pairs(p.abnormalSrcToDst)
}

func pairs(m map[entity.Key]keySet) []Pair {
	var out []Pair

	for src, dsts := range m {
		for dst := range dsts {
			out = append(out, Pair{Src: src, Dst: dst})
		}
	}

	slices.SortFunc(out, func(a, b Pair) int {
		if c := compareKeys(a.Src, b.Src); c != 0 {
			return c
		}

		return compareKeys(a.Dst, b.Dst)
	})

	return out
}

// DstsOf returns the destinations key sends to.
func (r *Relation) DstsOf(key entity.Key) []entity.Key {
	return r.neighbours(key, func(p *partition) keySet { return p.srcToDst[key] })
}

// SrcsOf returns the sources key receives from.
func (r *Relation) SrcsOf(key entity.Key) []entity.Key {
	return r.neighbours(key, func(p *partition) keySet { return p.dstToSrc[key] })
}

func (r *Relation) neighbours(
	key entity.Key,
	get func(p *partition) keySet,
) []entity.Key {
	for _, p := range r.parts {
		p.mu.Lock()
		s := get(p)

		if len(s) > 0 {
			keys := s.sorted()
			p.mu.Unlock()

			return keys
		}

		p.mu.Unlock()
	}

	return nil
}

// Partition returns the partition that holds key.
func (r *Relation) Partition(key entity.Key) (int, bool) {
	for _, p := range r.parts {
		p.mu.Lock()
		_, found := p.nodes[key]
		p.mu.Unlock()

		if found {
			return p.index, true
		}
	}

	return 0, false
}

// Node returns the Info of a bound endpoint.
func (r *Relation) Node(key entity.Key) (entity.Info, bool) {
	for _, p := range r.parts {
		p.mu.Lock()
		info, found := p.nodes[key]
		p.mu.Unlock()

		if found {
			return *info, true
		}
	}

	return entity.Info{}, false
}

// Stats returns the statistics of a partition.
func (r *Relation) Stats(resIndex int) Stats {
	p, err := r.partition(resIndex)
	if err != nil {
		return Stats{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.BindCount = p.bindCount()
	s.AbnormalBindCount = p.abnormalBindCount()
	s.SubscribeCount = p.subscriptions

	return s
}

// LoopFlag tells if the last order computed for a partition found a cycle.
func (r *Relation) LoopFlag(resIndex int) bool {
	p, err := r.partition(resIndex)
	if err != nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.loop
}

func (r *Relation) invoke(pos *hooking.HookPos, part int, item, detail any) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(hooking.HookCtx{
		Domain:    r,
		Pos:       pos,
		Partition: part,
		Item:      item,
		Detail:    detail,
	})
}
