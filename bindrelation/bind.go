package bindrelation

import (
	"context"
	"slices"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/endpoint"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// Relation tables are only written while holding both the relation lock and
// the partition lock, so holding either one is enough to read them.

// resolve returns the Info to bind for info. Groups must have been created
// before and are resolved to their record.
func (r *Relation) resolve(info entity.Info) (entity.Info, *Group, error) {
	if !info.Key().IsGroup() {
		if info.Key().IsTag() && info.Channel == nil {
			return entity.Info{}, nil, status.New(status.CodeParamInvalid,
				"Bind", "tag %s has no channel", info.Key())
		}

		return info.Detached(), nil, nil
	}

	g, found := r.groups[info.ID]
	if !found {
		return entity.Info{}, nil, status.New(status.CodeParamInvalid,
			"Bind", "group %d does not exist", info.ID)
	}

	return g.Info, g, nil
}

func (r *Relation) ownerPartition(key entity.Key, g *Group) (int, bool) {
	if g != nil && g.ResIndex >= 0 {
		return g.ResIndex, true
	}

	for _, p := range r.parts {
		if _, found := p.nodes[key]; found {
			return p.index, true
		}
	}

	return 0, false
}

func (r *Relation) configuredPartition(info *entity.Info, g *Group) int {
	if len(r.parts) == 1 {
		return 0
	}

	dev := info.DeviceID
	if g != nil {
		dev = g.Members[0].DeviceID
	}

	return r.devicePart[dev]
}

// bindPartition finds the partition a new relation belongs to. An endpoint
// that is already bound decides; otherwise the device of the source does.
func (r *Relation) bindPartition(
	src *entity.Info, sg *Group,
	dst *entity.Info, dg *Group,
) (int, error) {
	sp, sFound := r.ownerPartition(src.Key(), sg)
	dp, dFound := r.ownerPartition(dst.Key(), dg)

	switch {
	case sFound && dFound && sp != dp:
		return 0, status.New(status.CodeParamInvalid, "Bind",
			"%s is in partition %d but %s is in partition %d",
			src.Key(), sp, dst.Key(), dp)
	case sFound:
		return sp, nil
	case dFound:
		return dp, nil
	default:
		return r.configuredPartition(src, sg), nil
	}
}

// Bind makes data from src flow to dst. Endpoints are created in the
// partition the relation belongs to. If that is not resIndex, nothing
// changes and status.ErrRetry is returned so that the caller can resubmit
// to the right partition. On any other error, nothing changes either.
func (r *Relation) Bind(
	ctx context.Context,
	src, dst entity.Info,
	resIndex int,
) error {
	if src.Key() == dst.Key() {
		return status.New(status.CodeParamInvalid, "Bind",
			"cannot bind %s to itself", src.Key())
	}

	if _, err := r.partition(resIndex); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return status.Wrap(status.CodeInnerError, "Bind", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	srcInfo, sg, err := r.resolve(src)
	if err != nil {
		return err
	}

	dstInfo, dg, err := r.resolve(dst)
	if err != nil {
		return err
	}

	part, err := r.bindPartition(&srcInfo, sg, &dstInfo, dg)
	if err != nil {
		return err
	}

	if part != resIndex {
		return status.New(status.CodeRetry, "Bind",
			"%s -> %s belongs to partition %d, not %d",
			src.Key(), dst.Key(), part, resIndex)
	}

	p := r.parts[part]

	p.mu.Lock()
	defer p.mu.Unlock()

	if hasEdge(p.srcToDst, src.Key(), dst.Key()) {
		r.refreshLocked(p, src.Key(), dst.Key())
		return nil
	}

	if err := r.checkBindLocked(p, &srcInfo, sg, &dstInfo, dg); err != nil {
		r.log.Warn().Err(err).Msg("bind rejected")
		return err
	}

	return r.bindLocked(p, &srcInfo, sg, &dstInfo, dg)
}

// refreshLocked subscribes the events of an existing relation again.
func (r *Relation) refreshLocked(p *partition, sk, dk entity.Key) {
	if e, found := p.mgr.Entity(sk, entity.DirSrc); found {
		for _, addr := range e.Addrs() {
			if err := r.drv.Subscribe(addr, driver.EventEnqueue); err != nil {
				r.log.Warn().Err(err).Stringer("queue", addr).
					Msg("failed to refresh subscription")
			}
		}
	}

	if e, found := p.mgr.Entity(dk, entity.DirDst); found {
		for _, addr := range e.Addrs() {
			err := r.drv.Subscribe(addr, driver.EventFullToNotFull)
			if err != nil {
				r.log.Warn().Err(err).Stringer("queue", addr).
					Msg("failed to refresh subscription")
			}
		}
	}
}

// mixes tells if adding k to peers would put a group next to a plain
// endpoint. Tags are ignored.
func mixes(peers keySet, k entity.Key) bool {
	for peer := range peers {
		if peer.IsTag() {
			continue
		}

		if peer.IsGroup() != k.IsGroup() {
			return true
		}
	}

	return false
}

func (r *Relation) boundOn(key entity.Key, dir entity.Direction) bool {
	for _, p := range r.parts {
		if dir == entity.DirSrc && len(p.srcToDst[key]) > 0 {
			return true
		}

		if dir == entity.DirDst && len(p.dstToSrc[key]) > 0 {
			return true
		}
	}

	return false
}

// checkLayers rejects binding an endpoint on one side both on its own and as
// a member of a group.
func (r *Relation) checkLayers(
	key entity.Key,
	g *Group,
	dir entity.Direction,
) error {
	if g == nil {
		for _, owner := range r.groupsContaining(key) {
			if r.boundOn(owner.Info.Key(), dir) {
				return status.New(status.CodeParamInvalid, "Bind",
					"%s is bound as %s through group %d",
					key, dir, owner.Info.ID)
			}
		}

		return nil
	}

	for i := range g.Members {
		mk := g.Members[i].Key()
		if r.boundOn(mk, dir) {
			return status.New(status.CodeParamInvalid, "Bind",
				"member %s of group %d is bound as %s", mk, g.Info.ID, dir)
		}

		for _, owner := range r.groupsContaining(mk) {
			if owner.Info.ID == g.Info.ID {
				continue
			}

			if r.boundOn(owner.Info.Key(), dir) {
				return status.New(status.CodeParamInvalid, "Bind",
					"member %s of group %d is bound as %s through group %d",
					mk, g.Info.ID, dir, owner.Info.ID)
			}
		}
	}

	return nil
}

func (r *Relation) checkBindLocked(
	p *partition,
	src *entity.Info, sg *Group,
	dst *entity.Info, dg *Group,
) error {
	sk, dk := src.Key(), dst.Key()

	if !sk.IsTag() && !dk.IsTag() {
		if mixes(p.srcToDst[sk], dk) {
			return status.New(status.CodeParamInvalid, "Bind",
				"%s cannot send to both groups and plain endpoints", sk)
		}

		if mixes(p.dstToSrc[dk], sk) {
			return status.New(status.CodeParamInvalid, "Bind",
				"%s cannot receive from both groups and plain endpoints", dk)
		}

		if err := r.checkLayers(sk, sg, entity.DirSrc); err != nil {
			return err
		}

		if err := r.checkLayers(dk, dg, entity.DirDst); err != nil {
			return err
		}
	}

	switch {
	case sg != nil && dg != nil && sg.intersects(dg):
		return status.New(status.CodeParamInvalid, "Bind",
			"groups %d and %d share members", sg.Info.ID, dg.Info.ID)
	case sg != nil && dg == nil && sg.has(dk):
		return status.New(status.CodeParamInvalid, "Bind",
			"%s is a member of group %d", dk, sg.Info.ID)
	case dg != nil && sg == nil && dg.has(sk):
		return status.New(status.CodeParamInvalid, "Bind",
			"%s is a member of group %d", sk, dg.Info.ID)
	}

	return nil
}

func (p *partition) node(info *entity.Info) (*entity.Info, bool) {
	if n, found := p.nodes[info.Key()]; found {
		return n, false
	}

	n := info.Detached()
	p.nodes[info.Key()] = &n

	return &n, true
}

func (r *Relation) ensureEntity(
	p *partition,
	node *entity.Info,
	g *Group,
	dir entity.Direction,
) (endpoint.Entity, bool, error) {
	if e, found := p.mgr.Entity(node.Key(), dir); found {
		return e, false, nil
	}

	var members []*entity.Info
	if g != nil {
		members = g.memberPtrs()
	}

	e, err := p.mgr.CreateEntity(node, dir, members...)
	if err != nil {
		return nil, false, err
	}

	return e, true, nil
}

func (r *Relation) subscribe(
	p *partition,
	addrs []driver.QueueAddr,
	kind driver.EventKind,
) error {
	for i, addr := range addrs {
		if err := r.drv.Subscribe(addr, kind); err != nil {
			r.unsubscribe(p, addrs[:i], kind)

			return status.Wrap(status.CodeDriverError, "Subscribe", err)
		}

		p.subscriptions++
	}

	return nil
}

func (r *Relation) unsubscribe(
	p *partition,
	addrs []driver.QueueAddr,
	kind driver.EventKind,
) {
	for _, addr := range addrs {
		p.subscriptions--

		if err := r.drv.Unsubscribe(addr, kind); err != nil {
			p.stats.UnsubscribeFailures++
			r.log.Warn().Err(err).
				Stringer("queue", addr).
				Stringer("event", kind).
				Msg("failed to unsubscribe")
		}
	}
}

func (r *Relation) bindLocked(
	p *partition,
	src *entity.Info, sg *Group,
	dst *entity.Info, dg *Group,
) (err error) {
	sk, dk := src.Key(), dst.Key()

	var undo []func()

	defer func() {
		if err == nil {
			return
		}

		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}

		r.log.Warn().Err(err).
			Stringer("src", sk).
			Stringer("dst", dk).
			Msg("bind rolled back")
	}()

	srcNode, newSrc := p.node(src)
	if newSrc {
		undo = append(undo, func() { delete(p.nodes, sk) })
	}

	dstNode, newDst := p.node(dst)
	if newDst {
		undo = append(undo, func() { delete(p.nodes, dk) })
	}

	srcEnt, created, err := r.ensureEntity(p, srcNode, sg, entity.DirSrc)
	if err != nil {
		return err
	}

	if created {
		undo = append(undo, func() { r.deleteEntity(p, srcNode, entity.DirSrc) })
	}

	dstEnt, created, err := r.ensureEntity(p, dstNode, dg, entity.DirDst)
	if err != nil {
		return err
	}

	if created {
		undo = append(undo, func() { r.deleteEntity(p, dstNode, entity.DirDst) })
	}

	firstSrc := len(p.srcToDst[sk]) == 0
	firstDst := len(p.dstToSrc[dk]) == 0

	if firstSrc {
		addrs := srcEnt.Addrs()
		if err = r.subscribe(p, addrs, driver.EventEnqueue); err != nil {
			return err
		}

		undo = append(undo, func() {
			r.unsubscribe(p, addrs, driver.EventEnqueue)
		})
	}

	if firstDst {
		addrs := dstEnt.Addrs()
		if err = r.subscribe(p, addrs, driver.EventFullToNotFull); err != nil {
			return err
		}
	}

	addEdge(p.srcToDst, sk, dk)
	addEdge(p.dstToSrc, dk, sk)
	removeEdge(p.abnormalSrcToDst, sk, dk)
	removeEdge(p.abnormalDstToSrc, dk, sk)

	if !slices.Contains(p.srcOrder, sk) {
		p.srcOrder = append(p.srcOrder, sk)
	}

	p.orderDirty = true

	if sg != nil {
		sg.ResIndex = p.index
	}

	if dg != nil {
		dg.ResIndex = p.index
	}

	if dk.IsGroup() {
		srcEnt.SetNeedTransID(true)
	}

	if firstSrc {
		srcEnt.MarkReady()
	}

	r.log.Info().
		Stringer("src", sk).
		Stringer("dst", dk).
		Int("partition", p.index).
		Msg("bound")

	r.invoke(HookPosBind, p.index, Pair{Src: sk, Dst: dk}, nil)

	return nil
}

func (r *Relation) deleteEntity(
	p *partition,
	node *entity.Info,
	dir entity.Direction,
) {
	if err := p.mgr.DeleteEntity(node.Key(), dir); err != nil {
		r.log.Warn().Err(err).
			Stringer("entity", node.Key()).
			Stringer("dir", dir).
			Msg("failed to delete entity")
	}

	node.ClearEntity(dir)
}

// UnBind removes the relation between src and dst. A quarantined relation
// is forgotten. Unbinding an unknown relation does nothing.
func (r *Relation) UnBind(src, dst entity.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.parts {
		live := hasEdge(p.srcToDst, src, dst)
		quarantined := hasEdge(p.abnormalSrcToDst, src, dst)

		if !live && !quarantined {
			continue
		}

		p.mu.Lock()

		if live {
			r.unbindLocked(p, src, dst)
		}

		if quarantined {
			removeEdge(p.abnormalSrcToDst, src, dst)
			removeEdge(p.abnormalDstToSrc, dst, src)
			p.dropNodeIfUnused(src)
			p.dropNodeIfUnused(dst)
		}

		p.mu.Unlock()

		return nil
	}

	r.log.Warn().
		Stringer("src", src).
		Stringer("dst", dst).
		Msg("unbinding unknown relation")

	return nil
}

// UnBindBySrc removes every relation src sends along.
func (r *Relation) UnBindBySrc(src entity.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.parts {
		p.mu.Lock()

		for _, dst := range p.srcToDst[src].sorted() {
			r.unbindLocked(p, src, dst)
		}

		p.mu.Unlock()
	}

	return nil
}

// UnBindByDst removes every relation dst receives along.
func (r *Relation) UnBindByDst(dst entity.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.parts {
		p.mu.Lock()

		for _, src := range p.dstToSrc[dst].sorted() {
			r.unbindLocked(p, src, dst)
		}

		p.mu.Unlock()
	}

	return nil
}

// unbindLocked removes a live relation and releases the endpoints that are
// not used by any other live relation.
func (r *Relation) unbindLocked(p *partition, sk, dk entity.Key) {
	removeEdge(p.srcToDst, sk, dk)
	removeEdge(p.dstToSrc, dk, sk)

	if len(p.srcToDst[sk]) == 0 {
		r.release(p, sk, entity.DirSrc, driver.EventEnqueue)
		p.srcOrder = slices.DeleteFunc(p.srcOrder, func(k entity.Key) bool {
			return k == sk
		})
	} else if dk.IsGroup() {
		r.refreshTransID(p, sk)
	}

	if len(p.dstToSrc[dk]) == 0 {
		r.release(p, dk, entity.DirDst, driver.EventFullToNotFull)
	}

	p.orderDirty = true

	r.releaseGroup(p, sk)
	r.releaseGroup(p, dk)

	p.dropNodeIfUnused(sk)
	p.dropNodeIfUnused(dk)

	r.log.Info().
		Stringer("src", sk).
		Stringer("dst", dk).
		Int("partition", p.index).
		Msg("unbound")

	r.invoke(HookPosUnbind, p.index, Pair{Src: sk, Dst: dk}, nil)
}

func (r *Relation) release(
	p *partition,
	key entity.Key,
	dir entity.Direction,
	kind driver.EventKind,
) {
	e, found := p.mgr.Entity(key, dir)
	if !found {
		r.log.Error().
			Stringer("entity", key).
			Stringer("dir", dir).
			Msg("bound endpoint has no runtime entity")

		return
	}

	r.unsubscribe(p, e.Addrs(), kind)

	if node, found := p.nodes[key]; found {
		r.deleteEntity(p, node, dir)
	} else {
		_ = p.mgr.DeleteEntity(key, dir)
	}
}

// refreshTransID keeps the transaction id mark of a source only while it
// sends to a group.
func (r *Relation) refreshTransID(p *partition, sk entity.Key) {
	e, found := p.mgr.Entity(sk, entity.DirSrc)
	if !found {
		return
	}

	need := false
	for dk := range p.srcToDst[sk] {
		if dk.IsGroup() {
			need = true
			break
		}
	}

	e.SetNeedTransID(need)
}

func (r *Relation) releaseGroup(p *partition, key entity.Key) {
	if !key.IsGroup() {
		return
	}

	if len(p.srcToDst[key]) > 0 || len(p.dstToSrc[key]) > 0 {
		return
	}

	if g, found := r.groups[key.ID]; found {
		g.ResIndex = -1
	}
}
