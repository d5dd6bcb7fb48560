package bindrelation

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/endpoint"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// TransIDSize is the number of bytes of the private header that carry the
// transaction id.
const TransIDSize = 8

// DispatchStats tells what one Dispatch call did.
type DispatchStats struct {
	// Delivered counts buffers taken from sources.
	Delivered int
	// Held counts deliveries a destination had to keep.
	Held int
	// Blocked counts sources skipped because a destination holds data.
	Blocked int
	// Pending counts sources still reading asynchronously.
	Pending int
	Faults  int
}

// TransID reads the transaction id stamped on a buffer.
func TransID(alloc driver.Allocator, buf driver.Mbuf) (uint64, error) {
	priv, err := alloc.PrivInfo(buf)
	if err != nil {
		return 0, err
	}

	if len(priv) < TransIDSize {
		return 0, status.New(status.CodeInnerError, "TransID",
			"private header of %d bytes is too short", len(priv))
	}

	return binary.LittleEndian.Uint64(priv[:TransIDSize]), nil
}

func (r *Relation) stampTransID(alloc driver.Allocator, buf driver.Mbuf) error {
	priv, err := alloc.PrivInfo(buf)
	if err != nil {
		return err
	}

	if len(priv) < TransIDSize {
		return status.New(status.CodeInnerError, "Dispatch",
			"private header of %d bytes is too short", len(priv))
	}

	binary.LittleEndian.PutUint64(priv[:TransIDSize],
		uint64(r.transIDs.Generate()))

	return nil
}

// Dispatch moves up to budget buffers from the ready sources of a partition
// to their destinations, in delivery order. A budget of zero or less uses the
// default budget. A source is skipped while any of its destinations holds
// data. Failing endpoints are reported for the next UpdateRelation.
func (r *Relation) Dispatch(
	ctx context.Context,
	resIndex int,
	budget int,
) (DispatchStats, error) {
	var ds DispatchStats

	p, err := r.partition(resIndex)
	if err != nil {
		return ds, err
	}

	if budget <= 0 {
		budget = r.defaultBudget
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.orderDirty {
		r.orderLocked(p)
	}

	var errs []error

	for _, sk := range p.order {
		if budget <= 0 {
			break
		}

		src, found := p.mgr.Entity(sk, entity.DirSrc)
		if !found {
			errs = append(errs, r.missingEntity(sk, entity.DirSrc))
			continue
		}

		if !src.Ready() {
			continue
		}

		dsts, err := r.dstEntities(p, sk)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		moved, err := r.drain(ctx, p, src, dsts, budget, &ds)
		if err != nil {
			errs = append(errs, err)
		}

		budget -= moved
	}

	p.stats.Delivered += uint64(ds.Delivered)
	p.stats.Faults += uint64(ds.Faults)
	p.stats.Blocked += uint64(ds.Blocked)

	return ds, errors.Join(errs...)
}

func (r *Relation) missingEntity(key entity.Key, dir entity.Direction) error {
	r.log.Error().
		Stringer("entity", key).
		Stringer("dir", dir).
		Msg("bound endpoint has no runtime entity")

	return status.New(status.CodeInnerError, "Dispatch",
		"%s has no %s entity", key, dir)
}

func (r *Relation) dstEntities(
	p *partition,
	sk entity.Key,
) ([]endpoint.Entity, error) {
	keys := p.srcToDst[sk].sorted()
	dsts := make([]endpoint.Entity, 0, len(keys))

	for _, dk := range keys {
		e, found := p.mgr.Entity(dk, entity.DirDst)
		if !found {
			return nil, r.missingEntity(dk, entity.DirDst)
		}

		dsts = append(dsts, e)
	}

	return dsts, nil
}

func anyHeld(dsts []endpoint.Entity) bool {
	for _, d := range dsts {
		if d.Held() > 0 {
			return true
		}
	}

	return false
}

func (r *Relation) drain(
	ctx context.Context,
	p *partition,
	src endpoint.Entity,
	dsts []endpoint.Entity,
	budget int,
	ds *DispatchStats,
) (int, error) {
	moved := 0

	for moved < budget {
		if anyHeld(dsts) {
			p.mgr.SetEntityFull()
			ds.Blocked++

			return moved, nil
		}

		buf, res, err := src.Dequeue(ctx)
		if err != nil {
			ds.Faults++
			r.ReportAbnormal(src.Key(), entity.DirSrc)

			return moved, err
		}

		switch res {
		case endpoint.Keep:
			ds.Pending++
			return moved, nil
		case endpoint.Empty:
			return moved, nil
		}

		alloc := p.mgr.Allocator()

		if src.NeedTransID() {
			if err := r.stampTransID(alloc, buf); err != nil {
				r.log.Warn().Err(err).
					Stringer("src", src.Key()).
					Msg("failed to stamp transaction id")
			}
		}

		r.deliver(ctx, p, alloc, buf, dsts, ds)
		moved++
	}

	return moved, nil
}

// deliver hands buf to every destination. All but the last destination get
// a reference copy.
func (r *Relation) deliver(
	ctx context.Context,
	p *partition,
	alloc driver.Allocator,
	buf driver.Mbuf,
	dsts []endpoint.Entity,
	ds *DispatchStats,
) {
	ds.Delivered++

	last := len(dsts) - 1
	if last < 0 {
		_ = alloc.Free(buf)
		return
	}

	for i, d := range dsts {
		b := buf

		if i != last {
			ref, err := alloc.CopyRef(buf)
			if err != nil {
				ds.Faults++
				r.log.Warn().Err(err).
					Stringer("dst", d.Key()).
					Msg("failed to copy buffer")

				continue
			}

			b = ref
		}

		res, err := d.Enqueue(ctx, b)
		if err != nil {
			ds.Faults++
			r.ReportAbnormal(d.Key(), entity.DirDst)
			r.log.Warn().Err(err).
				Stringer("dst", d.Key()).
				Msg("delivery failed")

			continue
		}

		if res == endpoint.Full {
			ds.Held++
			p.mgr.SetEntityFull()
		}
	}
}

// FlushBlocked retries the data the destinations of a partition hold. It
// returns the number of buffers still held. The entity-full flag of the
// partition is cleared once nothing is held.
func (r *Relation) FlushBlocked(ctx context.Context, resIndex int) (int, error) {
	p, err := r.partition(resIndex)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	held := 0

	for _, dk := range sortedKeys(p.dstToSrc) {
		e, found := p.mgr.Entity(dk, entity.DirDst)
		if !found {
			errs = append(errs, r.missingEntity(dk, entity.DirDst))
			continue
		}

		if e.Held() == 0 {
			continue
		}

		if _, err := e.Flush(ctx); err != nil {
			r.ReportAbnormal(dk, entity.DirDst)
			errs = append(errs, err)
		}

		held += e.Held()
	}

	if held == 0 {
		p.mgr.ClearEntityFull()
	}

	return held, errors.Join(errs...)
}

func sortedKeys(m map[entity.Key]keySet) []entity.Key {
	s := make(keySet, len(m))
	for k := range m {
		s[k] = struct{}{}
	}

	return s.sorted()
}
