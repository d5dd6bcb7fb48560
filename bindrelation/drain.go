package bindrelation

import (
	"context"

	"github.com/sarchlab/bqs/endpoint"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

type keyFilter map[uint32]struct{}

func newKeyFilter(keys []uint32) keyFilter {
	if len(keys) == 0 {
		return nil
	}

	f := make(keyFilter, len(keys))
	for _, k := range keys {
		f[k] = struct{}{}
	}

	return f
}

// match tells if an endpoint is selected. A nil filter selects everything;
// a group is selected by its own key or the key of any member.
func (f keyFilter) match(r *Relation, node *entity.Info) bool {
	if f == nil {
		return true
	}

	if _, found := f[node.SchedCfgKey]; found {
		return true
	}

	if !node.Key().IsGroup() {
		return false
	}

	g, found := r.groups[node.ID]
	if !found {
		return false
	}

	for i := range g.Members {
		if _, found := f[g.Members[i].SchedCfgKey]; found {
			return true
		}
	}

	return false
}

// ClearInputQueue discards the data waiting at the sources of a partition
// whose scheduling key is in keys. Empty keys select every source.
func (r *Relation) ClearInputQueue(
	ctx context.Context,
	resIndex int,
	keys []uint32,
) error {
	return r.eachSelected(resIndex, keys, entity.DirSrc,
		func(e endpoint.Entity) error {
			return e.Clear(ctx)
		})
}

// MakeSureOutputCompletion waits until the destinations of a partition whose
// scheduling key is in keys have no unacknowledged data. Empty keys select
// every destination.
func (r *Relation) MakeSureOutputCompletion(
	ctx context.Context,
	resIndex int,
	keys []uint32,
) error {
	return r.eachSelected(resIndex, keys, entity.DirDst,
		func(e endpoint.Entity) error {
			return endpoint.WaitOutputCompletion(ctx, e)
		})
}

func (r *Relation) eachSelected(
	resIndex int,
	keys []uint32,
	dir entity.Direction,
	fn func(e endpoint.Entity) error,
) error {
	p, err := r.partition(resIndex)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	filter := newKeyFilter(keys)

	table := p.srcToDst
	if dir == entity.DirDst {
		table = p.dstToSrc
	}

	for _, k := range sortedKeys(table) {
		node, found := p.nodes[k]
		if !found || !filter.match(r, node) {
			continue
		}

		e, found := p.mgr.Entity(k, dir)
		if !found {
			r.log.Error().
				Stringer("entity", k).
				Stringer("dir", dir).
				Msg("bound endpoint has no runtime entity")

			return status.New(status.CodeInnerError, "eachSelected",
				"%s has no %s entity", k, dir)
		}

		if err := fn(e); err != nil {
			return err
		}
	}

	return nil
}
