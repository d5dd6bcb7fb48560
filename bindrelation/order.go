package bindrelation

import (
	"slices"

	"github.com/sarchlab/bqs/entity"
)

// Order computes the delivery order of the sources of a partition. Every
// source comes before the sources it sends to. If the relations form a
// cycle, the sources are returned in the order they were bound and the loop
// flag is raised.
func (r *Relation) Order(resIndex int) []entity.Key {
	p, err := r.partition(resIndex)
	if err != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(r.orderLocked(p))
}

func (r *Relation) orderLocked(p *partition) []entity.Key {
	sources := make([]entity.Key, 0, len(p.srcOrder))
	pos := make(map[entity.Key]int, len(p.srcOrder))

	for _, k := range p.srcOrder {
		if len(p.srcToDst[k]) == 0 {
			continue
		}

		pos[k] = len(sources)
		sources = append(sources, k)
	}

	inDegree := make(map[entity.Key]int, len(sources))

	for _, s := range sources {
		for d := range p.dstToSrc[s] {
			if _, isSource := pos[d]; isSource {
				inDegree[s]++
			}
		}
	}

	ready := make([]entity.Key, 0, len(sources))

	for _, s := range sources {
		if inDegree[s] == 0 {
			ready = append(ready, s)
		}
	}

	order := make([]entity.Key, 0, len(sources))

	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		for _, d := range sortedSources(p.srcToDst[n], pos) {
			inDegree[d]--
			if inDegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	p.loop = len(order) < len(sources)
	if p.loop {
		order = sources

		r.log.Warn().
			Int("partition", p.index).
			Msg("relations form a cycle, delivering in bind order")
	}

	p.order = order
	p.orderDirty = false

	p.stats.BindCount = p.bindCount()
	p.stats.AbnormalBindCount = p.abnormalBindCount()
	p.stats.SubscribeCount = p.subscriptions

	r.invoke(HookPosOrder, p.index, slices.Clone(order), p.loop)

	return order
}

// sortedSources returns the members of s that are sources, in bind order.
func sortedSources(s keySet, pos map[entity.Key]int) []entity.Key {
	out := make([]entity.Key, 0, len(s))

	for k := range s {
		if _, isSource := pos[k]; isSource {
			out = append(out, k)
		}
	}

	slices.SortFunc(out, func(a, b entity.Key) int {
		return pos[a] - pos[b]
	})

	return out
}
