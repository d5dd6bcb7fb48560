package bindrelation

import (
	"context"

	"github.com/sarchlab/bqs/entity"
)

// MarkAbnormalSrc quarantines every relation src sends along. The live
// relations are left in place until UnBindRelationBySrc. It returns the
// number of relations quarantined.
func (r *Relation) MarkAbnormalSrc(src entity.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.markAbnormal(src, entity.DirSrc)
}

// MarkAbnormalDst quarantines every relation dst receives along.
func (r *Relation) MarkAbnormalDst(dst entity.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.markAbnormal(dst, entity.DirDst)
}

func (r *Relation) markAbnormal(key entity.Key, dir entity.Direction) int {
	n := 0

	for _, p := range r.parts {
		p.mu.Lock()

		for _, pair := range livePairs(p, key, dir) {
			addEdge(p.abnormalSrcToDst, pair.Src, pair.Dst)
			addEdge(p.abnormalDstToSrc, pair.Dst, pair.Src)
			n++

			r.log.Warn().
				Stringer("src", pair.Src).
				Stringer("dst", pair.Dst).
				Int("partition", p.index).
				Msg("relation quarantined")

			r.invoke(HookPosAbnormal, p.index, pair, dir)
		}

		p.mu.Unlock()
	}

	return n
}

func livePairs(p *partition, key entity.Key, dir entity.Direction) []Pair {
	var out []Pair

	if dir == entity.DirSrc {
		for _, dst := range p.srcToDst[key].sorted() {
			out = append(out, Pair{Src: key, Dst: dst})
		}

		return out
	}

	for _, src := range p.dstToSrc[key].sorted() {
		out = append(out, Pair{Src: src, Dst: key})
	}

	return out
}

// UnBindRelationBySrc tears down the live relations of src while keeping
// their quarantine records.
func (r *Relation) UnBindRelationBySrc(src entity.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unbindRelations(src, entity.DirSrc)
}

// UnBindRelationByDst tears down the live relations of dst while keeping
// their quarantine records.
func (r *Relation) UnBindRelationByDst(dst entity.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unbindRelations(dst, entity.DirDst)
}

func (r *Relation) unbindRelations(key entity.Key, dir entity.Direction) {
	for _, p := range r.parts {
		p.mu.Lock()

		for _, pair := range livePairs(p, key, dir) {
			r.unbindLocked(p, pair.Src, pair.Dst)
		}

		p.mu.Unlock()
	}
}

// ReportAbnormal records that an endpoint failed. The report is handled by
// the next UpdateRelation. It is safe to call while dispatching.
func (r *Relation) ReportAbnormal(key entity.Key, dir entity.Direction) {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()

	r.reports = append(r.reports, abnormalReport{key: key, dir: dir})
}

// PendingReports returns the number of reports waiting for UpdateRelation.
func (r *Relation) PendingReports() int {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()

	return len(r.reports)
}

func (r *Relation) takeReports() []abnormalReport {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()

	reports := r.reports
	r.reports = nil

	return reports
}

// expand adds the groups bound on the same side as a faulted member.
func (r *Relation) expand(reports []abnormalReport) []abnormalReport {
	seen := make(map[abnormalReport]struct{})

	var out []abnormalReport

	add := func(rep abnormalReport) {
		if _, dup := seen[rep]; dup {
			return
		}

		seen[rep] = struct{}{}
		out = append(out, rep)
	}

	for _, rep := range reports {
		add(rep)

		for _, g := range r.groupsContaining(rep.key) {
			if r.boundOn(g.Info.Key(), rep.dir) {
				add(abnormalReport{key: g.Info.Key(), dir: rep.dir})
			}
		}
	}

	return out
}

// UpdateRelation handles the faults reported since the last call. Every
// relation of a faulted endpoint is quarantined and torn down, and the
// delivery order of the touched partitions is recomputed. It returns the
// number of relations quarantined.
func (r *Relation) UpdateRelation(context.Context) int {
	reports := r.takeReports()
	if len(reports) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, rep := range r.expand(reports) {
		n += r.markAbnormal(rep.key, rep.dir)
		r.unbindRelations(rep.key, rep.dir)
	}

	for _, p := range r.parts {
		p.mu.Lock()
		if p.orderDirty {
			r.orderLocked(p)
		}
		p.mu.Unlock()
	}

	return n
}

// dropAbnormalLocked forgets every quarantined relation of key.
func (r *Relation) dropAbnormalLocked(p *partition, key entity.Key) {
	for dst := range p.abnormalSrcToDst[key] {
		removeEdge(p.abnormalDstToSrc, dst, key)
		p.dropNodeIfUnused(dst)
	}

	for src := range p.abnormalDstToSrc[key] {
		removeEdge(p.abnormalSrcToDst, src, key)
		p.dropNodeIfUnused(src)
	}

	delete(p.abnormalSrcToDst, key)
	delete(p.abnormalDstToSrc, key)
}
