package bindrelation

import (
	"slices"

	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/status"
)

// Group is a named set of endpoints that is bound as one.
type Group struct {
	Info    entity.Info
	Members []entity.Info

	// ResIndex is the partition that holds the runtime entities of the
	// group, or -1 while the group is not bound.
	ResIndex int
}

func (g *Group) has(key entity.Key) bool {
	for i := range g.Members {
		if g.Members[i].Key() == key {
			return true
		}
	}

	return false
}

func (g *Group) intersects(o *Group) bool {
	for i := range g.Members {
		if o.has(g.Members[i].Key()) {
			return true
		}
	}

	return false
}

func (g *Group) memberPtrs() []*entity.Info {
	ptrs := make([]*entity.Info, len(g.Members))
	for i := range g.Members {
		ptrs[i] = &g.Members[i]
	}

	return ptrs
}

func (g *Group) clone() Group {
	c := *g
	c.Members = slices.Clone(g.Members)

	return c
}

// CreateGroup creates a broadcast group with a generated id.
func (r *Relation) CreateGroup(members []entity.Info) (entity.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := uint32(r.groupIDs.Generate())
		if _, found := r.groups[id]; found {
			continue
		}

		return r.createGroupLocked(id, entity.PolicyBroadcast, members)
	}
}

// CreateGroupWithID creates a group with the given id and fan-out policy.
func (r *Relation) CreateGroupWithID(
	id uint32,
	policy entity.GroupPolicy,
	members []entity.Info,
) (entity.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.createGroupLocked(id, policy, members)
}

func (r *Relation) createGroupLocked(
	id uint32,
	policy entity.GroupPolicy,
	members []entity.Info,
) (entity.Info, error) {
	if _, found := r.groups[id]; found {
		return entity.Info{}, status.New(status.CodeGroupHasExist,
			"CreateGroup", "group %d exists", id)
	}

	if err := validateMembers(members); err != nil {
		return entity.Info{}, err
	}

	g := &Group{
		Info:     entity.Group(id, policy),
		ResIndex: -1,
	}

	for i := range members {
		g.Members = append(g.Members, members[i].Detached())
	}

	r.groups[id] = g

	r.log.Info().
		Uint32("group", id).
		Int("members", len(members)).
		Msg("group created")

	return g.Info, nil
}

func validateMembers(members []entity.Info) error {
	if len(members) == 0 {
		return status.New(status.CodeParamInvalid, "CreateGroup",
			"group has no member")
	}

	seen := make(map[entity.Key]struct{}, len(members))

	for i := range members {
		m := &members[i]
		k := m.Key()

		if k.IsGroup() {
			return status.New(status.CodeParamInvalid, "CreateGroup",
				"member %s is a group", k)
		}

		if k.IsTag() && m.Channel == nil {
			return status.New(status.CodeParamInvalid, "CreateGroup",
				"member %s has no channel", k)
		}

		if _, dup := seen[k]; dup {
			return status.New(status.CodeParamInvalid, "CreateGroup",
				"member %s appears twice", k)
		}

		seen[k] = struct{}{}
	}

	return nil
}

// DeleteGroup deletes a group that is not bound anymore. Quarantined
// relations of the group are dropped with it.
func (r *Relation) DeleteGroup(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, found := r.groups[id]
	if !found {
		return status.New(status.CodeParamInvalid, "DeleteGroup",
			"group %d does not exist", id)
	}

	key := g.Info.Key()

	for _, p := range r.parts {
		p.mu.Lock()
		bound := len(p.srcToDst[key]) > 0 || len(p.dstToSrc[key]) > 0
		p.mu.Unlock()

		if bound {
			return status.New(status.CodeGroupExistInRoute, "DeleteGroup",
				"group %d is bound", id)
		}
	}

	for _, p := range r.parts {
		p.mu.Lock()
		r.dropAbnormalLocked(p, key)

		for _, dir := range []entity.Direction{entity.DirSrc, entity.DirDst} {
			if err := p.mgr.DeleteEntity(key, dir); err != nil {
				r.log.Warn().Err(err).Uint32("group", id).
					Msg("failed to delete group entity")
			}
		}

		p.dropNodeIfUnused(key)
		p.mu.Unlock()
	}

	delete(r.groups, id)

	r.log.Info().Uint32("group", id).Msg("group deleted")

	return nil
}

// Group returns a copy of a group.
func (r *Relation) Group(id uint32) (Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, found := r.groups[id]
	if !found {
		return Group{}, false
	}

	return g.clone(), true
}

// Groups returns copies of all groups ordered by id.
func (r *Relation) Groups() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g.clone())
	}

	slices.SortFunc(out, func(a, b Group) int {
		return cmpUint32(a.Info.ID, b.Info.ID)
	})

	return out
}

// groupsContaining returns the groups that have key as a member.
func (r *Relation) groupsContaining(key entity.Key) []*Group {
	var out []*Group

	for _, g := range r.groups {
		if g.has(key) {
			out = append(out, g)
		}
	}

	return out
}
