package bindrelation

import (
	"context"
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bqs/commchannel"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/driver/memdriver"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/entitymanager"
	"github.com/sarchlab/bqs/hooking"
	"github.com/sarchlab/bqs/status"
)

var _ = Describe("Builder", func() {
	It("should need a driver and a manager", func() {
		_, err := MakeBuilder().Build()
		Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))

		_, err = MakeBuilder().WithDriver(memdriver.New()).Build()
		Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
	})

	It("should reject managers out of partition order", func() {
		drv := memdriver.New()
		m, err := entitymanager.MakeBuilder().
			WithPartition(1).
			WithDriver(drv, drv).
			Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = MakeBuilder().WithDriver(drv).WithManagers(m).Build()
		Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
	})

	It("should reject devices mapped to missing partitions", func() {
		drv := memdriver.New()
		m, err := entitymanager.MakeBuilder().WithDriver(drv, drv).Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = MakeBuilder().
			WithDriver(drv).
			WithManagers(m).
			WithDevicePartitions(map[uint32]int{3: 1}).
			Build()
		Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
	})
})

var _ = Describe("Relation", func() {
	var (
		f       *fixture
		a, b, c entity.Info
	)

	BeforeEach(func() {
		f = newFixture(1, nil)
		a = f.queue(0, 1, 8)
		b = f.queue(0, 2, 8)
		c = f.queue(0, 3, 8)
	})

	Context("binding", func() {
		It("should keep both directions in step", func() {
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, a, c, 0)).To(Succeed())

			Expect(f.r.Relations(0)).To(Equal([]Pair{
				{Src: a.Key(), Dst: b.Key()},
				{Src: a.Key(), Dst: c.Key()},
			}))
			Expect(f.r.DstsOf(a.Key())).To(Equal([]entity.Key{b.Key(), c.Key()}))
			Expect(f.r.SrcsOf(b.Key())).To(Equal([]entity.Key{a.Key()}))
			Expect(f.r.SrcsOf(c.Key())).To(Equal([]entity.Key{a.Key()}))
		})

		It("should create entities and subscribe events", func() {
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())

			mgr := f.r.Manager(0)
			_, found := mgr.Entity(a.Key(), entity.DirSrc)
			Expect(found).To(BeTrue())
			_, found = mgr.Entity(b.Key(), entity.DirDst)
			Expect(found).To(BeTrue())

			Expect(f.drv.Subscribed(addrOf(a), driver.EventEnqueue)).To(BeTrue())
			Expect(f.drv.Subscribed(addrOf(b), driver.EventFullToNotFull)).
				To(BeTrue())

			node, found := f.r.Node(a.Key())
			Expect(found).To(BeTrue())
			_, bound := node.Entity(entity.DirSrc)
			Expect(bound).To(BeTrue())

			part, found := f.r.Partition(b.Key())
			Expect(found).To(BeTrue())
			Expect(part).To(Equal(0))
		})

		It("should be idempotent", func() {
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())

			s := f.r.Stats(0)
			Expect(s.BindCount).To(Equal(1))
			Expect(s.SubscribeCount).To(Equal(2))
			Expect(f.r.Manager(0).Len()).To(Equal(2))
		})

		It("should reject binding an endpoint to itself", func() {
			err := f.r.Bind(f.ctx, a, a, 0)

			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
			Expect(f.r.Relations(0)).To(BeEmpty())
		})

		It("should reject partitions out of range", func() {
			err := f.r.Bind(f.ctx, a, b, 1)

			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should not ask for a retry when the context is done", func() {
			ctx, cancel := context.WithCancel(f.ctx)
			cancel()

			err := f.r.Bind(ctx, a, b, 0)

			Expect(err).To(MatchError(context.Canceled))
			Expect(errors.Is(err, status.ErrRetry)).To(BeFalse())
			Expect(f.r.Relations(0)).To(BeEmpty())
		})

		It("should reject tags without a channel", func() {
			tag := entity.Info{
				Class:   entity.ClassCommTag,
				ID:      9,
				Variant: entity.VariantTag,
			}

			err := f.r.Bind(f.ctx, a, tag, 0)

			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should roll back when a subscription fails", func() {
			f.drv.FailSubscribe(addrOf(b), errors.New("no irq"))

			err := f.r.Bind(f.ctx, a, b, 0)

			Expect(status.CodeOf(err)).To(Equal(status.CodeDriverError))
			Expect(f.r.Relations(0)).To(BeEmpty())
			Expect(f.r.Manager(0).Len()).To(Equal(0))
			Expect(f.drv.Subscribed(addrOf(a), driver.EventEnqueue)).To(BeFalse())
			Expect(f.r.Stats(0).SubscribeCount).To(Equal(0))

			_, found := f.r.Node(a.Key())
			Expect(found).To(BeFalse())
		})

		It("should roll back the source when the destination cannot be built", func() {
			mgr, err := entitymanager.MakeBuilder().
				WithDriver(f.drv, f.drv).
				WithChannelDepth(1).
				Build()
			Expect(err).NotTo(HaveOccurred())

			r, err := MakeBuilder().WithDriver(f.drv).WithManagers(mgr).Build()
			Expect(err).NotTo(HaveOccurred())

			tag := entity.Tag(0, 9, commchannel.Channel{
				Handle: 1, LocalTagID: 9, PeerTagID: 9, PeerRankID: 1,
			})

			err = r.Bind(f.ctx, a, tag, 0)

			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
			Expect(r.Relations(0)).To(BeEmpty())
			Expect(mgr.Len()).To(Equal(0))
			Expect(mgr.Channels().Len()).To(Equal(0))
			Expect(f.drv.Subscribed(addrOf(a), driver.EventEnqueue)).To(BeFalse())

			_, found := r.Node(a.Key())
			Expect(found).To(BeFalse())
			_, found = r.Node(tag.Key())
			Expect(found).To(BeFalse())
		})

		It("should keep existing relations when a later bind fails", func() {
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())
			f.drv.FailSubscribe(addrOf(c), errors.New("no irq"))

			Expect(f.r.Bind(f.ctx, a, c, 0)).NotTo(Succeed())

			Expect(f.r.Relations(0)).To(Equal([]Pair{
				{Src: a.Key(), Dst: b.Key()},
			}))
			Expect(f.drv.Subscribed(addrOf(a), driver.EventEnqueue)).To(BeTrue())
			Expect(f.r.Manager(0).Len()).To(Equal(2))
		})

		It("should call hooks", func() {
			var positions []*hooking.HookPos

			f.r.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				positions = append(positions, ctx.Pos)
			}))

			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())
			f.r.Order(0)
			Expect(f.r.UnBind(a.Key(), b.Key())).To(Succeed())

			Expect(positions).To(Equal([]*hooking.HookPos{
				HookPosBind, HookPosOrder, HookPosUnbind,
			}))
		})
	})

	Context("under a random sequence of changes", func() {
		It("should keep both tables mirrored and entities matched", func() {
			queues := []entity.Info{a, b, c}
			for id := uint32(4); id <= 7; id++ {
				queues = append(queues, f.queue(0, id, 8))
			}

			rng := rand.New(rand.NewSource(42))
			pick := func() entity.Info { return queues[rng.Intn(len(queues))] }

			for step := 0; step < 500; step++ {
				src, dst := pick(), pick()

				switch op := rng.Intn(10); {
				case op < 6:
					if src.Key() != dst.Key() {
						Expect(f.r.Bind(f.ctx, src, dst, 0)).To(Succeed())
					}
				case op < 8:
					Expect(f.r.UnBind(src.Key(), dst.Key())).To(Succeed())
				case op < 9:
					Expect(f.r.UnBindBySrc(src.Key())).To(Succeed())
				default:
					Expect(f.r.UnBindByDst(dst.Key())).To(Succeed())
				}

				expectConsistent(f.r)
			}
		})
	})

	Context("unbinding", func() {
		BeforeEach(func() {
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, a, c, 0)).To(Succeed())
		})

		It("should release endpoints no longer used", func() {
			Expect(f.r.UnBind(a.Key(), b.Key())).To(Succeed())

			mgr := f.r.Manager(0)
			_, found := mgr.Entity(b.Key(), entity.DirDst)
			Expect(found).To(BeFalse())
			_, found = mgr.Entity(a.Key(), entity.DirSrc)
			Expect(found).To(BeTrue())

			Expect(f.drv.Subscribed(addrOf(b), driver.EventFullToNotFull)).
				To(BeFalse())
			Expect(f.drv.Subscribed(addrOf(a), driver.EventEnqueue)).To(BeTrue())

			_, found = f.r.Node(b.Key())
			Expect(found).To(BeFalse())
		})

		It("should ignore unknown relations", func() {
			Expect(f.r.UnBind(b.Key(), c.Key())).To(Succeed())
			Expect(f.r.Relations(0)).To(HaveLen(2))
		})

		It("should unbind by source", func() {
			Expect(f.r.UnBindBySrc(a.Key())).To(Succeed())

			Expect(f.r.Relations(0)).To(BeEmpty())
			Expect(f.r.Manager(0).Len()).To(Equal(0))
			Expect(f.r.Stats(0).SubscribeCount).To(Equal(0))
		})

		It("should unbind by destination", func() {
			Expect(f.r.UnBindByDst(c.Key())).To(Succeed())

			Expect(f.r.Relations(0)).To(Equal([]Pair{
				{Src: a.Key(), Dst: b.Key()},
			}))
		})
	})

	Context("with groups", func() {
		var d, e entity.Info

		BeforeEach(func() {
			d = f.queue(0, 4, 8)
			e = f.queue(0, 5, 8)
		})

		It("should create groups with fresh ids", func() {
			g1, err := f.r.CreateGroup([]entity.Info{a, c})
			Expect(err).NotTo(HaveOccurred())

			g2, err := f.r.CreateGroup([]entity.Info{b})
			Expect(err).NotTo(HaveOccurred())

			Expect(g1.ID).NotTo(Equal(g2.ID))
			Expect(g1.Key().IsGroup()).To(BeTrue())
			Expect(f.r.Groups()).To(HaveLen(2))
		})

		It("should reject a second group with the same id", func() {
			_, err := f.r.CreateGroupWithID(100, entity.PolicyBroadcast,
				[]entity.Info{a, c})
			Expect(err).NotTo(HaveOccurred())

			_, err = f.r.CreateGroupWithID(100, entity.PolicyBroadcast,
				[]entity.Info{b})
			Expect(status.CodeOf(err)).To(Equal(status.CodeGroupHasExist))

			g, found := f.r.Group(100)
			Expect(found).To(BeTrue())
			Expect(g.Members).To(HaveLen(2))
		})

		It("should reject invalid members", func() {
			_, err := f.r.CreateGroup(nil)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))

			_, err = f.r.CreateGroup([]entity.Info{a, a})
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))

			inner := entity.Group(7, entity.PolicyBroadcast)
			_, err = f.r.CreateGroup([]entity.Info{inner})
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should not bind groups never created", func() {
			err := f.r.Bind(f.ctx, a, entity.Group(55, entity.PolicyBroadcast), 0)

			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should reject binding a member on its own next to its group", func() {
			g, err := f.r.CreateGroup([]entity.Info{a, c})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.r.Bind(f.ctx, g, d, 0)).To(Succeed())

			err = f.r.Bind(f.ctx, a, e, 0)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
			Expect(f.r.Relations(0)).To(HaveLen(1))
		})

		It("should reject binding a group whose member is bound", func() {
			Expect(f.r.Bind(f.ctx, a, e, 0)).To(Succeed())

			g, err := f.r.CreateGroup([]entity.Info{a, c})
			Expect(err).NotTo(HaveOccurred())

			err = f.r.Bind(f.ctx, g, d, 0)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should reject groups sharing a member on the same side", func() {
			g1, err := f.r.CreateGroup([]entity.Info{a, b})
			Expect(err).NotTo(HaveOccurred())
			g2, err := f.r.CreateGroup([]entity.Info{a, c})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.r.Bind(f.ctx, g1, d, 0)).To(Succeed())

			err = f.r.Bind(f.ctx, g2, e, 0)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
			Expect(f.r.Relations(0)).To(HaveLen(1))

			Expect(f.r.UnBind(g1.Key(), d.Key())).To(Succeed())
			Expect(f.drv.Subscribed(addrOf(a), driver.EventEnqueue)).To(BeFalse())

			Expect(f.r.Bind(f.ctx, g2, e, 0)).To(Succeed())
			Expect(f.drv.Subscribed(addrOf(a), driver.EventEnqueue)).To(BeTrue())
		})

		It("should reject destination groups sharing a member", func() {
			g1, err := f.r.CreateGroup([]entity.Info{d, e})
			Expect(err).NotTo(HaveOccurred())
			g2, err := f.r.CreateGroup([]entity.Info{e, c})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.r.Bind(f.ctx, a, g1, 0)).To(Succeed())

			err = f.r.Bind(f.ctx, b, g2, 0)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
			Expect(f.drv.Subscribed(addrOf(e), driver.EventFullToNotFull)).
				To(BeTrue())
		})

		It("should allow a group another destination", func() {
			g1, err := f.r.CreateGroup([]entity.Info{a, b})
			Expect(err).NotTo(HaveOccurred())
			_, err = f.r.CreateGroup([]entity.Info{a, c})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.r.Bind(f.ctx, g1, d, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, g1, e, 0)).To(Succeed())
			Expect(f.r.Relations(0)).To(HaveLen(2))
		})

		It("should reject mixing groups and plain peers", func() {
			g, err := f.r.CreateGroup([]entity.Info{d, e})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.r.Bind(f.ctx, a, g, 0)).To(Succeed())

			err = f.r.Bind(f.ctx, a, b, 0)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should reject relations between a group and its member", func() {
			g, err := f.r.CreateGroup([]entity.Info{a, c})
			Expect(err).NotTo(HaveOccurred())

			err = f.r.Bind(f.ctx, g, c, 0)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should mark sources sending to a group for transaction ids", func() {
			g, err := f.r.CreateGroup([]entity.Info{d, e})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.r.Bind(f.ctx, a, g, 0)).To(Succeed())

			src, found := f.r.Manager(0).Entity(a.Key(), entity.DirSrc)
			Expect(found).To(BeTrue())
			Expect(src.NeedTransID()).To(BeTrue())
		})

		It("should not delete a bound group", func() {
			g, err := f.r.CreateGroup([]entity.Info{d, e})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.r.Bind(f.ctx, a, g, 0)).To(Succeed())

			err = f.r.DeleteGroup(g.ID)
			Expect(status.CodeOf(err)).To(Equal(status.CodeGroupExistInRoute))

			Expect(f.r.UnBind(a.Key(), g.Key())).To(Succeed())
			Expect(f.r.DeleteGroup(g.ID)).To(Succeed())

			_, found := f.r.Group(g.ID)
			Expect(found).To(BeFalse())

			err = f.r.DeleteGroup(g.ID)
			Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
		})

		It("should tie a group to the partition it is bound in", func() {
			g, err := f.r.CreateGroup([]entity.Info{d, e})
			Expect(err).NotTo(HaveOccurred())

			rec, _ := f.r.Group(g.ID)
			Expect(rec.ResIndex).To(Equal(-1))

			Expect(f.r.Bind(f.ctx, a, g, 0)).To(Succeed())
			rec, _ = f.r.Group(g.ID)
			Expect(rec.ResIndex).To(Equal(0))

			Expect(f.r.UnBind(a.Key(), g.Key())).To(Succeed())
			rec, _ = f.r.Group(g.ID)
			Expect(rec.ResIndex).To(Equal(-1))
		})
	})

	Context("ordering", func() {
		It("should place senders before the sources they feed", func() {
			Expect(f.r.Bind(f.ctx, b, c, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())

			Expect(f.r.Order(0)).To(Equal([]entity.Key{a.Key(), b.Key()}))
			Expect(f.r.LoopFlag(0)).To(BeFalse())
		})

		It("should fall back to bind order on a cycle", func() {
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, b, c, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, c, a, 0)).To(Succeed())

			Expect(f.r.Order(0)).To(Equal([]entity.Key{
				a.Key(), b.Key(), c.Key(),
			}))
			Expect(f.r.LoopFlag(0)).To(BeTrue())

			Expect(f.r.UnBind(c.Key(), a.Key())).To(Succeed())
			f.r.Order(0)
			Expect(f.r.LoopFlag(0)).To(BeFalse())
		})
	})

	Context("quarantine", func() {
		BeforeEach(func() {
			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())
			Expect(f.r.Bind(f.ctx, a, c, 0)).To(Succeed())
		})

		It("should quarantine and tear down the relations of a reported dst", func() {
			f.r.ReportAbnormal(b.Key(), entity.DirDst)
			Expect(f.r.PendingReports()).To(Equal(1))

			n := f.r.UpdateRelation(f.ctx)

			Expect(n).To(Equal(1))
			Expect(f.r.PendingReports()).To(Equal(0))
			Expect(f.r.Relations(0)).To(Equal([]Pair{
				{Src: a.Key(), Dst: c.Key()},
			}))
			Expect(f.r.AbnormalRelations(0)).To(Equal([]Pair{
				{Src: a.Key(), Dst: b.Key()},
			}))
			Expect(f.r.Stats(0).AbnormalBindCount).To(Equal(1))

			_, found := f.r.Manager(0).Entity(b.Key(), entity.DirDst)
			Expect(found).To(BeFalse())
		})

		It("should keep live relations when only marking", func() {
			Expect(f.r.MarkAbnormalSrc(a.Key())).To(Equal(2))

			Expect(f.r.Relations(0)).To(HaveLen(2))
			Expect(f.r.AbnormalRelations(0)).To(HaveLen(2))

			f.r.UnBindRelationBySrc(a.Key())

			Expect(f.r.Relations(0)).To(BeEmpty())
			Expect(f.r.AbnormalRelations(0)).To(HaveLen(2))
			Expect(f.r.Manager(0).Len()).To(Equal(0))
		})

		It("should forget the quarantine when bound again", func() {
			f.r.ReportAbnormal(b.Key(), entity.DirDst)
			f.r.UpdateRelation(f.ctx)

			Expect(f.r.Bind(f.ctx, a, b, 0)).To(Succeed())

			Expect(f.r.AbnormalRelations(0)).To(BeEmpty())
			Expect(f.r.Relations(0)).To(HaveLen(2))
		})

		It("should forget the quarantine when unbound", func() {
			f.r.ReportAbnormal(b.Key(), entity.DirDst)
			f.r.UpdateRelation(f.ctx)

			Expect(f.r.UnBind(a.Key(), b.Key())).To(Succeed())

			Expect(f.r.AbnormalRelations(0)).To(BeEmpty())
			_, found := f.r.Node(b.Key())
			Expect(found).To(BeFalse())
		})

		It("should quarantine a group when one of its members fails", func() {
			d := f.queue(0, 4, 8)
			e := f.queue(0, 5, 8)
			g, err := f.r.CreateGroup([]entity.Info{d, e})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.r.Bind(f.ctx, c, g, 0)).To(Succeed())

			f.r.ReportAbnormal(d.Key(), entity.DirDst)
			Expect(f.r.UpdateRelation(f.ctx)).To(Equal(1))

			Expect(f.r.AbnormalRelations(0)).To(Equal([]Pair{
				{Src: c.Key(), Dst: g.Key()},
			}))
		})
	})
})

var _ = Describe("Partitioned Relation", func() {
	var (
		f    *fixture
		x, y entity.Info
	)

	BeforeEach(func() {
		f = newFixture(2, map[uint32]int{1: 1})
		x = f.queue(1, 1, 8)
		y = f.queue(1, 2, 8)
	})

	It("should ask to resubmit to the partition of the device", func() {
		err := f.r.Bind(f.ctx, x, y, 0)

		Expect(status.CodeOf(err)).To(Equal(status.CodeRetry))
		Expect(f.r.Relations(0)).To(BeEmpty())
		Expect(f.r.Manager(0).Len()).To(Equal(0))

		Expect(f.r.Bind(f.ctx, x, y, 1)).To(Succeed())

		part, found := f.r.Partition(x.Key())
		Expect(found).To(BeTrue())
		Expect(part).To(Equal(1))
		Expect(f.r.Manager(1).Len()).To(Equal(2))
	})

	It("should follow an endpoint already bound", func() {
		z := f.queue(0, 3, 8)

		Expect(f.r.Bind(f.ctx, x, y, 1)).To(Succeed())
		Expect(f.r.Bind(f.ctx, z, y, 1)).To(Succeed())

		part, _ := f.r.Partition(z.Key())
		Expect(part).To(Equal(1))
	})

	It("should reject relations spanning partitions", func() {
		z := f.queue(0, 3, 8)
		w := f.queue(0, 4, 8)

		Expect(f.r.Bind(f.ctx, x, y, 1)).To(Succeed())
		Expect(f.r.Bind(f.ctx, z, w, 0)).To(Succeed())

		err := f.r.Bind(f.ctx, x, w, 1)
		Expect(status.CodeOf(err)).To(Equal(status.CodeParamInvalid))
	})
})

// expectConsistent checks that the relation tables of every partition mirror
// each other and that each bound endpoint has exactly one runtime entity per
// direction it is bound in.
func expectConsistent(r *Relation) {
	for _, p := range r.parts {
		bound := 0

		for s, dsts := range p.srcToDst {
			if len(dsts) > 0 {
				bound++
			}

			for d := range dsts {
				ExpectWithOffset(1, hasEdge(p.dstToSrc, d, s)).To(BeTrue(),
					"%s -> %s is missing from the destination table", s, d)
			}
		}

		for d, srcs := range p.dstToSrc {
			if len(srcs) > 0 {
				bound++
			}

			for s := range srcs {
				ExpectWithOffset(1, hasEdge(p.srcToDst, s, d)).To(BeTrue(),
					"%s -> %s is missing from the source table", s, d)
			}
		}

		ExpectWithOffset(1, p.mgr.Len()).To(Equal(bound))
	}
}
