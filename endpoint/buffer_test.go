package endpoint

import (
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/hooking"
)

var _ = ginkgo.Describe("Buffer", func() {
	var buf *Buffer

	ginkgo.BeforeEach(func() {
		buf = NewBuffer("Buf", 2)
	})

	ginkgo.It("should allow push and pop", func() {
		Expect(buf.Capacity()).To(Equal(2))
		Expect(buf.CanPush()).To(BeTrue())

		buf.Push(1)
		Expect(buf.CanPush()).To(BeTrue())
		Expect(buf.Size()).To(Equal(1))

		buf.Push(2)
		Expect(buf.CanPush()).To(BeFalse())
		Expect(buf.Size()).To(Equal(2))
		Expect(func() {
			buf.Push(3)
		}).To(Panic())

		e, found := buf.Peek()
		Expect(found).To(BeTrue())
		Expect(e).To(Equal(driver.Mbuf(1)))

		e, _ = buf.Pop()
		Expect(e).To(Equal(driver.Mbuf(1)))
		e, _ = buf.Pop()
		Expect(e).To(Equal(driver.Mbuf(2)))

		_, found = buf.Pop()
		Expect(found).To(BeFalse())
	})

	ginkgo.It("should push to the front", func() {
		buf.Push(1)
		buf.PushFront(2)

		Expect(buf.Clear()).To(Equal([]driver.Mbuf{2, 1}))
		Expect(buf.Size()).To(Equal(0))
	})

	ginkgo.It("should invoke hooks", func() {
		var positions []*hooking.HookPos

		buf.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos)
		}))

		buf.Push(1)
		buf.Pop()

		Expect(positions).To(Equal([]*hooking.HookPos{
			HookPosBufPush, HookPosBufPop,
		}))
	})
})
