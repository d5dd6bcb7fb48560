package memdriver

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bqs/driver"
)

var _ = Describe("Driver", func() {
	var (
		d    *Driver
		addr driver.QueueAddr
	)

	BeforeEach(func() {
		d = New()
		addr = driver.QueueAddr{DeviceID: 0, QueueID: 1}
		Expect(d.CreateQueue(addr, 2)).To(Succeed())
	})

	It("should reject duplicated queues", func() {
		Expect(d.CreateQueue(addr, 2)).NotTo(Succeed())
	})

	It("should enqueue and dequeue in order", func() {
		Expect(d.Put(addr, []byte("a"))).To(Succeed())
		Expect(d.Put(addr, []byte("bc"))).To(Succeed())
		Expect(d.Put(addr, []byte("d"))).To(MatchError(driver.ErrFull))

		n, err := d.Peek(addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))

		data, _, err := d.Take(addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("a")))

		data, _, err = d.Take(addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("bc")))

		_, _, err = d.Take(addr)
		Expect(err).To(MatchError(driver.ErrEmpty))
		Expect(d.LiveBuffers()).To(Equal(0))
	})

	It("should raise subscribed events only", func() {
		Expect(d.Put(addr, []byte("a"))).To(Succeed())
		Expect(d.PollEvents(0)).To(BeEmpty())

		Expect(d.Subscribe(addr, driver.EventEnqueue)).To(Succeed())
		Expect(d.Subscribe(addr, driver.EventFullToNotFull)).To(Succeed())
		Expect(d.Put(addr, []byte("b"))).To(Succeed())
		_, _, err := d.Take(addr)
		Expect(err).NotTo(HaveOccurred())

		Expect(d.PollEvents(0)).To(Equal([]driver.Event{
			{Addr: addr, Kind: driver.EventEnqueue},
			{Addr: addr, Kind: driver.EventFullToNotFull},
		}))

		Expect(d.Unsubscribe(addr, driver.EventEnqueue)).To(Succeed())
		Expect(d.Subscribed(addr, driver.EventEnqueue)).To(BeFalse())
	})

	It("should report missing queues", func() {
		d.DestroyQueue(addr)

		_, err := d.Dequeue(addr)
		Expect(err).To(MatchError(driver.ErrNotExist))
		Expect(d.Subscribe(addr, driver.EventEnqueue)).
			To(MatchError(driver.ErrNotExist))

		_, err = d.Status(addr)
		Expect(err).To(MatchError(driver.ErrNotExist))
	})

	It("should fail subscription on request", func() {
		boom := driver.ErrNotExist
		d.FailSubscribe(addr, boom)
		Expect(d.Subscribe(addr, driver.EventEnqueue)).To(MatchError(boom))

		d.FailSubscribe(addr, nil)
		Expect(d.Subscribe(addr, driver.EventEnqueue)).To(Succeed())
	})

	It("should move buffers through the blocking api", func() {
		ctx := context.Background()

		Expect(d.EnqueueBuffer(ctx, addr,
			[][]byte{[]byte("he"), []byte("llo")})).To(Succeed())

		n, err := d.Peek(addr)
		Expect(err).NotTo(HaveOccurred())

		out := make([]byte, n)
		Expect(d.DequeueBuffer(ctx, addr, [][]byte{out})).To(Succeed())
		Expect(string(out)).To(Equal("hello"))
	})

	It("should share data between reference copies", func() {
		buf, err := d.Alloc(4)
		Expect(err).NotTo(HaveOccurred())

		data, _ := d.Data(buf)
		copy(data, "abcd")

		priv, _ := d.PrivInfo(buf)
		priv[0] = 9

		cp, err := d.CopyRef(buf)
		Expect(err).NotTo(HaveOccurred())

		cpData, _ := d.Data(cp)
		Expect(string(cpData)).To(Equal("abcd"))

		cpPriv, _ := d.PrivInfo(cp)
		Expect(cpPriv[0]).To(Equal(byte(9)))

		Expect(d.Free(buf)).To(Succeed())
		Expect(d.Free(buf)).To(MatchError(ErrUnknownBuffer))
		Expect(d.Free(cp)).To(Succeed())
		Expect(d.LiveBuffers()).To(Equal(0))
	})
})
