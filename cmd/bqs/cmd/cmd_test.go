package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/config"
	"github.com/sarchlab/bqs/datarecording"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entity"
)

func ref(dev, id uint32) *config.QueueRef {
	return &config.QueueRef{Device: dev, ID: id}
}

var _ = Describe("Instance", func() {
	var (
		ctx  context.Context
		cfg  config.Config
		inst *instance
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.Default()
	})

	AfterEach(func() {
		if inst != nil {
			inst.close()
			inst = nil
		}
	})

	build := func() {
		var err error

		inst, err = newInstance(ctx, cfg, zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())
	}

	It("should create one partition per NUMA node", func() {
		cfg.NUMA = config.NUMA{
			Enabled:    true,
			Partitions: 2,
			Devices:    map[uint32]int{1: 1},
		}

		build()

		Expect(inst.relation.Partitions()).To(Equal(2))
		Expect(inst.sched.Hccl(1)).NotTo(BeNil())
	})

	It("should apply a topology and move data along it", func() {
		group := uint32(100)

		build()

		topo := config.Topology{
			Queues: []config.Queue{
				{Device: 0, ID: 1, Depth: 8},
				{Device: 0, ID: 2, Depth: 8},
				{Device: 0, ID: 3, Depth: 8},
			},
			Groups: []config.Group{{
				ID:      group,
				Members: []config.Endpoint{{Queue: ref(0, 2)}, {Queue: ref(0, 3)}},
			}},
			Bindings: []config.Binding{{
				Src: config.Endpoint{Queue: ref(0, 1)},
				Dst: config.Endpoint{Group: &group},
			}},
		}

		Expect(inst.applyTopology(ctx, topo)).To(Succeed())

		src := entity.Queue(entity.ClassDeviceQueue, 0, 1)
		dst := entity.Group(group, entity.PolicyBroadcast)
		Expect(inst.relation.Relations(0)).To(Equal([]bindrelation.Pair{
			{Src: src.Key(), Dst: dst.Key()},
		}))

		Expect(inst.drv.Put(driver.QueueAddr{QueueID: 1}, []byte("x"))).To(Succeed())

		_, err := inst.sched.Step(ctx, 0)
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []uint32{2, 3} {
			data, _, err := inst.drv.Take(driver.QueueAddr{QueueID: id})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("x"))
		}
	})

	It("should bind in the partition that owns the device", func() {
		cfg.NUMA = config.NUMA{
			Enabled:    true,
			Partitions: 2,
			Devices:    map[uint32]int{1: 1},
		}

		build()

		topo := config.Topology{
			Queues: []config.Queue{
				{Device: 1, ID: 1, Depth: 8},
				{Device: 1, ID: 2, Depth: 8},
			},
			Bindings: []config.Binding{{
				Src: config.Endpoint{Queue: ref(1, 1)},
				Dst: config.Endpoint{Queue: ref(1, 2)},
			}},
		}

		Expect(inst.applyTopology(ctx, topo)).To(Succeed())
		Expect(inst.relation.Relations(0)).To(BeEmpty())
		Expect(inst.relation.Relations(1)).To(HaveLen(1))
	})

	It("should reject undeclared endpoints", func() {
		group := uint32(7)

		build()

		err := inst.applyTopology(ctx, config.Topology{
			Queues: []config.Queue{{ID: 1, Depth: 4}},
			Bindings: []config.Binding{{
				Src: config.Endpoint{Queue: ref(0, 1)},
				Dst: config.Endpoint{Group: &group},
			}},
		})
		Expect(err).To(MatchError(ContainSubstring("group 7 is not declared")))

		err = inst.applyTopology(ctx, config.Topology{
			Groups: []config.Group{{
				ID:      8,
				Members: []config.Endpoint{{Queue: ref(0, 9)}},
			}},
		})
		Expect(err).To(MatchError(ContainSubstring("queue 0:9 is not declared")))
	})
})

var _ = Describe("Commands", func() {
	execute := func(args ...string) (string, error) {
		var out bytes.Buffer

		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)

		err := rootCmd.Execute()

		return out.String(), err
	}

	AfterEach(func() {
		eventsKind = ""
		eventsLimit = 0
		runOpts = runOptions{}
	})

	It("should print the version", func() {
		out, err := execute("version")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("bqs " + Version))
	})

	It("should run a configured router and record its events", func() {
		dir := GinkgoT().TempDir()
		recPath := filepath.Join(dir, "rec")
		cfgPath := filepath.Join(dir, "bqs.yaml")

		Expect(os.WriteFile(cfgPath, []byte(`
log:
  level: disabled
recording:
  enabled: true
  path: `+recPath+`
topology:
  queues:
    - {device: 0, id: 1, depth: 4}
    - {device: 0, id: 2, depth: 4}
  bindings:
    - src: {queue: {device: 0, id: 1}}
      dst: {queue: {device: 0, id: 2}}
`), 0o600)).To(Succeed())

		_, err := execute("run", "--config", cfgPath, "--env", "",
			"--duration", "50ms")
		Expect(err).NotTo(HaveOccurred())

		out, err := execute("events", recPath+".sqlite3", "--event", "Bind")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Bind"))
		Expect(out).To(ContainSubstring("1 of 1 events"))
	})

	It("should fail on a bad configuration", func() {
		_, err := execute("run", "--config",
			filepath.Join(GinkgoT().TempDir(), "missing.yaml"),
			"--duration", time.Millisecond.String())

		Expect(err).To(HaveOccurred())
	})
})

// brokenRecorder is a recorder whose database cannot be closed.
type brokenRecorder struct {
	datarecording.DataRecorder
}

func (brokenRecorder) Close() error {
	return errors.New("disk gone")
}

var _ = Describe("Recording", func() {
	It("should log a recorder that fails to close", func() {
		var out bytes.Buffer
		log := zerolog.New(&out)

		closeRecorder(brokenRecorder{}, log)

		Expect(out.String()).To(ContainSubstring("recording not closed"))
		Expect(out.String()).To(ContainSubstring("disk gone"))
	})
})
