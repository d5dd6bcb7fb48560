package entitymanager

import (
	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/commchannel"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/endpoint"
	"github.com/sarchlab/bqs/status"
)

// Builder can build entity managers.
type Builder struct {
	partition int
	deps      endpoint.Deps
	channels  *commchannel.Manager
	log       zerolog.Logger
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{log: zerolog.Nop()}
}

// WithPartition sets the partition the manager serves.
func (b Builder) WithPartition(p int) Builder {
	b.partition = p
	return b
}

// WithDriver sets the queue driver and the allocator.
func (b Builder) WithDriver(d driver.QueueDriver, a driver.Allocator) Builder {
	b.deps.Driver = d
	b.deps.Allocator = a

	return b
}

// WithFabric sets the remote fabric.
func (b Builder) WithFabric(f driver.Fabric) Builder {
	b.deps.Fabric = f
	return b
}

// WithWorkerPool sets the pool async-memory entities run on.
func (b Builder) WithWorkerPool(p *endpoint.WorkerPool) Builder {
	b.deps.Pool = p
	return b
}

// WithClock sets the tick source of fabric requests.
func (b Builder) WithClock(clock func() uint64) Builder {
	b.deps.Clock = clock
	return b
}

// WithHeldDepth sets how many buffers a destination may keep.
func (b Builder) WithHeldDepth(n int) Builder {
	b.deps.HeldDepth = n
	return b
}

// WithChannelDepth sets the depth of the in-flight ring of channel entities.
func (b Builder) WithChannelDepth(n uint32) Builder {
	b.deps.ChannelDepth = n
	return b
}

// WithChannels sets the comm channel manager. All partitions of an instance
// must be given the same one. Without it, the manager gets a private one.
func (b Builder) WithChannels(c *commchannel.Manager) Builder {
	b.channels = c
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// Build creates the Manager.
func (b Builder) Build() (*Manager, error) {
	if b.deps.Driver == nil || b.deps.Allocator == nil {
		return nil, status.New(status.CodeParamInvalid, "Build",
			"entity manager needs a driver and an allocator")
	}

	if b.channels == nil {
		b.channels = commchannel.NewManager()
	}

	log := b.log.With().Int("partition", b.partition).Logger()
	b.deps.Logger = log

	return &Manager{
		partition: b.partition,
		deps:      b.deps,
		channels:  b.channels,
		log:       log,
		entities:  make(map[entKey]endpoint.Entity),
		byAddr:    make(map[driver.QueueAddr][]endpoint.Entity),
		src:       newCommChannels(),
		dst:       newCommChannels(),
	}, nil
}
