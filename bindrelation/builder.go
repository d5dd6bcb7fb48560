package bindrelation

import (
	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/entitymanager"
	"github.com/sarchlab/bqs/idgen"
	"github.com/sarchlab/bqs/status"
)

// DefaultDispatchBudget is the number of buffers Dispatch moves per call when
// the caller does not give a budget.
const DefaultDispatchBudget = 64

// Builder can build relations.
type Builder struct {
	drv        driver.QueueDriver
	managers   []*entitymanager.Manager
	devicePart map[uint32]int
	groupIDs   idgen.Generator
	transIDs   idgen.Generator
	budget     int
	log        zerolog.Logger
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		budget: DefaultDispatchBudget,
		log:    zerolog.Nop(),
	}
}

// WithDriver sets the queue driver used for event subscriptions.
func (b Builder) WithDriver(d driver.QueueDriver) Builder {
	b.drv = d
	return b
}

// WithManagers sets the entity managers, one per partition. More than one
// manager enables partitioned routing.
func (b Builder) WithManagers(m ...*entitymanager.Manager) Builder {
	b.managers = m
	return b
}

// WithDevicePartitions sets the partition each device belongs to. Devices
// not listed belong to partition 0.
func (b Builder) WithDevicePartitions(m map[uint32]int) Builder {
	b.devicePart = m
	return b
}

// WithGroupIDGenerator sets the source of group ids.
func (b Builder) WithGroupIDGenerator(g idgen.Generator) Builder {
	b.groupIDs = g
	return b
}

// WithTransIDGenerator sets the source of transaction ids.
func (b Builder) WithTransIDGenerator(g idgen.Generator) Builder {
	b.transIDs = g
	return b
}

// WithDispatchBudget sets the default number of buffers moved per Dispatch.
func (b Builder) WithDispatchBudget(n int) Builder {
	b.budget = n
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// Build creates the Relation.
func (b Builder) Build() (*Relation, error) {
	if b.drv == nil {
		return nil, status.New(status.CodeParamInvalid, "Build",
			"relation needs a driver")
	}

	if len(b.managers) == 0 {
		return nil, status.New(status.CodeParamInvalid, "Build",
			"relation needs at least one entity manager")
	}

	for dev, part := range b.devicePart {
		if part < 0 || part >= len(b.managers) {
			return nil, status.New(status.CodeParamInvalid, "Build",
				"device %d mapped to missing partition %d", dev, part)
		}
	}

	if b.groupIDs == nil {
		b.groupIDs = idgen.New()
	}

	if b.transIDs == nil {
		b.transIDs = idgen.New()
	}

	if b.budget <= 0 {
		b.budget = DefaultDispatchBudget
	}

	r := &Relation{
		groups:        make(map[uint32]*Group),
		drv:           b.drv,
		devicePart:    b.devicePart,
		groupIDs:      b.groupIDs,
		transIDs:      b.transIDs,
		defaultBudget: b.budget,
		log:           b.log,
	}

	for i, m := range b.managers {
		if m.Partition() != i {
			return nil, status.New(status.CodeParamInvalid, "Build",
				"manager %d serves partition %d", i, m.Partition())
		}

		r.parts = append(r.parts, newPartition(i, m))
	}

	return r, nil
}
