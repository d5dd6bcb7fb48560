package hcclprocess

import (
	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/status"
)

// DefaultMaxRequestAge is the number of ticks a fabric request may stay in
// flight before it is rejected.
const DefaultMaxRequestAge = 1 << 20

// Builder can build processes.
type Builder struct {
	relation *bindrelation.Relation
	resIndex int
	clock    func() uint64
	maxAge   uint64
	log      zerolog.Logger
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		maxAge: DefaultMaxRequestAge,
		log:    zerolog.Nop(),
	}
}

// WithRelation sets the relation whose channel entities are driven.
func (b Builder) WithRelation(r *bindrelation.Relation) Builder {
	b.relation = r
	return b
}

// WithPartition sets the partition the process serves.
func (b Builder) WithPartition(resIndex int) Builder {
	b.resIndex = resIndex
	return b
}

// WithClock sets the tick source used to age requests. It must be the clock
// of the entity manager of the partition.
func (b Builder) WithClock(clock func() uint64) Builder {
	b.clock = clock
	return b
}

// WithMaxRequestAge sets how many ticks a request may stay in flight. Zero
// disables the limit.
func (b Builder) WithMaxRequestAge(ticks uint64) Builder {
	b.maxAge = ticks
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// Build creates the Process.
func (b Builder) Build() (*Process, error) {
	if b.relation == nil {
		return nil, status.New(status.CodeParamInvalid, "Build",
			"process needs a relation")
	}

	if b.relation.Manager(b.resIndex) == nil {
		return nil, status.New(status.CodeParamInvalid, "Build",
			"partition %d does not exist", b.resIndex)
	}

	return &Process{
		relation: b.relation,
		resIndex: b.resIndex,
		clock:    b.clock,
		maxAge:   b.maxAge,
		log:      b.log.With().Int("partition", b.resIndex).Logger(),
	}, nil
}
