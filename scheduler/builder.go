package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/hcclprocess"
	"github.com/sarchlab/bqs/status"
)

// Defaults of a Builder.
const (
	DefaultInterval  = time.Millisecond
	DefaultMaxEvents = 256
)

// Builder can build schedulers.
type Builder struct {
	relation      *bindrelation.Relation
	events        driver.EventSource
	clock         *Clock
	interval      time.Duration
	statsInterval time.Duration
	budget        int
	maxEvents     int
	maxAge        uint64
	log           zerolog.Logger
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		interval:  DefaultInterval,
		maxEvents: DefaultMaxEvents,
		maxAge:    hcclprocess.DefaultMaxRequestAge,
		log:       zerolog.Nop(),
	}
}

// WithRelation sets the router to run.
func (b Builder) WithRelation(r *bindrelation.Relation) Builder {
	b.relation = r
	return b
}

// WithEventSource sets where hardware events come from.
func (b Builder) WithEventSource(src driver.EventSource) Builder {
	b.events = src
	return b
}

// WithClock sets the tick counter. Pass the same clock to the entity
// managers so that request ages are measured in scheduler ticks.
func (b Builder) WithClock(c *Clock) Builder {
	b.clock = c
	return b
}

// WithInterval sets how long an idle partition waits between steps.
func (b Builder) WithInterval(d time.Duration) Builder {
	b.interval = d
	return b
}

// WithStatsInterval sets how often partition statistics are logged. Zero
// turns the statistics off.
func (b Builder) WithStatsInterval(d time.Duration) Builder {
	b.statsInterval = d
	return b
}

// WithDispatchBudget sets the number of buffers a step may move.
func (b Builder) WithDispatchBudget(n int) Builder {
	b.budget = n
	return b
}

// WithMaxEvents sets the number of events taken in per step.
func (b Builder) WithMaxEvents(n int) Builder {
	b.maxEvents = n
	return b
}

// WithMaxRequestAge sets how many ticks a fabric request may stay in flight.
func (b Builder) WithMaxRequestAge(ticks uint64) Builder {
	b.maxAge = ticks
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// Build creates the Scheduler with one fabric process per partition.
func (b Builder) Build() (*Scheduler, error) {
	if b.relation == nil {
		return nil, status.New(status.CodeParamInvalid, "Build",
			"scheduler needs a relation")
	}

	if b.interval <= 0 {
		return nil, status.New(status.CodeParamInvalid, "Build",
			"interval must be positive, got %s", b.interval)
	}

	if b.clock == nil {
		b.clock = &Clock{}
	}

	s := &Scheduler{
		id:            uuid.New(),
		relation:      b.relation,
		events:        b.events,
		clock:         b.clock,
		interval:      b.interval,
		statsInterval: b.statsInterval,
		budget:        b.budget,
		maxEvents:     b.maxEvents,
		steps:         make([]atomic.Uint64, b.relation.Partitions()),
	}
	s.log = b.log.With().Stringer("instance", s.id).Logger()

	for i := 0; i < b.relation.Partitions(); i++ {
		p, err := hcclprocess.MakeBuilder().
			WithRelation(b.relation).
			WithPartition(i).
			WithClock(b.clock.Now).
			WithMaxRequestAge(b.maxAge).
			WithLogger(s.log).
			Build()
		if err != nil {
			return nil, err
		}

		s.procs = append(s.procs, p)
	}

	return s, nil
}
