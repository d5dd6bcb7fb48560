// Package scheduler runs the router. It owns one loop per partition that
// takes in hardware events, drives the fabric, handles faults and moves data.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/hcclprocess"
	"github.com/sarchlab/bqs/status"
)

// Clock counts scheduler ticks. Entity managers and fabric processes use it
// to date their requests.
type Clock struct {
	ticks atomic.Uint64
}

// Now returns the current tick.
func (c *Clock) Now() uint64 {
	return c.ticks.Load()
}

func (c *Clock) advance() uint64 {
	return c.ticks.Add(1)
}

// StepStats tells what one step of a partition did.
type StepStats struct {
	Events      int
	Quarantined int
	Held        int
	bindrelation.DispatchStats
}

// MadeProgress tells if the step moved or accepted anything.
func (s StepStats) MadeProgress() bool {
	return s.Events > 0 || s.Quarantined > 0 || s.Delivered > 0
}

// Scheduler is the context object of a router instance.
type Scheduler struct {
	id       uuid.UUID
	relation *bindrelation.Relation
	events   driver.EventSource
	procs    []*hcclprocess.Process
	clock    *Clock

	interval      time.Duration
	statsInterval time.Duration
	budget        int
	maxEvents     int
	log           zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	steps   []atomic.Uint64
	running atomic.Bool
}

// ID returns the instance id.
func (s *Scheduler) ID() uuid.UUID {
	return s.id
}

// Relation returns the router.
func (s *Scheduler) Relation() *bindrelation.Relation {
	return s.relation
}

// Clock returns the tick counter.
func (s *Scheduler) Clock() *Clock {
	return s.clock
}

// Running tells if Run is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Steps returns the number of steps a partition has run.
func (s *Scheduler) Steps(resIndex int) uint64 {
	if resIndex < 0 || resIndex >= len(s.steps) {
		return 0
	}

	return s.steps[resIndex].Load()
}

// Hccl returns the fabric process of a partition.
func (s *Scheduler) Hccl(resIndex int) *hcclprocess.Process {
	if resIndex < 0 || resIndex >= len(s.procs) {
		return nil
	}

	return s.procs[resIndex]
}

// supplyEvents hands pending hardware events to the manager that owns the
// queue.
func (s *Scheduler) supplyEvents() int {
	if s.events == nil {
		return 0
	}

	evts := s.events.PollEvents(s.maxEvents)

	for _, evt := range evts {
		handled := false

		for i := 0; i < s.relation.Partitions() && !handled; i++ {
			handled = s.relation.Manager(i).SupplyEvent(evt)
		}

		if !handled {
			s.log.Debug().
				Stringer("queue", evt.Addr).
				Stringer("event", evt.Kind).
				Msg("event for unbound queue dropped")
		}
	}

	return len(evts)
}

// Step runs one round of work of a partition. While a destination of the
// partition is full, no new events are taken in.
func (s *Scheduler) Step(ctx context.Context, resIndex int) (StepStats, error) {
	var st StepStats

	mgr := s.relation.Manager(resIndex)
	if mgr == nil {
		return st, status.New(status.CodeParamInvalid, "Step",
			"partition %d does not exist", resIndex)
	}

	s.clock.advance()

	if !mgr.EntityFull() {
		st.Events = s.supplyEvents()
	}

	var errs []error

	if err := s.procs[resIndex].ProcessAll(ctx); err != nil {
		errs = append(errs, err)
	}

	st.Quarantined = s.relation.UpdateRelation(ctx)

	if mgr.TakeNotFull() || mgr.EntityFull() {
		held, err := s.relation.FlushBlocked(ctx, resIndex)
		if err != nil {
			errs = append(errs, err)
		}

		st.Held = held
	}

	ds, err := s.relation.Dispatch(ctx, resIndex, s.budget)
	if err != nil {
		errs = append(errs, err)
	}

	st.DispatchStats = ds
	s.steps[resIndex].Add(1)

	return st, errors.Join(errs...)
}

// Run runs every partition loop until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("scheduler is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.running.Store(true)

	defer func() {
		s.running.Store(false)
		cancel()

		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()

		close(done)
	}()

	s.log.Info().
		Int("partitions", s.relation.Partitions()).
		Msg("scheduler started")

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < s.relation.Partitions(); i++ {
		g.Go(func() error {
			return s.loop(gctx, i)
		})
	}

	err := g.Wait()

	s.log.Info().Msg("scheduler stopped")

	return err
}

// Stop ends Run and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, resIndex int) error {
	log := s.log.With().Int("partition", resIndex).Logger()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var statsC <-chan time.Time

	if s.statsInterval > 0 {
		stats := time.NewTicker(s.statsInterval)
		defer stats.Stop()

		statsC = stats.C
	}

	for {
		st, err := s.Step(ctx, resIndex)
		if err != nil {
			log.Warn().Err(err).Msg("step failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-statsC:
			s.logStats(log, resIndex)
		default:
		}

		if st.MadeProgress() {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) logStats(log zerolog.Logger, resIndex int) {
	rs := s.relation.Stats(resIndex)
	hs := s.procs[resIndex].Stats()

	log.Info().
		Int("binds", rs.BindCount).
		Int("abnormal", rs.AbnormalBindCount).
		Int("subscriptions", rs.SubscribeCount).
		Uint64("delivered", rs.Delivered).
		Uint64("faults", rs.Faults).
		Uint64("blocked", rs.Blocked).
		Uint64("sends", hs.Sends).
		Uint64("recvs", hs.Recvs).
		Uint64("rejected", hs.Rejected).
		Uint64("steps", s.Steps(resIndex)).
		Bool("loop", s.relation.LoopFlag(resIndex)).
		Msg("partition stats")
}
