package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/commchannel"
	"github.com/sarchlab/bqs/config"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/driver/memdriver"
	"github.com/sarchlab/bqs/endpoint"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/entitymanager"
	"github.com/sarchlab/bqs/scheduler"
	"github.com/sarchlab/bqs/status"
)

// instance is a router over the in-memory driver.
type instance struct {
	drv      *memdriver.Driver
	fabric   *memdriver.Fabric
	pool     *endpoint.WorkerPool
	relation *bindrelation.Relation
	sched    *scheduler.Scheduler
}

func newInstance(
	ctx context.Context,
	cfg config.Config,
	log zerolog.Logger,
) (*instance, error) {
	inst := &instance{
		drv:    memdriver.New(),
		fabric: memdriver.NewFabric(),
		pool:   endpoint.NewWorkerPool(ctx, cfg.Scheduler.Workers),
	}

	clock := &scheduler.Clock{}
	channels := commchannel.NewManager()

	managers := make([]*entitymanager.Manager, 0, cfg.PartitionCount())

	for i := 0; i < cfg.PartitionCount(); i++ {
		mgr, err := entitymanager.MakeBuilder().
			WithPartition(i).
			WithDriver(inst.drv, inst.drv).
			WithFabric(inst.fabric).
			WithWorkerPool(inst.pool).
			WithClock(clock.Now).
			WithHeldDepth(cfg.Scheduler.HeldDepth).
			WithChannelDepth(cfg.Scheduler.ChannelDepth).
			WithChannels(channels).
			WithLogger(log).
			Build()
		if err != nil {
			inst.close()
			return nil, err
		}

		managers = append(managers, mgr)
	}

	var devicePart map[uint32]int
	if cfg.NUMA.Enabled {
		devicePart = cfg.NUMA.Devices
	}

	rel, err := bindrelation.MakeBuilder().
		WithDriver(inst.drv).
		WithManagers(managers...).
		WithDevicePartitions(devicePart).
		WithDispatchBudget(cfg.Scheduler.DispatchBudget).
		WithLogger(log).
		Build()
	if err != nil {
		inst.close()
		return nil, err
	}

	inst.relation = rel

	inst.sched, err = scheduler.MakeBuilder().
		WithRelation(rel).
		WithEventSource(inst.drv).
		WithClock(clock).
		WithInterval(cfg.Scheduler.TickInterval).
		WithStatsInterval(cfg.Scheduler.StatsInterval).
		WithDispatchBudget(cfg.Scheduler.DispatchBudget).
		WithMaxEvents(cfg.Scheduler.MaxEvents).
		WithMaxRequestAge(cfg.Scheduler.MaxRequestAge).
		WithLogger(log).
		Build()
	if err != nil {
		inst.close()
		return nil, err
	}

	return inst, nil
}

func (inst *instance) close() {
	inst.pool.Close()
}

func queueClass(q config.Queue) entity.Class {
	if q.Client {
		return entity.ClassClientQueue
	}

	return entity.ClassDeviceQueue
}

// applyTopology creates the queues and groups of topo and binds its
// bindings.
func (inst *instance) applyTopology(
	ctx context.Context,
	topo config.Topology,
) error {
	queues := make(map[config.QueueRef]entity.Info, len(topo.Queues))

	for _, q := range topo.Queues {
		addr := driver.QueueAddr{DeviceID: q.Device, QueueID: q.ID}
		if err := inst.drv.CreateQueue(addr, q.Depth); err != nil {
			return fmt.Errorf("create queue %d:%d: %w", q.Device, q.ID, err)
		}

		info := entity.Queue(queueClass(q), q.Device, q.ID)
		info.SchedCfgKey = q.SchedCfgKey
		queues[config.QueueRef{Device: q.Device, ID: q.ID}] = info
	}

	groups := make(map[uint32]entity.Info, len(topo.Groups))

	for _, g := range topo.Groups {
		members := make([]entity.Info, 0, len(g.Members))

		for _, m := range g.Members {
			if m.Queue == nil {
				return fmt.Errorf("group %d: members must be queues", g.ID)
			}

			info, found := queues[*m.Queue]
			if !found {
				return fmt.Errorf("group %d: queue %d:%d is not declared",
					g.ID, m.Queue.Device, m.Queue.ID)
			}

			members = append(members, info)
		}

		policy := entity.PolicyBroadcast
		if g.RoundRobin {
			policy = entity.PolicyRoundRobin
		}

		info, err := inst.relation.CreateGroupWithID(g.ID, policy, members)
		if err != nil {
			return fmt.Errorf("group %d: %w", g.ID, err)
		}

		groups[g.ID] = info
	}

	resolve := func(e config.Endpoint) (entity.Info, error) {
		if e.Queue == nil && e.Group == nil {
			return entity.Info{}, errors.New("endpoint names nothing")
		}

		if e.Group != nil {
			info, found := groups[*e.Group]
			if !found {
				return info, fmt.Errorf("group %d is not declared", *e.Group)
			}

			return info, nil
		}

		info, found := queues[*e.Queue]
		if !found {
			return info, fmt.Errorf("queue %d:%d is not declared",
				e.Queue.Device, e.Queue.ID)
		}

		return info, nil
	}

	for i, b := range topo.Bindings {
		src, err := resolve(b.Src)
		if err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}

		dst, err := resolve(b.Dst)
		if err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}

		if err := inst.bind(ctx, src, dst); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
	}

	return nil
}

// bind submits the relation to each partition until one accepts it.
func (inst *instance) bind(ctx context.Context, src, dst entity.Info) error {
	var err error

	for i := 0; i < inst.relation.Partitions(); i++ {
		err = inst.relation.Bind(ctx, src, dst, i)
		if !errors.Is(err, status.ErrRetry) {
			return err
		}
	}

	return err
}
