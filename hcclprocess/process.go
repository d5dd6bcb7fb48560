// Package hcclprocess drives the remote fabric. It posts receives for
// arriving messages, collects the completions of sends and receives, and
// resends data once a congested peer has room again.
package hcclprocess

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/driver"
	"github.com/sarchlab/bqs/endpoint"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/entitymanager"
)

// EventKind is a kind of fabric work.
type EventKind uint8

// Fabric work kinds.
const (
	EventRecvRequest EventKind = iota
	EventSendCompletion
	EventRecvCompletion
	EventCongestionRelief
	numEventKinds
)

func (k EventKind) String() string {
	switch k {
	case EventRecvRequest:
		return "recv-request"
	case EventSendCompletion:
		return "send-completion"
	case EventRecvCompletion:
		return "recv-completion"
	case EventCongestionRelief:
		return "congestion-relief"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// ErrRequestExpired is the completion error of a request whose start tick
// is too old or lies in the future.
var ErrRequestExpired = errors.New("fabric request expired")

// Stats counts the fabric work done.
type Stats struct {
	Sends    uint64
	Recvs    uint64
	Rejected uint64
	Failures uint64
}

// Process handles the fabric work of one partition. Each kind of work runs
// at most once at a time; a Handle call that finds its kind running returns
// at once.
type Process struct {
	relation *bindrelation.Relation
	resIndex int
	clock    func() uint64
	maxAge   uint64
	log      zerolog.Logger

	running [numEventKinds]atomic.Bool

	sends    atomic.Uint64
	recvs    atomic.Uint64
	rejected atomic.Uint64
	failures atomic.Uint64
}

// Stats returns the counters of the process.
func (p *Process) Stats() Stats {
	return Stats{
		Sends:    p.sends.Load(),
		Recvs:    p.recvs.Load(),
		Rejected: p.rejected.Load(),
		Failures: p.failures.Load(),
	}
}

// Handle does the work of one kind. It reports false if the same kind is
// being handled by another goroutine.
func (p *Process) Handle(ctx context.Context, kind EventKind) (bool, error) {
	if kind >= numEventKinds {
		return false, fmt.Errorf("unknown fabric event %s", kind)
	}

	if !p.running[kind].CompareAndSwap(false, true) {
		return false, nil
	}
	defer p.running[kind].Store(false)

	var err error

	switch kind {
	case EventRecvRequest:
		err = p.postRecvs(ctx)
	case EventSendCompletion:
		err = p.testSome(entity.DirDst)
	case EventRecvCompletion:
		err = p.testSome(entity.DirSrc)
	case EventCongestionRelief:
		err = p.relieve(ctx)
	}

	if err != nil {
		p.log.Warn().Err(err).Stringer("event", kind).Msg("fabric work failed")
	}

	return true, err
}

// ProcessAll handles every kind of work once.
func (p *Process) ProcessAll(ctx context.Context) error {
	var errs []error

	for k := EventKind(0); k < numEventKinds; k++ {
		if _, err := p.Handle(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *Process) postRecvs(ctx context.Context) error {
	return p.relation.WithPartition(p.resIndex,
		func(mgr *entitymanager.Manager) error {
			return mgr.ProbeSrcCommChannel(func(e *endpoint.ChannelEntity) error {
				for {
					posted, err := e.PostRecv(ctx)
					if err != nil {
						p.fail(e.Key(), entity.DirSrc)
						return err
					}

					if !posted {
						return nil
					}
				}
			})
		})
}

func (p *Process) now() uint64 {
	if p.clock == nil {
		return 0
	}

	return p.clock()
}

// expired tells if a request started too long ago or in the future.
func (p *Process) expired(start, now uint64) bool {
	if start > now {
		return true
	}

	return p.maxAge > 0 && now-start > p.maxAge
}

func (p *Process) testSome(dir entity.Direction) error {
	return p.relation.WithPartition(p.resIndex,
		func(mgr *entitymanager.Manager) error {
			return mgr.TestSomeCommChannels(dir,
				func(reqs []endpoint.PendingRequest) error {
					return p.complete(mgr.Fabric(), dir, reqs)
				})
		})
}

func (p *Process) complete(
	fabric driver.Fabric,
	dir entity.Direction,
	reqs []endpoint.PendingRequest,
) error {
	now := p.now()
	owners := make(map[driver.Request]*endpoint.ChannelEntity, len(reqs))
	ids := make([]driver.Request, 0, len(reqs))

	var errs []error

	for _, r := range reqs {
		if p.expired(r.StartTick, now) {
			if err := fabric.Cancel(r.Req); err != nil {
				p.log.Warn().Err(err).
					Uint64("request", uint64(r.Req)).
					Msg("cannot cancel expired fabric request")
			} else {
				p.reject(r, dir, now, &errs)
				continue
			}
		}

		owners[r.Req] = r.Owner
		ids = append(ids, r.Req)
	}

	if len(ids) == 0 {
		return errors.Join(errs...)
	}

	done, err := fabric.TestSome(ids)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}

	for _, c := range done {
		owner, found := owners[c.Request]
		if !found {
			continue
		}

		if err := owner.OnComplete(c.Request, c.Err); err != nil {
			p.fail(owner.Key(), dir)
			errs = append(errs, err)

			continue
		}

		if dir == entity.DirDst {
			p.sends.Add(1)
		} else {
			p.recvs.Add(1)
		}
	}

	return errors.Join(errs...)
}

// reject completes a cancelled request with ErrRequestExpired. Its buffer is
// released and its owner reported abnormal.
func (p *Process) reject(
	r endpoint.PendingRequest,
	dir entity.Direction,
	now uint64,
	errs *[]error,
) {
	p.rejected.Add(1)
	p.log.Error().
		Uint64("request", uint64(r.Req)).
		Uint64("start", r.StartTick).
		Uint64("now", now).
		Msg("rejecting expired fabric request")

	if err := r.Owner.OnComplete(r.Req, ErrRequestExpired); err != nil {
		p.fail(r.Owner.Key(), dir)
		*errs = append(*errs, err)
	}
}

func (p *Process) relieve(ctx context.Context) error {
	return p.relation.WithPartition(p.resIndex,
		func(mgr *entitymanager.Manager) error {
			var errs []error

			for _, e := range mgr.DstChannels().Entities() {
				if e.Held() == 0 {
					continue
				}

				if _, err := e.Flush(ctx); err != nil {
					p.fail(e.Key(), entity.DirDst)
					errs = append(errs, err)
				}
			}

			return errors.Join(errs...)
		})
}

func (p *Process) fail(key entity.Key, dir entity.Direction) {
	p.failures.Add(1)
	p.relation.ReportAbnormal(key, dir)
}
