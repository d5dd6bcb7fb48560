package datarecording

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/hooking"
)

// RelationTable is the table relation events are written to.
const RelationTable = "relation_event"

// RelationEvent is one row of the relation_event table.
type RelationEvent struct {
	ID       string
	Time     int64
	ResIndex int
	Event    string
	Src      string
	Dst      string
	Detail   string
}

// RelationRecorder is a hook that records the binds, unbinds, quarantines and
// reorders of a router.
type RelationRecorder struct {
	recorder DataRecorder
	now      func() time.Time
	log      zerolog.Logger
}

// NewRelationRecorder creates the relation_event table in rec.
func NewRelationRecorder(
	rec DataRecorder,
	log zerolog.Logger,
) (*RelationRecorder, error) {
	if err := rec.CreateTable(RelationTable, RelationEvent{}); err != nil {
		return nil, err
	}

	return &RelationRecorder{
		recorder: rec,
		now:      time.Now,
		log:      log,
	}, nil
}

// Func records the event of a hook invocation.
func (r *RelationRecorder) Func(ctx hooking.HookCtx) {
	evt := RelationEvent{
		ID:       xid.New().String(),
		Time:     r.now().UnixNano(),
		ResIndex: ctx.Partition,
		Event:    ctx.Pos.Name,
	}

	switch item := ctx.Item.(type) {
	case bindrelation.Pair:
		evt.Src = item.Src.String()
		evt.Dst = item.Dst.String()
	case []entity.Key:
		evt.Src = joinKeys(item)
	}

	if ctx.Detail != nil {
		evt.Detail = fmt.Sprint(ctx.Detail)
	}

	if err := r.recorder.InsertData(RelationTable, evt); err != nil {
		r.log.Warn().Err(err).Str("event", evt.Event).Msg("event not recorded")
	}
}

func joinKeys(keys []entity.Key) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}

	return strings.Join(names, ",")
}
