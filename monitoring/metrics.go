package monitoring

import (
	"net/http"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func ptr[T any](v T) *T {
	return &v
}

// metricSet collects metric families in the order they are first seen.
type metricSet struct {
	families []*dto.MetricFamily
	byName   map[string]*dto.MetricFamily
}

func newMetricSet() *metricSet {
	return &metricSet{byName: make(map[string]*dto.MetricFamily)}
}

func (s *metricSet) family(
	name, help string,
	typ dto.MetricType,
) *dto.MetricFamily {
	f, found := s.byName[name]
	if !found {
		f = &dto.MetricFamily{
			Name: ptr(name),
			Help: ptr(help),
			Type: typ.Enum(),
		}
		s.byName[name] = f
		s.families = append(s.families, f)
	}

	return f
}

func partitionLabel(part int) []*dto.LabelPair {
	return []*dto.LabelPair{{
		Name:  ptr("partition"),
		Value: ptr(strconv.Itoa(part)),
	}}
}

func (s *metricSet) counter(name, help string, part int, v uint64) {
	f := s.family(name, help, dto.MetricType_COUNTER)
	f.Metric = append(f.Metric, &dto.Metric{
		Label:   partitionLabel(part),
		Counter: &dto.Counter{Value: ptr(float64(v))},
	})
}

func (s *metricSet) gauge(name, help string, part int, v float64) {
	f := s.family(name, help, dto.MetricType_GAUGE)
	f.Metric = append(f.Metric, &dto.Metric{
		Label: partitionLabel(part),
		Gauge: &dto.Gauge{Value: ptr(v)},
	})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

// gather builds the metric families of every partition.
func (m *Monitor) gather() []*dto.MetricFamily {
	set := newMetricSet()

	for i := 0; i < m.sched.Relation().Partitions(); i++ {
		st := m.partitionStats(i)

		set.gauge("bqs_relations",
			"Live relations.", i, float64(st.BindCount))
		set.gauge("bqs_abnormal_relations",
			"Quarantined relations.", i, float64(st.AbnormalBindCount))
		set.gauge("bqs_subscriptions",
			"Queue event subscriptions.", i, float64(st.SubscribeCount))
		set.gauge("bqs_entity_full",
			"Whether a destination is holding data.", i, boolValue(st.EntityFull))
		set.gauge("bqs_order_loop",
			"Whether the relation graph has a cycle.", i,
			boolValue(m.sched.Relation().LoopFlag(i)))
		set.counter("bqs_scheduler_steps_total",
			"Scheduler steps run.", i, st.Steps)
		set.counter("bqs_delivered_total",
			"Buffers delivered to destinations.", i, st.Delivered)
		set.counter("bqs_faults_total",
			"Endpoint faults seen while moving data.", i, st.Faults)
		set.counter("bqs_blocked_total",
			"Drains stopped by a full destination.", i, st.Blocked)
		set.counter("bqs_unsubscribe_failures_total",
			"Failed queue event unsubscriptions.", i, st.UnsubscribeFailures)
		set.counter("bqs_fabric_sends_total",
			"Completed fabric sends.", i, st.Sends)
		set.counter("bqs_fabric_recvs_total",
			"Completed fabric receives.", i, st.Recvs)
		set.counter("bqs_fabric_rejected_total",
			"Fabric requests dropped for their age.", i, st.Rejected)
		set.counter("bqs_fabric_failures_total",
			"Failed fabric requests.", i, st.FabricFailures)
	}

	return set.families
}

func (m *Monitor) metrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type",
		string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	for _, f := range m.gather() {
		if _, err := expfmt.MetricFamilyToText(w, f); err != nil {
			m.log.Debug().Err(err).Msg("metrics not written")
			return
		}
	}
}
