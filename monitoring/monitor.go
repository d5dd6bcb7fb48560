// Package monitoring serves the state of a running router over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
	"github.com/sugawarayuuta/sonnet"
	"github.com/syifan/goseth"

	"github.com/sarchlab/bqs/bindrelation"
	"github.com/sarchlab/bqs/entity"
	"github.com/sarchlab/bqs/monitoring/web"
	"github.com/sarchlab/bqs/scheduler"
)

const maxProfileDuration = 30 * time.Second

// Monitor turns a router instance into a server that reports its relations
// and statistics.
type Monitor struct {
	sched      *scheduler.Scheduler
	portNumber int
	log        zerolog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewMonitor creates a new Monitor of the given scheduler.
func NewMonitor(s *scheduler.Scheduler) *Monitor {
	return &Monitor{
		sched: s,
		log:   zerolog.Nop(),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// replaced by a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.log.Warn().
			Int("port", portNumber).
			Msg("port not allowed for the monitor, using a random port")

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(log zerolog.Logger) *Monitor {
	m.log = log
	return m
}

// Router returns the routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/instance", m.instance).Methods(http.MethodGet)
	r.HandleFunc("/api/relations", m.listRelations).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.listStats).Methods(http.MethodGet)
	r.HandleFunc("/api/groups", m.listGroups).Methods(http.MethodGet)
	r.HandleFunc("/api/group/{id:[0-9]+}", m.groupDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.HandleFunc("/metrics", m.metrics).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts serving in the background and returns the address of
// the monitor.
func (m *Monitor) StartServer() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return "", errors.New("monitor is already serving")
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitor: %w", err)
	}

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	m.log.Info().Str("url", url).Msg("monitoring router")

	srv := m.server

	go func() {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("monitor stopped")
		}
	}()

	return url, nil
}

// Shutdown stops the server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		m.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		m.log.Debug().Err(err).Msg("response not written")
	}
}

type errorRsp struct {
	Error string `json:"error"`
}

func (m *Monitor) writeError(w http.ResponseWriter, code int, err error) {
	data, _ := sonnet.Marshal(errorRsp{Error: err.Error()})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if _, err := w.Write(data); err != nil {
		m.log.Debug().Err(err).Msg("response not written")
	}
}

type instanceRsp struct {
	ID         string `json:"id"`
	Running    bool   `json:"running"`
	Partitions int    `json:"partitions"`
	Clock      uint64 `json:"clock"`
}

func (m *Monitor) instance(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, instanceRsp{
		ID:         m.sched.ID().String(),
		Running:    m.sched.Running(),
		Partitions: m.sched.Relation().Partitions(),
		Clock:      m.sched.Clock().Now(),
	})
}

type pairRsp struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

type relationsRsp struct {
	Partition int       `json:"partition"`
	Relations []pairRsp `json:"relations"`
	Abnormal  []pairRsp `json:"abnormal"`
	Order     []string  `json:"order"`
	Loop      bool      `json:"loop"`
}

func toPairRsp(pairs []bindrelation.Pair) []pairRsp {
	out := make([]pairRsp, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, pairRsp{Src: p.Src.String(), Dst: p.Dst.String()})
	}

	return out
}

func keyNames(keys []entity.Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}

	return out
}

// partitions returns the partitions a request asks for. The partition query
// parameter selects one.
func (m *Monitor) partitions(r *http.Request) ([]int, error) {
	n := m.sched.Relation().Partitions()

	param := r.URL.Query().Get("partition")
	if param == "" {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}

		return out, nil
	}

	i, err := strconv.Atoi(param)
	if err != nil || i < 0 || i >= n {
		return nil, fmt.Errorf("invalid partition %q", param)
	}

	return []int{i}, nil
}

func (m *Monitor) listRelations(w http.ResponseWriter, r *http.Request) {
	parts, err := m.partitions(r)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	rel := m.sched.Relation()
	out := make([]relationsRsp, 0, len(parts))

	for _, i := range parts {
		out = append(out, relationsRsp{
			Partition: i,
			Relations: toPairRsp(rel.Relations(i)),
			Abnormal:  toPairRsp(rel.AbnormalRelations(i)),
			Order:     keyNames(rel.Order(i)),
			Loop:      rel.LoopFlag(i),
		})
	}

	m.writeJSON(w, out)
}

type statsRsp struct {
	Partition           int    `json:"partition"`
	Steps               uint64 `json:"steps"`
	BindCount           int    `json:"bind_count"`
	AbnormalBindCount   int    `json:"abnormal_bind_count"`
	SubscribeCount      int    `json:"subscribe_count"`
	Delivered           uint64 `json:"delivered"`
	Faults              uint64 `json:"faults"`
	Blocked             uint64 `json:"blocked"`
	UnsubscribeFailures uint64 `json:"unsubscribe_failures"`
	Sends               uint64 `json:"sends"`
	Recvs               uint64 `json:"recvs"`
	Rejected            uint64 `json:"rejected"`
	FabricFailures      uint64 `json:"fabric_failures"`
	EntityFull          bool   `json:"entity_full"`
}

func (m *Monitor) partitionStats(i int) statsRsp {
	rel := m.sched.Relation()
	rs := rel.Stats(i)

	st := statsRsp{
		Partition:           i,
		Steps:               m.sched.Steps(i),
		BindCount:           rs.BindCount,
		AbnormalBindCount:   rs.AbnormalBindCount,
		SubscribeCount:      rs.SubscribeCount,
		Delivered:           rs.Delivered,
		Faults:              rs.Faults,
		Blocked:             rs.Blocked,
		UnsubscribeFailures: rs.UnsubscribeFailures,
	}

	if p := m.sched.Hccl(i); p != nil {
		hs := p.Stats()
		st.Sends = hs.Sends
		st.Recvs = hs.Recvs
		st.Rejected = hs.Rejected
		st.FabricFailures = hs.Failures
	}

	if mgr := rel.Manager(i); mgr != nil {
		st.EntityFull = mgr.EntityFull()
	}

	return st
}

func (m *Monitor) listStats(w http.ResponseWriter, r *http.Request) {
	parts, err := m.partitions(r)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	out := make([]statsRsp, 0, len(parts))
	for _, i := range parts {
		out = append(out, m.partitionStats(i))
	}

	m.writeJSON(w, out)
}

type groupRsp struct {
	ID         uint32   `json:"id"`
	RoundRobin bool     `json:"round_robin"`
	Members    []string `json:"members"`
	Partition  int      `json:"partition"`
}

func (m *Monitor) listGroups(w http.ResponseWriter, _ *http.Request) {
	groups := m.sched.Relation().Groups()
	out := make([]groupRsp, 0, len(groups))

	for _, g := range groups {
		members := make([]string, 0, len(g.Members))
		for i := range g.Members {
			members = append(members, g.Members[i].String())
		}

		out = append(out, groupRsp{
			ID:         g.Info.ID,
			RoundRobin: g.Info.GroupPolicy == entity.PolicyRoundRobin,
			Members:    members,
			Partition:  g.ResIndex,
		})
	}

	m.writeJSON(w, out)
}

func (m *Monitor) groupDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	g, found := m.sched.Relation().Group(uint32(id))
	if !found {
		m.writeError(w, http.StatusNotFound,
			fmt.Errorf("group %d not found", id))
		return
	}

	buf := bytes.NewBuffer(nil)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&g)
	serializer.SetMaxDepth(3)

	if err := serializer.Serialize(buf); err != nil {
		m.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(buf.Bytes()); err != nil {
		m.log.Debug().Err(err).Msg("response not written")
	}
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.writeError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.writeError(w, http.StatusInternalServerError, err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		m.writeError(w, http.StatusInternalServerError, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

// collectProfile samples the CPU for the duration given by the seconds query
// parameter, one second by default.
func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second

	if s := r.URL.Query().Get("seconds"); s != "" {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil || secs <= 0 {
			m.writeError(w, http.StatusBadRequest,
				fmt.Errorf("invalid duration %q", s))
			return
		}

		duration = min(time.Duration(secs*float64(time.Second)),
			maxProfileDuration)
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.writeError(w, http.StatusConflict, err)
		return
	}

	select {
	case <-time.After(duration):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.writeError(w, http.StatusInternalServerError, err)
		return
	}

	m.writeJSON(w, prof)
}
