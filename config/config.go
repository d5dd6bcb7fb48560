// Package config loads the settings of a bqs instance. Settings come from
// built-in defaults, then a YAML file, then BQS_* environment variables. A
// .env file, if present, is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix starts the name of every environment variable that overrides a
// setting.
const EnvPrefix = "BQS_"

// Log controls logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Scheduler controls the partition loops.
type Scheduler struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	StatsInterval  time.Duration `yaml:"stats_interval"`
	DispatchBudget int           `yaml:"dispatch_budget"`
	MaxEvents      int           `yaml:"max_events"`
	MaxRequestAge  uint64        `yaml:"max_request_age"`
	Workers        int           `yaml:"workers"`
	HeldDepth      int           `yaml:"held_depth"`
	ChannelDepth   uint32        `yaml:"channel_depth"`
}

// NUMA controls partitioned routing. Devices maps a device id to the
// partition that serves it.
type NUMA struct {
	Enabled    bool           `yaml:"enabled"`
	Partitions int            `yaml:"partitions"`
	Devices    map[uint32]int `yaml:"devices"`
}

// Monitor controls the HTTP monitor. A port of 0 picks a free port.
type Monitor struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Recording controls the relation event recorder.
type Recording struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Queue declares a hardware queue to create at startup.
type Queue struct {
	Device      uint32 `yaml:"device"`
	ID          uint32 `yaml:"id"`
	Depth       int    `yaml:"depth"`
	Client      bool   `yaml:"client"`
	SchedCfgKey uint32 `yaml:"sched_cfg_key"`
}

// QueueRef names a queue declared in Topology.Queues.
type QueueRef struct {
	Device uint32 `yaml:"device"`
	ID     uint32 `yaml:"id"`
}

// Endpoint names one side of a binding. Either Group or Queue is set.
type Endpoint struct {
	Group *uint32   `yaml:"group,omitempty"`
	Queue *QueueRef `yaml:"queue,omitempty"`
}

// Group declares a group of queues.
type Group struct {
	ID         uint32     `yaml:"id"`
	RoundRobin bool       `yaml:"round_robin"`
	Members    []Endpoint `yaml:"members"`
}

// Binding declares a relation.
type Binding struct {
	Src Endpoint `yaml:"src"`
	Dst Endpoint `yaml:"dst"`
}

// Topology is built when the instance starts.
type Topology struct {
	Queues   []Queue   `yaml:"queues"`
	Groups   []Group   `yaml:"groups"`
	Bindings []Binding `yaml:"bindings"`
}

// Config is the whole configuration.
type Config struct {
	Log       Log       `yaml:"log"`
	Scheduler Scheduler `yaml:"scheduler"`
	NUMA      NUMA      `yaml:"numa"`
	Monitor   Monitor   `yaml:"monitor"`
	Recording Recording `yaml:"recording"`
	Topology  Topology  `yaml:"topology"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "console"},
		Scheduler: Scheduler{
			TickInterval:   time.Millisecond,
			StatsInterval:  10 * time.Second,
			DispatchBudget: 64,
			MaxEvents:      256,
			MaxRequestAge:  1 << 20,
			Workers:        4,
			HeldDepth:      64,
			ChannelDepth:   128,
		},
		NUMA:      NUMA{Partitions: 1},
		Monitor:   Monitor{Port: 0},
		Recording: Recording{Path: "bqs_relations"},
	}
}

// Load reads the configuration. An empty path skips the file. The
// environment files are loaded before the BQS_* variables are applied; a
// missing environment file is not an error.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if err := loadEnvFiles(envFiles); err != nil {
		return cfg, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}

		return fmt.Errorf("load %s: %w", f, err)
	}

	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides settings from the environment.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, found := lookup(EnvPrefix + name); found {
			*dst = v
		}
	}

	integer := func(name string, dst *int) {
		v, found := lookup(EnvPrefix + name)
		if !found {
			return
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}

		*dst = n
	}

	boolean := func(name string, dst *bool) {
		v, found := lookup(EnvPrefix + name)
		if !found {
			return
		}

		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}

		*dst = b
	}

	duration := func(name string, dst *time.Duration) {
		v, found := lookup(EnvPrefix + name)
		if !found {
			return
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}

		*dst = d
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	duration("TICK_INTERVAL", &c.Scheduler.TickInterval)
	duration("STATS_INTERVAL", &c.Scheduler.StatsInterval)
	integer("DISPATCH_BUDGET", &c.Scheduler.DispatchBudget)
	integer("WORKERS", &c.Scheduler.Workers)
	boolean("NUMA_ENABLED", &c.NUMA.Enabled)
	integer("NUMA_PARTITIONS", &c.NUMA.Partitions)
	boolean("MONITOR_ENABLED", &c.Monitor.Enabled)
	integer("MONITOR_PORT", &c.Monitor.Port)
	boolean("RECORDING_ENABLED", &c.Recording.Enabled)
	str("RECORDING_PATH", &c.Recording.Path)

	return errors.Join(errs...)
}

var (
	logLevels  = []string{"trace", "debug", "info", "warn", "error", "disabled"}
	logFormats = []string{"console", "json"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}

	return false
}

// Validate checks that the settings can be used together.
func (c *Config) Validate() error {
	var errs []error

	if !oneOf(c.Log.Level, logLevels) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of %v",
			c.Log.Level, logLevels))
	}

	if !oneOf(c.Log.Format, logFormats) {
		errs = append(errs, fmt.Errorf("log.format %q is not one of %v",
			c.Log.Format, logFormats))
	}

	s := c.Scheduler
	if s.TickInterval <= 0 {
		errs = append(errs, errors.New("scheduler.tick_interval must be positive"))
	}

	if s.DispatchBudget <= 0 {
		errs = append(errs, errors.New("scheduler.dispatch_budget must be positive"))
	}

	if s.Workers <= 0 {
		errs = append(errs, errors.New("scheduler.workers must be positive"))
	}

	if s.ChannelDepth != 0 && s.ChannelDepth < 2 {
		errs = append(errs, errors.New("scheduler.channel_depth must be at least 2"))
	}

	errs = append(errs, c.validateNUMA()...)

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		errs = append(errs, fmt.Errorf("monitor.port %d is out of range",
			c.Monitor.Port))
	}

	if c.Recording.Enabled && c.Recording.Path == "" {
		errs = append(errs, errors.New("recording.path is required"))
	}

	errs = append(errs, c.Topology.validate()...)

	return errors.Join(errs...)
}

func (c *Config) validateNUMA() []error {
	if !c.NUMA.Enabled {
		return nil
	}

	var errs []error

	if c.NUMA.Partitions < 1 {
		errs = append(errs, errors.New("numa.partitions must be at least 1"))
	}

	for dev, part := range c.NUMA.Devices {
		if part < 0 || part >= c.NUMA.Partitions {
			errs = append(errs, fmt.Errorf(
				"numa.devices: device %d mapped to missing partition %d",
				dev, part))
		}
	}

	return errs
}

// PartitionCount returns the number of partitions to run.
func (c *Config) PartitionCount() int {
	if !c.NUMA.Enabled || c.NUMA.Partitions < 1 {
		return 1
	}

	return c.NUMA.Partitions
}

func (e *Endpoint) validate(where string) error {
	switch {
	case e.Group != nil && e.Queue != nil:
		return fmt.Errorf("%s: set either group or queue", where)
	case e.Group == nil && e.Queue == nil:
		return fmt.Errorf("%s: set group or queue", where)
	}

	return nil
}

func (t *Topology) validate() []error {
	var errs []error

	for i, q := range t.Queues {
		if q.Depth <= 0 {
			errs = append(errs, fmt.Errorf("topology.queues[%d]: depth must be positive", i))
		}
	}

	for i, g := range t.Groups {
		if len(g.Members) == 0 {
			errs = append(errs, fmt.Errorf("topology.groups[%d]: no member", i))
		}

		for j := range g.Members {
			m := &g.Members[j]
			if m.Queue == nil {
				errs = append(errs, fmt.Errorf(
					"topology.groups[%d].members[%d]: members must be queues", i, j))
			}
		}
	}

	for i := range t.Bindings {
		b := &t.Bindings[i]

		if err := b.Src.validate(fmt.Sprintf("topology.bindings[%d].src", i)); err != nil {
			errs = append(errs, err)
		}

		if err := b.Dst.validate(fmt.Sprintf("topology.bindings[%d].dst", i)); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}
