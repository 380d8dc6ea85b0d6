// Package scenario loads YAML scenario files and assembles them into a
// runnable Simulation.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
	"github.com/signalsfoundry/dtn-simulator/report"
	"github.com/signalsfoundry/dtn-simulator/routing"
)

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is the parsed form of a scenario file.
type Scenario struct {
	Name string `yaml:"name"`

	Run          RunConfig           `yaml:"run"`
	Router       RouterConfig        `yaml:"router"`
	Energy       *EnergyConfig       `yaml:"energy,omitempty"`
	Policy       routing.Config      `yaml:"policy"`
	NeighborList *NeighborListConfig `yaml:"neighbor_list,omitempty"`

	Hosts    []HostGroup     `yaml:"hosts"`
	Contacts []ContactConfig `yaml:"contacts,omitempty"`
	Traffic  []TrafficConfig `yaml:"traffic,omitempty"`
	Messages []MessageConfig `yaml:"messages,omitempty"`
}

// RunConfig holds the run-wide settings. Times are in seconds.
type RunConfig struct {
	Duration float64 `yaml:"duration"`
	Tick     float64 `yaml:"tick"`
	// Seed selects the run's random streams; equal seeds replay equal runs.
	Seed   string  `yaml:"seed"`
	Warmup float64 `yaml:"warmup"`
	// SampleInterval spaces the delivery timeline; 0 disables it.
	SampleInterval float64 `yaml:"sample_interval"`
	// AsyncReports moves report bookkeeping off the tick loop.
	AsyncReports bool `yaml:"async_reports"`
	// RealTime paces ticks against the wall clock at this speed-up;
	// 0 runs as fast as possible.
	RealTime float64 `yaml:"real_time"`
}

// RouterConfig is shared by every host's router.
type RouterConfig struct {
	BufferSize       int     `yaml:"buffer_size"`
	DeleteDelivered  bool    `yaml:"delete_delivered"`
	TTLCheckInterval float64 `yaml:"ttl_check_interval"`
	MessageTTL       float64 `yaml:"message_ttl"`
	// QueueMode is "fifo" or "random".
	QueueMode string `yaml:"queue_mode"`
	// Sink is "destination", or a role name whose hosts accept every
	// request.
	Sink string `yaml:"sink"`
	// Speed is the transfer rate for hosts that set none.
	Speed float64 `yaml:"speed"`
}

// EnergyConfig enables energy accounting on survivor hosts.
type EnergyConfig struct {
	Initial      []float64 `yaml:"initial"`
	ScanCost     float64   `yaml:"scan_cost"`
	ScanInterval float64   `yaml:"scan_interval"`
	TransmitRate float64   `yaml:"transmit_rate"`
	Warmup       float64   `yaml:"warmup"`

	Failures []Failure `yaml:"failures,omitempty"`
}

// Failure drains a host's energy at a fixed time.
type Failure struct {
	Host string  `yaml:"host"`
	At   float64 `yaml:"at"`
}

// NeighborListConfig points at an allow-list file.
type NeighborListConfig struct {
	Path             string  `yaml:"path"`
	Optional         bool    `yaml:"optional"`
	SamplingInterval float64 `yaml:"sampling_interval"`
}

// HostGroup describes Count hosts sharing a role and radio. Hosts are
// addressed in file order and named Prefix plus address.
type HostGroup struct {
	Prefix string     `yaml:"prefix"`
	Count  int        `yaml:"count"`
	Role   model.Role `yaml:"role"`
	Range  float64    `yaml:"range"`
	Speed  float64    `yaml:"speed"`

	// Position places the first host; later hosts are offset by Spacing.
	Position []float64 `yaml:"position,omitempty"`
	Spacing  []float64 `yaml:"spacing,omitempty"`
	// Waypoints moves every host of the group along the same path.
	Waypoints []WaypointConfig `yaml:"waypoints,omitempty"`
}

// WaypointConfig is a position reached at time T.
type WaypointConfig struct {
	T float64 `yaml:"t"`
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ContactConfig is a contact plan window between two named hosts.
type ContactConfig struct {
	A     string  `yaml:"a"`
	B     string  `yaml:"b"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// TrafficConfig describes a periodic message generator. Ranges accept
// one value or a [min, max] pair; host ranges are half-open address
// ranges and an empty To addresses AnyDestination.
type TrafficConfig struct {
	Prefix       string    `yaml:"prefix"`
	Interval     []float64 `yaml:"interval"`
	Size         []int     `yaml:"size"`
	From         []int     `yaml:"from"`
	To           []int     `yaml:"to,omitempty"`
	TTL          float64   `yaml:"ttl"`
	ResponseSize int       `yaml:"response_size"`
	Start        float64   `yaml:"start"`
	End          float64   `yaml:"end"`
}

// MessageConfig is a one-shot message between named hosts.
type MessageConfig struct {
	At           float64 `yaml:"at"`
	ID           string  `yaml:"id"`
	From         string  `yaml:"from"`
	To           string  `yaml:"to"`
	Size         int     `yaml:"size"`
	TTL          float64 `yaml:"ttl"`
	ResponseSize int     `yaml:"response_size"`
}

// Default returns a scenario with every setting at its stock value and
// no hosts.
func Default() *Scenario {
	return &Scenario{
		Name: "default",
		Run: RunConfig{
			Tick:           1,
			Seed:           "dtnsim",
			SampleInterval: report.DefaultSampleInterval,
		},
		Router: RouterConfig{
			BufferSize:       5_000_000,
			TTLCheckInterval: core.DefaultTTLCheckInterval,
			QueueMode:        "fifo",
			Sink:             "destination",
		},
		Policy: routing.DefaultConfig(),
	}
}

// Load reads and validates the scenario at path. A leading ~ is expanded.
func Load(path string) (*Scenario, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("Load %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scenario over the defaults and validates it. Unknown
// keys are rejected.
func Parse(r io.Reader) (*Scenario, error) {
	s := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scenario) normalize() {
	for i := range s.Hosts {
		if s.Hosts[i].Count == 0 {
			s.Hosts[i].Count = 1
		}
	}
	if s.Run.Seed == "" {
		s.Run.Seed = s.Name
	}
}

// HostNames returns the names of every host in address order.
func (s *Scenario) HostNames() []string {
	var names []string
	for _, g := range s.Hosts {
		for i := 0; i < g.Count; i++ {
			names = append(names, fmt.Sprintf("%s%d", g.Prefix, len(names)))
		}
	}
	return names
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
}

// Validate checks every section and the cross references between them.
func (s *Scenario) Validate() error {
	if s.Run.Duration <= 0 {
		return invalid("run.duration must be positive, got %v", s.Run.Duration)
	}
	if s.Run.Tick <= 0 {
		return invalid("run.tick must be positive, got %v", s.Run.Tick)
	}
	if s.Run.RealTime < 0 {
		return invalid("run.real_time must not be negative, got %v", s.Run.RealTime)
	}
	if s.Router.BufferSize <= 0 {
		return invalid("router.buffer_size must be positive, got %d", s.Router.BufferSize)
	}
	if _, err := parseQueueMode(s.Router.QueueMode); err != nil {
		return invalid("router.queue_mode: %v", err)
	}
	if _, err := parseSink(s.Router.Sink); err != nil {
		return invalid("router.sink: %v", err)
	}
	if err := s.Policy.Validate(); err != nil {
		return fmt.Errorf("%w: policy: %w", ErrInvalidScenario, err)
	}
	if s.NeighborList != nil && s.NeighborList.Path == "" {
		return invalid("neighbor_list.path is empty")
	}

	if len(s.Hosts) == 0 {
		return invalid("no hosts")
	}
	for i, g := range s.Hosts {
		if err := g.validate(); err != nil {
			return invalid("hosts[%d]: %v", i, err)
		}
	}
	names := s.HostNames()
	index := make(map[string]int, len(names))
	for addr, n := range names {
		if _, dup := index[n]; dup {
			return invalid("duplicate host name %q", n)
		}
		index[n] = addr
	}
	known := func(name string) bool {
		_, ok := index[name]
		return ok
	}

	if s.Energy != nil {
		if err := s.energyConfig().Validate(); err != nil {
			return fmt.Errorf("%w: energy: %w", ErrInvalidScenario, err)
		}
		for _, f := range s.Energy.Failures {
			if !known(f.Host) {
				return invalid("energy.failures: unknown host %q", f.Host)
			}
		}
	}
	for i, c := range s.Contacts {
		switch {
		case !known(c.A) || !known(c.B):
			return invalid("contacts[%d]: unknown host in %q-%q", i, c.A, c.B)
		case c.A == c.B:
			return invalid("contacts[%d]: host %q contacts itself", i, c.A)
		case c.End <= c.Start:
			return invalid("contacts[%d]: end %v not after start %v", i, c.End, c.Start)
		}
	}
	for i, t := range s.Traffic {
		cfg, err := t.generatorConfig()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			return invalid("traffic[%d]: %v", i, err)
		}
		if cfg.From[0] < 0 || cfg.From[1] > len(names) || cfg.To[1] > len(names) {
			return invalid("traffic[%d]: host range outside 0..%d", i, len(names))
		}
	}
	seen := make(map[string]struct{}, len(s.Messages))
	for i, m := range s.Messages {
		switch {
		case m.ID == "":
			return invalid("messages[%d]: empty id", i)
		case !known(m.From) || !known(m.To):
			return invalid("messages[%d]: unknown host in %q->%q", i, m.From, m.To)
		case m.From == m.To:
			return invalid("messages[%d]: %q sends to itself", i, m.From)
		case m.Size <= 0:
			return invalid("messages[%d]: size must be positive", i)
		}
		if _, dup := seen[m.ID]; dup {
			return invalid("messages[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

func (g HostGroup) validate() error {
	switch {
	case g.Count < 0:
		return fmt.Errorf("negative count %d", g.Count)
	case g.Range <= 0:
		return fmt.Errorf("range must be positive, got %v", g.Range)
	case g.Speed < 0:
		return fmt.Errorf("negative speed %v", g.Speed)
	case len(g.Position) != 0 && len(g.Position) != 2:
		return fmt.Errorf("position needs 2 coordinates, got %d", len(g.Position))
	case len(g.Spacing) != 0 && len(g.Spacing) != 2:
		return fmt.Errorf("spacing needs 2 coordinates, got %d", len(g.Spacing))
	case len(g.Position) != 0 && len(g.Waypoints) != 0:
		return fmt.Errorf("position and waypoints are exclusive")
	}
	return nil
}

func (s *Scenario) energyConfig() core.EnergyConfig {
	return core.EnergyConfig{
		Initial:      s.Energy.Initial,
		ScanCost:     s.Energy.ScanCost,
		ScanInterval: s.Energy.ScanInterval,
		TransmitRate: s.Energy.TransmitRate,
		Warmup:       s.Energy.Warmup,
	}
}

func (t TrafficConfig) generatorConfig() (core.GeneratorConfig, error) {
	cfg := core.GeneratorConfig{
		Prefix:       t.Prefix,
		TTL:          t.TTL,
		ResponseSize: t.ResponseSize,
		Start:        t.Start,
		End:          t.End,
	}
	var err error
	if cfg.Interval, err = pair("interval", t.Interval); err != nil {
		return cfg, err
	}
	if cfg.Size, err = pair("size", t.Size); err != nil {
		return cfg, err
	}
	if cfg.From, err = pair("from", t.From); err != nil {
		return cfg, err
	}
	if len(t.To) > 0 {
		if cfg.To, err = pair("to", t.To); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func pair[T int | float64](name string, vs []T) ([2]T, error) {
	switch len(vs) {
	case 1:
		return [2]T{vs[0], vs[0]}, nil
	case 2:
		return [2]T{vs[0], vs[1]}, nil
	}
	return [2]T{}, fmt.Errorf("%s needs 1 or 2 values, got %d", name, len(vs))
}

func parseQueueMode(s string) (core.QueueMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return core.QueueFIFO, nil
	case "random":
		return core.QueueRandom, nil
	}
	return 0, fmt.Errorf("unknown queue mode %q", s)
}

func parseSink(s string) (core.SinkFunc, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" || v == "destination" {
		return core.DestinationSink, nil
	}
	role, err := model.ParseRole(v)
	if err != nil {
		return nil, err
	}
	return core.RoleSink(role), nil
}
