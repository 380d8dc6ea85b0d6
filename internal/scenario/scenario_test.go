package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/dtn-simulator/internal/observability"
	"github.com/signalsfoundry/dtn-simulator/model"
	"github.com/signalsfoundry/dtn-simulator/report"
	"github.com/signalsfoundry/dtn-simulator/routing"
	"github.com/signalsfoundry/dtn-simulator/timectrl"
)

const pairScenario = `
name: pair
run:
  duration: 10
policy:
  kind: epidemic
hosts:
  - prefix: n
    count: 2
    range: 100
    position: [0, 0]
    spacing: [10, 0]
messages:
  - {at: 0, id: M1, from: n0, to: n1, size: 1000}
`

const relayScenario = `
name: relay
run:
  duration: 20
hosts:
  - prefix: a
    range: 10
    position: [0, 0]
  - prefix: b
    range: 10
    position: [1000, 0]
  - prefix: c
    range: 10
    position: [2000, 0]
contacts:
  - {a: a0, b: b1, start: 0, end: 5}
  - {a: b1, b: c2, start: 5, end: 10}
messages:
  - {at: 0, id: M1, from: a0, to: c2, size: 1000}
`

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return s
}

func TestParseAppliesDefaults(t *testing.T) {
	s := mustParse(t, pairScenario)

	if s.Run.Tick != 1 {
		t.Fatalf("tick = %v, want 1", s.Run.Tick)
	}
	if s.Run.Seed != "dtnsim" {
		t.Fatalf("seed = %q, want dtnsim", s.Run.Seed)
	}
	if s.Router.BufferSize != 5_000_000 {
		t.Fatalf("buffer size = %d", s.Router.BufferSize)
	}
	if s.Policy.Kind != routing.KindEpidemic {
		t.Fatalf("policy = %v, want epidemic", s.Policy.Kind)
	}
	if s.Policy.InitialCopies != 6 {
		t.Fatalf("initial copies = %d, want default 6", s.Policy.InitialCopies)
	}
	if got := s.HostNames(); len(got) != 2 || got[0] != "n0" || got[1] != "n1" {
		t.Fatalf("host names = %v", got)
	}
	if s.Hosts[0].Role != model.RoleSurvivor {
		t.Fatalf("role = %v, want survivor", s.Hosts[0].Role)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("run:\n  duration: 1\n  bogus: 2\n"))
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestParsePolicyAndRoles(t *testing.T) {
	s := mustParse(t, `
run: {duration: 5}
policy:
  kind: spray_and_wait
  initial_copies: 4
  binary_mode: false
router:
  queue_mode: random
  sink: responder
hosts:
  - {prefix: s, count: 3, range: 50}
  - {prefix: r, role: CD, range: 50}
`)
	if s.Policy.Kind != routing.KindSprayAndWait || s.Policy.InitialCopies != 4 || s.Policy.BinaryMode {
		t.Fatalf("policy = %+v", s.Policy)
	}
	if s.Hosts[1].Role != model.RoleResponder {
		t.Fatalf("role = %v, want responder", s.Hosts[1].Role)
	}
	if got := s.HostNames(); got[3] != "r3" {
		t.Fatalf("names = %v", got)
	}
}

func TestValidateFailures(t *testing.T) {
	base := "run: {duration: 10}\nhosts:\n  - {prefix: n, count: 2, range: 10}\n"
	cases := map[string]string{
		"zero duration":   "run: {duration: 0}\nhosts:\n  - {prefix: n, range: 10}\n",
		"negative pace":   "run: {duration: 10, real_time: -1}\nhosts:\n  - {prefix: n, range: 10}\n",
		"no hosts":        "run: {duration: 10}\n",
		"zero range":      "run: {duration: 10}\nhosts:\n  - {prefix: n, range: 0}\n",
		"bad queue":       base + "router: {queue_mode: lifo}\n",
		"bad sink":        base + "router: {sink: nobody}\n",
		"unknown contact": base + "contacts:\n  - {a: n0, b: x9, start: 0, end: 1}\n",
		"empty contact":   base + "contacts:\n  - {a: n0, b: n1, start: 5, end: 5}\n",
		"self message":    base + "messages:\n  - {id: m, from: n0, to: n0, size: 1}\n",
		"dup message":     base + "messages:\n  - {id: m, from: n0, to: n1, size: 1}\n  - {id: m, from: n1, to: n0, size: 1}\n",
		"bad energy":      base + "energy: {initial: [5, 1]}\n",
		"unknown failure": base + "energy:\n  initial: [10]\n  failures:\n    - {host: zz, at: 3}\n",
		"traffic range":   base + "traffic:\n  - {prefix: M, interval: [5], size: [10], from: [0, 5]}\n",
		"traffic pair":    base + "traffic:\n  - {prefix: M, interval: [1, 2, 3], size: [10], from: [0, 2]}\n",
		"duplicate names": "run: {duration: 10}\nhosts:\n  - {prefix: n1, range: 10}\n  - {prefix: n, count: 11, range: 10}\n",
	}
	for name, doc := range cases {
		_, err := Parse(strings.NewReader(doc))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrInvalidScenario) {
			t.Fatalf("%s: error %v does not wrap ErrInvalidScenario", name, err)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pair.yaml")
	if err := os.WriteFile(path, []byte(pairScenario), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.Name != "pair" {
		t.Fatalf("name = %q", s.Name)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestBuildPlacesHosts(t *testing.T) {
	sim, err := Build(mustParse(t, pairScenario))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if sim.Registry.Len() != 2 {
		t.Fatalf("hosts = %d, want 2", sim.Registry.Len())
	}
	h, err := sim.Registry.HostByName("n1")
	if err != nil {
		t.Fatalf("HostByName: %v", err)
	}
	if h.Address != 1 || h.Position.X != 10 || h.Position.Y != 0 {
		t.Fatalf("n1 = addr %d at %+v", h.Address, h.Position)
	}
	if h.Router() == nil || h.Router().Policy() == nil {
		t.Fatalf("n1 has no router")
	}
}

func TestBuildRealTimeClock(t *testing.T) {
	s := mustParse(t, pairScenario)
	s.Run.RealTime = 1000
	sim, err := Build(s)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if sim.Clock.Mode != timectrl.RealTime || sim.Clock.Scale != 1000 {
		t.Fatalf("clock = %s x%v, want realtime x1000", sim.Clock.Mode, sim.Clock.Scale)
	}
	summary, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1", summary.Delivered)
	}
}

const energyScenario = `
name: batteries
run: {duration: 10}
energy:
  initial: [100, 200]
hosts:
  - {prefix: n, count: 3, range: 10}
`

func initialEnergy(t *testing.T, seed string) []float64 {
	t.Helper()
	s := mustParse(t, energyScenario)
	s.Run.Seed = seed
	sim, err := Build(s)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	var out []float64
	for _, h := range sim.Registry.Hosts() {
		out = append(out, h.Router().Energy().Total())
	}
	return out
}

func TestSeedDrivesRandomStreams(t *testing.T) {
	first := initialEnergy(t, "alpha")
	again := initialEnergy(t, "alpha")
	other := initialEnergy(t, "beta")

	if len(first) != 3 {
		t.Fatalf("energy draws = %v, want 3", first)
	}
	for i := range first {
		if first[i] != again[i] {
			t.Fatalf("same seed drew %v then %v", first, again)
		}
		if first[i] < 100 || first[i] > 200 {
			t.Fatalf("draw %v outside [100, 200]", first[i])
		}
	}
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
		}
	}
	if same {
		t.Fatalf("seeds alpha and beta drew the same energy %v", first)
	}
}

func TestStreamSeedWordsAreValid(t *testing.T) {
	for _, name := range []string{"host/n0", "host/n1", "traffic/M", ""} {
		words := streamSeed("dtnsim", name)
		if len(words) != 6 {
			t.Fatalf("%q: %d seed words", name, len(words))
		}
		for i, w := range words {
			limit := uint64(mrgM1)
			if i >= 3 {
				limit = mrgM2
			}
			if w == 0 || w >= limit {
				t.Fatalf("%q: word %d = %d out of range", name, i, w)
			}
		}
	}
	if a, b := streamSeed("dtnsim", "host/n0"), streamSeed("dtnsim", "host/n1"); a[0] == b[0] && a[1] == b[1] {
		t.Fatalf("distinct streams share a seed: %v", a)
	}
}

func TestRunDeliversDirectMessage(t *testing.T) {
	sim, err := Build(mustParse(t, pairScenario))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	summary, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Created != 1 || summary.Delivered != 1 {
		t.Fatalf("created/delivered = %d/%d, want 1/1", summary.Created, summary.Delivered)
	}
	if summary.DeliveryProb != 1 {
		t.Fatalf("delivery prob = %v, want 1", summary.DeliveryProb)
	}
	if summary.SimTime != 10 {
		t.Fatalf("sim time = %v, want 10", summary.SimTime)
	}
}

func TestRunRelaysThroughContactPlan(t *testing.T) {
	sim, err := Build(mustParse(t, relayScenario))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	summary, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1", summary.Delivered)
	}
	if summary.HopCountMedian != 2 {
		t.Fatalf("hop count = %d, want 2", summary.HopCountMedian)
	}
	if summary.Relayed != 2 {
		t.Fatalf("relayed = %d, want 2", summary.Relayed)
	}
}

type countingObserver struct{ created int }

func (c *countingObserver) Observe(ev report.Event) {
	if ev.Kind == report.EventCreated {
		c.created++
	}
}

func TestRunAsyncReportsWithMetrics(t *testing.T) {
	s := mustParse(t, pairScenario)
	s.Run.AsyncReports = true

	collector, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	obs := &countingObserver{}
	sim, err := Build(s, WithMetrics(collector), WithObservers(obs))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	summary, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1", summary.Delivered)
	}
	if obs.created != 1 {
		t.Fatalf("observer saw %d creations, want 1", obs.created)
	}
	if got := testutil.ToFloat64(collector.Messages.WithLabelValues("created")); got != 1 {
		t.Fatalf("created counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SimTime); got != 9 {
		t.Fatalf("sim time gauge = %v, want 9", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sim, err := Build(mustParse(t, pairScenario))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if sim.Engine.Ticks() != 0 {
		t.Fatalf("ticks = %d, want 0", sim.Engine.Ticks())
	}
}

func TestBuildGeneratesTraffic(t *testing.T) {
	s := mustParse(t, `
run: {duration: 60}
hosts:
  - {prefix: n, count: 3, range: 100, position: [0, 0], spacing: [5, 0]}
traffic:
  - {prefix: M, interval: [5, 10], size: [100, 200], from: [0, 3], to: [0, 3], ttl: 600}
`)
	sim, err := Build(s)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	summary, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Created == 0 {
		t.Fatalf("no messages generated")
	}
	if summary.Delivered > summary.Created {
		t.Fatalf("delivered %d > created %d", summary.Delivered, summary.Created)
	}
}

func TestExampleScenarioBuilds(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "configs", "example_scenario.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if s.Policy.Kind != routing.KindClusterBased {
		t.Fatalf("policy = %v, want cluster", s.Policy.Kind)
	}
	sim, err := Build(s)
	if err != nil {
		t.Fatalf("Build example: %v", err)
	}
	if sim.Registry.Len() != 15 {
		t.Fatalf("hosts = %d, want 15", sim.Registry.Len())
	}
	sink, err := sim.Registry.HostByName("c14")
	if err != nil {
		t.Fatalf("sink host: %v", err)
	}
	if sink.Role != model.RoleSink {
		t.Fatalf("c14 role = %v, want sink", sink.Role)
	}
}
