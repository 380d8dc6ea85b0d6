package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/internal/logging"
	"github.com/signalsfoundry/dtn-simulator/internal/observability"
	"github.com/signalsfoundry/dtn-simulator/model"
	"github.com/signalsfoundry/dtn-simulator/neighborlist"
	"github.com/signalsfoundry/dtn-simulator/report"
	"github.com/signalsfoundry/dtn-simulator/routing"
	"github.com/signalsfoundry/dtn-simulator/timectrl"
)

// Simulation is a scenario wired into hosts, routers and an engine.
type Simulation struct {
	Scenario *Scenario
	Registry *core.HostRegistry
	Engine   *core.SimulationEngine
	Clock    *timectrl.TimeController
	Report   *report.DeliveryReport

	async   *report.AsyncListener
	metrics *observability.SimCollector
	log     logging.Logger
	wall    time.Duration
}

type buildOptions struct {
	log       logging.Logger
	metrics   *observability.SimCollector
	observers []report.Observer
	start     time.Time
}

// Option customises Build.
type Option func(*buildOptions)

// WithLogger sets the logger handed to the engine and every router.
func WithLogger(l logging.Logger) Option {
	return func(o *buildOptions) { o.log = l }
}

// WithMetrics attaches a Prometheus collector to routers, connectivity
// and ticks.
func WithMetrics(c *observability.SimCollector) Option {
	return func(o *buildOptions) { o.metrics = c }
}

// WithObservers adds report observers next to the delivery report.
func WithObservers(obs ...report.Observer) Option {
	return func(o *buildOptions) { o.observers = append(o.observers, obs...) }
}

// WithStartTime anchors simulation second zero to a wall-clock instant.
func WithStartTime(t time.Time) Option {
	return func(o *buildOptions) { o.start = t }
}

// observerFanout turns synchronous router callbacks into events for
// extra observers.
type observerFanout struct {
	clock     core.Clock
	observers []report.Observer
}

func (f *observerFanout) emit(ev report.Event) {
	ev.Time = f.clock.Seconds()
	for _, o := range f.observers {
		o.Observe(ev)
	}
}

func (f *observerFanout) NewMessage(m *model.Message) {
	f.emit(report.Event{Kind: report.EventCreated, Message: m})
}

func (f *observerFanout) MessageTransferStarted(m *model.Message, from, to *core.Host) {
	f.emit(report.Event{Kind: report.EventStarted, Message: m, From: from, To: to})
}

func (f *observerFanout) MessageDeleted(m *model.Message, where *core.Host, dropped bool) {
	f.emit(report.Event{Kind: report.EventDeleted, Message: m, From: where, Dropped: dropped})
}

func (f *observerFanout) MessageTransferAborted(m *model.Message, from, to *core.Host) {
	f.emit(report.Event{Kind: report.EventAborted, Message: m, From: from, To: to})
}

func (f *observerFanout) MessageTransferred(m *model.Message, from, to *core.Host, first bool) {
	f.emit(report.Event{Kind: report.EventTransferred, Message: m, From: from, To: to, First: first})
}

// Build validates s and assembles the simulation. Every host and traffic
// generator draws from its own stream seeded by run.seed and its name,
// so building the same scenario twice replays the same run.
func Build(s *Scenario, opts ...Option) (*Simulation, error) {
	if s == nil {
		return nil, fmt.Errorf("Build: nil scenario")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	o := buildOptions{log: logging.Noop(), start: time.Unix(0, 0).UTC()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Noop()
	}

	tick := time.Duration(s.Run.Tick * float64(time.Second))
	clock := timectrl.NewTimeController(o.start, tick, timectrl.Accelerated)
	if s.Run.RealTime > 0 {
		clock.Mode = timectrl.RealTime
		clock.Scale = s.Run.RealTime
	}

	sim := &Simulation{
		Scenario: s,
		Registry: core.NewHostRegistry(),
		Clock:    clock,
		Report:   report.NewDeliveryReport(clock, s.Run.Warmup),
		metrics:  o.metrics,
		log:      logging.WithClock(o.log, clock),
	}
	sim.Report.SetSampleInterval(s.Run.SampleInterval)

	var listeners []core.MessageListener
	if s.Run.AsyncReports {
		sim.async = report.NewAsyncListener(clock, append([]report.Observer{sim.Report}, o.observers...)...)
		listeners = append(listeners, sim.async)
	} else {
		listeners = append(listeners, sim.Report)
		if len(o.observers) > 0 {
			listeners = append(listeners, &observerFanout{clock: clock, observers: o.observers})
		}
	}
	if o.metrics != nil {
		listeners = append(listeners, o.metrics)
	}

	rcfg, err := s.routerConfig()
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	if err := sim.addHosts(rcfg, listeners); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	if err := sim.scheduleFailures(); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	sim.Engine = core.NewSimulationEngine(sim.Registry, clock, sim.log)
	if s.Router.Speed > 0 {
		sim.Engine.ConnectivityService.DefaultSpeed = s.Router.Speed
	}
	plan, err := sim.contactPlan()
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	sim.Engine.ConnectivityService.Plan = plan
	if o.metrics != nil {
		sim.Engine.ConnectivityService.AddListener(o.metrics)
		sim.Engine.RegisterTickListener(o.metrics.TickListener(sim.Registry))
	}

	if err := sim.addTraffic(); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	return sim, nil
}

func (s *Scenario) routerConfig() (core.RouterConfig, error) {
	mode, err := parseQueueMode(s.Router.QueueMode)
	if err != nil {
		return core.RouterConfig{}, err
	}
	sink, err := parseSink(s.Router.Sink)
	if err != nil {
		return core.RouterConfig{}, err
	}
	cfg := core.RouterConfig{
		BufferSize:       s.Router.BufferSize,
		DeleteDelivered:  s.Router.DeleteDelivered,
		TTLCheckInterval: s.Router.TTLCheckInterval,
		MessageTTL:       s.Router.MessageTTL,
		QueueMode:        mode,
		Sink:             sink,
	}
	if s.Energy != nil {
		ec := s.energyConfig()
		cfg.Energy = &ec
	}
	if nl := s.NeighborList; nl != nil {
		list, err := neighborlist.Load(nl.Path, nl.Optional)
		if err != nil {
			return core.RouterConfig{}, err
		}
		cfg.NeighborFilter = list
		cfg.SamplingInterval = nl.SamplingInterval
	}
	return cfg, nil
}

func (sim *Simulation) addHosts(rcfg core.RouterConfig, listeners []core.MessageListener) error {
	s := sim.Scenario
	names := s.HostNames()
	addr := 0
	for _, g := range s.Hosts {
		var motion core.MotionModel
		if len(g.Waypoints) > 0 {
			points := make([]core.Waypoint, 0, len(g.Waypoints))
			for _, w := range g.Waypoints {
				points = append(points, core.Waypoint{T: w.T, Pos: core.Vec2{X: w.X, Y: w.Y}})
			}
			motion = core.NewWaypointMotion(points)
		}
		for i := 0; i < g.Count; i++ {
			name := names[addr]
			h := core.NewHost(addr, name, g.Role, g.Range)
			h.Speed = g.Speed
			if motion != nil {
				h.Motion = motion
			} else {
				h.Motion = core.StaticMotion{At: groupPosition(g, i)}
			}
			h.Position = h.Motion.Position(0)

			policy, err := routing.New(s.Policy)
			if err != nil {
				return err
			}
			r, err := core.NewRouter(rcfg, policy, sim.Clock,
				core.WithLogger(sim.log.With(logging.String("host", name))),
				core.WithRandom(newStream(s.Run.Seed, "host/"+name)),
				core.WithMessageListeners(listeners...),
			)
			if err != nil {
				return fmt.Errorf("host %s: %w", name, err)
			}
			h.SetRouter(r)
			if err := sim.Registry.AddHost(h); err != nil {
				return err
			}
			addr++
		}
	}
	return nil
}

func groupPosition(g HostGroup, i int) core.Vec2 {
	var p core.Vec2
	if len(g.Position) == 2 {
		p = core.Vec2{X: g.Position[0], Y: g.Position[1]}
	}
	if len(g.Spacing) == 2 {
		p.X += float64(i) * g.Spacing[0]
		p.Y += float64(i) * g.Spacing[1]
	}
	return p
}

func (sim *Simulation) scheduleFailures() error {
	if sim.Scenario.Energy == nil {
		return nil
	}
	for _, f := range sim.Scenario.Energy.Failures {
		h, err := sim.Registry.HostByName(f.Host)
		if err != nil {
			return err
		}
		h.Router().ScheduleFailure(f.At)
	}
	return nil
}

func (sim *Simulation) contactPlan() ([]core.ContactWindow, error) {
	plan := make([]core.ContactWindow, 0, len(sim.Scenario.Contacts))
	for _, c := range sim.Scenario.Contacts {
		a, err := sim.Registry.HostByName(c.A)
		if err != nil {
			return nil, err
		}
		b, err := sim.Registry.HostByName(c.B)
		if err != nil {
			return nil, err
		}
		plan = append(plan, core.ContactWindow{A: a.Address, B: b.Address, Start: c.Start, End: c.End})
	}
	return plan, nil
}

func (sim *Simulation) addTraffic() error {
	s := sim.Scenario
	for _, t := range s.Traffic {
		cfg, err := t.generatorConfig()
		if err != nil {
			return err
		}
		gen, err := core.NewMessageGenerator(cfg, newStream(s.Run.Seed, "traffic/"+t.Prefix))
		if err != nil {
			return err
		}
		sim.Engine.AddTraffic(gen)
	}
	if len(s.Messages) == 0 {
		return nil
	}
	msgs := make([]core.ScheduledMessage, 0, len(s.Messages))
	for _, m := range s.Messages {
		from, err := sim.Registry.HostByName(m.From)
		if err != nil {
			return err
		}
		to, err := sim.Registry.HostByName(m.To)
		if err != nil {
			return err
		}
		msgs = append(msgs, core.ScheduledMessage{
			At:           m.At,
			ID:           m.ID,
			From:         from.Address,
			To:           to.Address,
			Size:         m.Size,
			TTL:          m.TTL,
			ResponseSize: m.ResponseSize,
		})
	}
	sim.Engine.AddTraffic(core.NewMessageSchedule(msgs))
	return nil
}

// Run steps the engine to the end of the scenario and returns the
// delivery summary. A cancelled context stops the run early; the summary
// then covers the ticks that ran.
func (sim *Simulation) Run(ctx context.Context) (report.Summary, error) {
	ctx, log := logging.WithRunLogger(ctx, sim.log)
	log.Info(ctx, "scenario starting",
		logging.String("scenario", sim.Scenario.Name),
		logging.String("policy", sim.Scenario.Policy.Kind.String()),
		logging.Int("hosts", sim.Registry.Len()))

	started := time.Now()
	err := sim.Engine.Run(ctx, sim.Scenario.Run.Duration)
	sim.wall = time.Since(started)

	summary := sim.Summary()
	log.Info(ctx, "scenario finished",
		logging.Int("created", summary.Created),
		logging.Int("delivered", summary.Delivered),
		logging.Float("delivery_prob", summary.DeliveryProb),
		logging.String("wall", sim.wall.String()))
	return summary, err
}

// Summary drains any pending report events and returns the summary.
func (sim *Simulation) Summary() report.Summary {
	if sim.async != nil {
		sim.async.Flush()
	}
	return sim.Report.Summary()
}

// Wall returns the wall-clock duration of the last Run.
func (sim *Simulation) Wall() time.Duration { return sim.wall }
