package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dtn-simulator/internal/logging"
)

// SteppedClock is a Clock the engine can advance by one tick.
type SteppedClock interface {
	Clock
	Step() time.Time
}

// TickInfo describes a completed tick.
type TickInfo struct {
	Index    int
	Now      float64
	Duration time.Duration
}

// SimulationEngine drives the world tick by tick: move hosts, update
// connectivity, inject traffic, then update every host's router in
// creation order.
type SimulationEngine struct {
	Registry            *HostRegistry
	ConnectivityService *ConnectivityService
	Clock               SteppedClock
	Traffic             []TrafficSource

	log           logging.Logger
	tracer        trace.Tracer
	tickListeners []func(TickInfo)
	tick          int
	rejected      int
}

// NewSimulationEngine wires an engine over reg driven by clock.
func NewSimulationEngine(reg *HostRegistry, clock SteppedClock, log logging.Logger) *SimulationEngine {
	if log == nil {
		log = logging.Noop()
	}
	return &SimulationEngine{
		Registry:            reg,
		ConnectivityService: NewConnectivityService(reg, clock),
		Clock:               clock,
		log:                 log,
		tracer:              otel.Tracer("github.com/signalsfoundry/dtn-simulator/core"),
	}
}

// RegisterTickListener registers fn to run after every tick.
func (se *SimulationEngine) RegisterTickListener(fn func(TickInfo)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// AddTraffic adds a message source.
func (se *SimulationEngine) AddTraffic(src TrafficSource) {
	se.Traffic = append(se.Traffic, src)
}

// Ticks returns the number of ticks run so far.
func (se *SimulationEngine) Ticks() int { return se.tick }

// RejectedMessages counts generated messages whose origin could not
// buffer them.
func (se *SimulationEngine) RejectedMessages() int { return se.rejected }

// Step runs one tick at the current time and then advances the clock.
func (se *SimulationEngine) Step(ctx context.Context) {
	started := time.Now()
	now := se.Clock.Seconds()
	hosts := se.Registry.Hosts()

	for _, h := range hosts {
		h.Move(now)
	}
	se.ConnectivityService.UpdateConnectivity()
	se.injectTraffic(ctx, now)
	for _, h := range hosts {
		h.Update()
	}

	info := TickInfo{Index: se.tick, Now: now, Duration: time.Since(started)}
	for _, fn := range se.tickListeners {
		fn(info)
	}
	se.tick++
	se.Clock.Step()
}

// Run steps until the clock reaches end seconds or ctx is cancelled.
func (se *SimulationEngine) Run(ctx context.Context, end float64) error {
	ctx, span := se.tracer.Start(ctx, "SimulationEngine.Run",
		trace.WithAttributes(
			attribute.Float64("sim.end", end),
			attribute.Int("sim.hosts", se.Registry.Len()),
		))
	defer span.End()

	se.log.Info(ctx, "simulation started",
		logging.Int("hosts", se.Registry.Len()), logging.Float("end", end))
	for se.Clock.Seconds() < end {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("simulation stopped at %.1fs: %w", se.Clock.Seconds(), err)
		}
		se.Step(ctx)
	}
	span.SetAttributes(attribute.Int("sim.ticks", se.tick))
	se.log.Info(ctx, "simulation finished",
		logging.Int("ticks", se.tick), logging.Float("time", se.Clock.Seconds()))
	return nil
}

func (se *SimulationEngine) injectTraffic(ctx context.Context, now float64) {
	for _, src := range se.Traffic {
		for _, m := range src.Messages(now) {
			h, err := se.Registry.Host(m.From)
			if err != nil || h.Router() == nil {
				se.rejected++
				se.log.Warn(ctx, "message from unknown host",
					logging.String("message", m.ID), logging.Int("from", m.From))
				continue
			}
			if !h.Router().CreateMessage(m) {
				se.rejected++
			}
		}
	}
}
