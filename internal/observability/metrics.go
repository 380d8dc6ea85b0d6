package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// SimCollector bundles Prometheus metrics for a simulation run. It
// listens to router and connectivity events and to engine ticks.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Messages *prometheus.CounterVec
	Contacts *prometheus.CounterVec

	ActiveConnections prometheus.Gauge
	BufferUsedBytes   prometheus.Gauge
	EnergyFraction    prometheus.Gauge
	SimTime           prometheus.Gauge
	TickDurations     prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	messages, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtnsim_messages_total",
		Help: "Message lifecycle events, labeled by event.",
	}, []string{"event"}), "dtnsim_messages_total")
	if err != nil {
		return nil, err
	}
	contacts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtnsim_contacts_total",
		Help: "Connection transitions, labeled by up or down.",
	}, []string{"event"}), "dtnsim_contacts_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtnsim_active_connections",
		Help: "Connections currently up.",
	}), "dtnsim_active_connections")
	if err != nil {
		return nil, err
	}
	buffered, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtnsim_buffer_used_bytes",
		Help: "Bytes held in all host buffers.",
	}), "dtnsim_buffer_used_bytes")
	if err != nil {
		return nil, err
	}
	energy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtnsim_energy_fraction_avg",
		Help: "Mean remaining energy fraction over survivors with an energy model.",
	}), "dtnsim_energy_fraction_avg")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtnsim_sim_time_seconds",
		Help: "Simulated seconds elapsed.",
	}), "dtnsim_sim_time_seconds")
	if err != nil {
		return nil, err
	}
	ticks, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtnsim_tick_duration_seconds",
		Help:    "Wall time spent in one engine tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "dtnsim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:          gatherer,
		Messages:          messages,
		Contacts:          contacts,
		ActiveConnections: active,
		BufferUsedBytes:   buffered,
		EnergyFraction:    energy,
		SimTime:           simTime,
		TickDurations:     ticks,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *SimCollector) inc(event string) {
	if c == nil || c.Messages == nil {
		return
	}
	c.Messages.WithLabelValues(event).Inc()
}

func (c *SimCollector) NewMessage(*model.Message) { c.inc("created") }

func (c *SimCollector) MessageTransferStarted(*model.Message, *core.Host, *core.Host) {
	c.inc("started")
}

func (c *SimCollector) MessageDeleted(_ *model.Message, _ *core.Host, dropped bool) {
	if dropped {
		c.inc("dropped")
		return
	}
	c.inc("removed")
}

func (c *SimCollector) MessageTransferAborted(*model.Message, *core.Host, *core.Host) {
	c.inc("aborted")
}

func (c *SimCollector) MessageTransferred(_ *model.Message, _, _ *core.Host, first bool) {
	c.inc("relayed")
	if first {
		c.inc("delivered")
	}
}

func (c *SimCollector) HostsConnected(_, _ *core.Host) {
	if c == nil {
		return
	}
	c.Contacts.WithLabelValues("up").Inc()
	c.ActiveConnections.Inc()
}

func (c *SimCollector) HostsDisconnected(_, _ *core.Host) {
	if c == nil {
		return
	}
	c.Contacts.WithLabelValues("down").Inc()
	c.ActiveConnections.Dec()
}

// TickListener returns an engine tick listener that records the tick
// duration and samples buffer and energy state of every host in reg.
func (c *SimCollector) TickListener(reg *core.HostRegistry) func(core.TickInfo) {
	return func(info core.TickInfo) {
		if c == nil {
			return
		}
		c.TickDurations.Observe(info.Duration.Seconds())
		c.SimTime.Set(info.Now)

		used := 0
		energy, n := 0.0, 0
		for _, h := range reg.Hosts() {
			r := h.Router()
			if r == nil {
				continue
			}
			used += r.Buffer().Used()
			if e := r.Energy(); e != nil && h.Role == model.RoleSurvivor {
				energy += e.Fraction()
				n++
			}
		}
		c.BufferUsedBytes.Set(float64(used))
		if n > 0 {
			c.EnergyFraction.Set(energy / float64(n))
		}
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
