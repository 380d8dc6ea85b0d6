// Package report turns router lifecycle events into run statistics and
// keeps an archive of finished runs.
package report

import (
	"math"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// DefaultSampleInterval is the spacing of timeline samples in simulated
// seconds.
const DefaultSampleInterval = 1000.0

// EventKind identifies a message lifecycle event.
type EventKind int

const (
	EventCreated EventKind = iota
	EventStarted
	EventAborted
	EventDeleted
	EventTransferred
)

// Event is one lifecycle notification stamped with the simulation time
// at which it happened.
type Event struct {
	Kind    EventKind
	Time    float64
	Message *model.Message
	From    *core.Host
	To      *core.Host
	// Dropped is set on EventDeleted for buffer-pressure and TTL drops.
	Dropped bool
	// First is set on EventTransferred for the first delivery to a sink.
	First bool
}

// Observer consumes stamped events.
type Observer interface {
	Observe(ev Event)
}

// Sample is one point of the delivery timeline.
type Sample struct {
	Time              float64 `json:"time" yaml:"time"`
	Created           int     `json:"created" yaml:"created"`
	Delivered         int     `json:"delivered" yaml:"delivered"`
	CumulativeProb    float64 `json:"cumulative_prob" yaml:"cumulative_prob"`
	InstantaneousProb float64 `json:"instantaneous_prob" yaml:"instantaneous_prob"`
}

// DeliveryReport accumulates message statistics. Messages created before
// the warm-up time are ignored for their whole life.
type DeliveryReport struct {
	clock          core.Clock
	warmup         float64
	sampleInterval float64

	warmupIDs     map[string]struct{}
	creationTimes map[string]float64

	latencies   []float64
	hopCounts   []int
	bufferTimes []float64
	rtts        []float64

	created, started, relayed, aborted int
	dropped, removed, delivered        int
	responseRequests, responses        int

	timeline      []Sample
	lastSample    float64
	prevCreated   int
	prevDelivered int
}

// NewDeliveryReport creates a report reading time from clock.
func NewDeliveryReport(clock core.Clock, warmup float64) *DeliveryReport {
	return &DeliveryReport{
		clock:          clock,
		warmup:         warmup,
		sampleInterval: DefaultSampleInterval,
		warmupIDs:      make(map[string]struct{}),
		creationTimes:  make(map[string]float64),
	}
}

// SetSampleInterval changes the timeline spacing; zero or less disables
// the timeline.
func (r *DeliveryReport) SetSampleInterval(v float64) { r.sampleInterval = v }

func (r *DeliveryReport) now() float64 {
	if r.clock == nil {
		return 0
	}
	return r.clock.Seconds()
}

func (r *DeliveryReport) NewMessage(m *model.Message) {
	r.Observe(Event{Kind: EventCreated, Time: r.now(), Message: m})
}

func (r *DeliveryReport) MessageTransferStarted(m *model.Message, from, to *core.Host) {
	r.Observe(Event{Kind: EventStarted, Time: r.now(), Message: m, From: from, To: to})
}

func (r *DeliveryReport) MessageDeleted(m *model.Message, where *core.Host, dropped bool) {
	r.Observe(Event{Kind: EventDeleted, Time: r.now(), Message: m, From: where, Dropped: dropped})
}

func (r *DeliveryReport) MessageTransferAborted(m *model.Message, from, to *core.Host) {
	r.Observe(Event{Kind: EventAborted, Time: r.now(), Message: m, From: from, To: to})
}

func (r *DeliveryReport) MessageTransferred(m *model.Message, from, to *core.Host, first bool) {
	r.Observe(Event{Kind: EventTransferred, Time: r.now(), Message: m, From: from, To: to, First: first})
}

// Observe folds one event into the statistics.
func (r *DeliveryReport) Observe(ev Event) {
	m := ev.Message
	if ev.Kind == EventCreated {
		r.sample(ev.Time)
		if ev.Time < r.warmup {
			r.warmupIDs[m.ID] = struct{}{}
			return
		}
		r.creationTimes[m.ID] = ev.Time
		r.created++
		if m.ResponseSize > 0 && !m.IsResponse() {
			r.responseRequests++
		}
		return
	}
	if _, ok := r.warmupIDs[m.ID]; ok {
		return
	}

	switch ev.Kind {
	case EventStarted:
		r.started++
	case EventAborted:
		r.aborted++
	case EventDeleted:
		if ev.Dropped {
			r.dropped++
		} else {
			r.removed++
		}
		r.bufferTimes = append(r.bufferTimes, ev.Time-m.ReceivedAt)
	case EventTransferred:
		r.relayed++
		if !ev.First {
			return
		}
		r.delivered++
		if t, ok := r.creationTimes[m.ID]; ok {
			r.latencies = append(r.latencies, ev.Time-t)
		} else {
			r.latencies = append(r.latencies, ev.Time-m.CreatedAt)
		}
		r.hopCounts = append(r.hopCounts, m.HopCount())
		if m.IsResponse() {
			r.responses++
			if t, ok := r.creationTimes[m.RequestID]; ok {
				r.rtts = append(r.rtts, ev.Time-t)
			}
		}
	}
}

func (r *DeliveryReport) sample(now float64) {
	if r.sampleInterval <= 0 || now-r.lastSample <= r.sampleInterval {
		return
	}
	s := Sample{
		Time:      now,
		Created:   r.created - r.prevCreated,
		Delivered: r.delivered - r.prevDelivered,
	}
	if r.created > 0 {
		s.CumulativeProb = float64(r.delivered) / float64(r.created)
	}
	if s.Created > 0 {
		s.InstantaneousProb = float64(s.Delivered) / float64(s.Created)
	}
	r.timeline = append(r.timeline, s)
	r.lastSample = now
	r.prevCreated, r.prevDelivered = r.created, r.delivered
}

// Summary is the result of a run. Ratios without a defined value, such
// as the overhead ratio before any delivery, are reported as zero.
type Summary struct {
	SimTime float64 `json:"sim_time" yaml:"sim_time"`

	Created   int `json:"created" yaml:"created"`
	Started   int `json:"started" yaml:"started"`
	Relayed   int `json:"relayed" yaml:"relayed"`
	Aborted   int `json:"aborted" yaml:"aborted"`
	Dropped   int `json:"dropped" yaml:"dropped"`
	Removed   int `json:"removed" yaml:"removed"`
	Delivered int `json:"delivered" yaml:"delivered"`

	ResponseRequests   int `json:"response_requests" yaml:"response_requests"`
	ResponsesDelivered int `json:"responses_delivered" yaml:"responses_delivered"`

	DeliveryProb  float64 `json:"delivery_prob" yaml:"delivery_prob"`
	ResponseProb  float64 `json:"response_prob" yaml:"response_prob"`
	OverheadRatio float64 `json:"overhead_ratio" yaml:"overhead_ratio"`

	LatencyAvg       float64 `json:"latency_avg" yaml:"latency_avg"`
	LatencyMedian    float64 `json:"latency_med" yaml:"latency_med"`
	HopCountAvg      float64 `json:"hopcount_avg" yaml:"hopcount_avg"`
	HopCountMedian   int     `json:"hopcount_med" yaml:"hopcount_med"`
	BufferTimeAvg    float64 `json:"buffertime_avg" yaml:"buffertime_avg"`
	BufferTimeMedian float64 `json:"buffertime_med" yaml:"buffertime_med"`
	RTTAvg           float64 `json:"rtt_avg" yaml:"rtt_avg"`
	RTTMedian        float64 `json:"rtt_med" yaml:"rtt_med"`

	Timeline []Sample `json:"timeline,omitempty" yaml:"timeline,omitempty"`
}

// Summary computes the statistics collected so far.
func (r *DeliveryReport) Summary() Summary {
	s := Summary{
		SimTime:            r.now(),
		Created:            r.created,
		Started:            r.started,
		Relayed:            r.relayed,
		Aborted:            r.aborted,
		Dropped:            r.dropped,
		Removed:            r.removed,
		Delivered:          r.delivered,
		ResponseRequests:   r.responseRequests,
		ResponsesDelivered: r.responses,
		LatencyAvg:         average(r.latencies),
		LatencyMedian:      median(r.latencies),
		BufferTimeAvg:      average(r.bufferTimes),
		BufferTimeMedian:   median(r.bufferTimes),
		RTTAvg:             average(r.rtts),
		RTTMedian:          median(r.rtts),
		Timeline:           slices.Clone(r.timeline),
	}
	if r.created > 0 {
		s.DeliveryProb = float64(r.delivered) / float64(r.created)
	}
	if r.delivered > 0 {
		s.OverheadRatio = float64(r.relayed-r.delivered) / float64(r.delivered)
	}
	if r.responseRequests > 0 {
		s.ResponseProb = float64(r.responses) / float64(r.responseRequests)
	}
	hops := make([]float64, len(r.hopCounts))
	for i, h := range r.hopCounts {
		hops[i] = float64(h)
	}
	s.HopCountAvg = average(hops)
	s.HopCountMedian = int(math.Round(median(hops)))
	return s
}

func average(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// median returns the middle value, the upper-middle one for even
// lengths.
func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := slices.Clone(vs)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
