package core

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/dtn-simulator/model"
)

// TrafficSource produces the messages due at a given time.
type TrafficSource interface {
	Messages(now float64) []*model.Message
}

// GeneratorConfig describes periodic traffic. Ranges are inclusive
// [min, max] pairs; a single value may be given as min == max.
type GeneratorConfig struct {
	Prefix   string
	Interval [2]float64
	Size     [2]int
	// From and To are half-open address ranges [lo, hi). A zero To range
	// addresses messages to AnyDestination.
	From [2]int
	To   [2]int

	TTL          float64
	ResponseSize int
	Start        float64
	// End stops generation; 0 means never.
	End float64
}

// Validate checks the ranges.
func (c GeneratorConfig) Validate() error {
	switch {
	case c.Interval[0] <= 0 || c.Interval[1] < c.Interval[0]:
		return fmt.Errorf("generator %q: invalid interval %v", c.Prefix, c.Interval)
	case c.Size[0] <= 0 || c.Size[1] < c.Size[0]:
		return fmt.Errorf("generator %q: invalid size %v", c.Prefix, c.Size)
	case c.From[1] <= c.From[0]:
		return fmt.Errorf("generator %q: empty source range %v", c.Prefix, c.From)
	case c.To != [2]int{} && c.To[1] <= c.To[0]:
		return fmt.Errorf("generator %q: empty destination range %v", c.Prefix, c.To)
	case c.To != [2]int{} && c.From[1]-c.From[0] == 1 && c.To[1]-c.To[0] == 1 && c.From[0] == c.To[0]:
		return fmt.Errorf("generator %q: source and destination are the same host", c.Prefix)
	}
	return nil
}

// MessageGenerator emits messages at random intervals between random
// host pairs drawn from a RandomSource.
type MessageGenerator struct {
	cfg  GeneratorConfig
	rng  RandomSource
	next float64
	seq  int
}

// NewMessageGenerator validates cfg and schedules the first message.
func NewMessageGenerator(cfg GeneratorConfig, rng RandomSource) (*MessageGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("generator %q: nil random source", cfg.Prefix)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "M"
	}
	g := &MessageGenerator{cfg: cfg, rng: rng}
	g.next = cfg.Start + g.drawInterval()
	return g, nil
}

// Generated returns how many messages have been emitted.
func (g *MessageGenerator) Generated() int { return g.seq }

// Messages implements TrafficSource.
func (g *MessageGenerator) Messages(now float64) []*model.Message {
	var out []*model.Message
	for now >= g.next && (g.cfg.End <= 0 || g.next < g.cfg.End) {
		out = append(out, g.create(now))
		g.next += g.drawInterval()
	}
	return out
}

func (g *MessageGenerator) create(now float64) *model.Message {
	g.seq++
	from := g.drawInt(g.cfg.From[0], g.cfg.From[1]-1)
	to := model.AnyDestination
	if g.cfg.To != [2]int{} {
		to = g.drawInt(g.cfg.To[0], g.cfg.To[1]-1)
		for to == from {
			if g.cfg.To[1]-g.cfg.To[0] > 1 {
				to = g.drawInt(g.cfg.To[0], g.cfg.To[1]-1)
			} else {
				from = g.drawInt(g.cfg.From[0], g.cfg.From[1]-1)
			}
		}
	}
	size := g.drawInt(g.cfg.Size[0], g.cfg.Size[1])
	m := model.NewMessage(fmt.Sprintf("%s%d", g.cfg.Prefix, g.seq), from, to, size, now, g.cfg.TTL)
	m.ResponseSize = g.cfg.ResponseSize
	return m
}

func (g *MessageGenerator) drawInterval() float64 {
	lo, hi := g.cfg.Interval[0], g.cfg.Interval[1]
	return lo + (hi-lo)*g.rng.RandU01()
}

func (g *MessageGenerator) drawInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	v := lo + int(math.Floor(g.rng.RandU01()*float64(hi-lo+1)))
	return min(v, hi)
}

// ScheduledMessage is a one-shot message created at a fixed time.
type ScheduledMessage struct {
	At           float64
	ID           string
	From, To     int
	Size         int
	TTL          float64
	ResponseSize int
}

// MessageSchedule replays one-shot messages in time order.
type MessageSchedule struct {
	pending []ScheduledMessage
}

// NewMessageSchedule sorts msgs by creation time.
func NewMessageSchedule(msgs []ScheduledMessage) *MessageSchedule {
	pending := slices.Clone(msgs)
	slices.SortStableFunc(pending, func(a, b ScheduledMessage) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})
	return &MessageSchedule{pending: pending}
}

// Remaining returns the number of messages not yet released.
func (s *MessageSchedule) Remaining() int { return len(s.pending) }

// Messages implements TrafficSource.
func (s *MessageSchedule) Messages(now float64) []*model.Message {
	var out []*model.Message
	for len(s.pending) > 0 && s.pending[0].At <= now {
		sm := s.pending[0]
		s.pending = s.pending[1:]
		m := model.NewMessage(sm.ID, sm.From, sm.To, sm.Size, now, sm.TTL)
		m.ResponseSize = sm.ResponseSize
		out = append(out, m)
	}
	return out
}
