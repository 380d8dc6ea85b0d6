package core

import "fmt"

// EnergyConfig holds the energy model parameters for one run.
type EnergyConfig struct {
	// Initial is either a fixed level or a [min, max] range drawn uniformly.
	Initial      []float64
	ScanCost     float64
	ScanInterval float64
	TransmitRate float64
	// Warmup suppresses every debit before this simulation time.
	Warmup float64
}

// Validate rejects malformed settings.
func (c EnergyConfig) Validate() error {
	if len(c.Initial) != 1 && len(c.Initial) != 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidEnergyRange, len(c.Initial))
	}
	if len(c.Initial) == 2 && c.Initial[1] < c.Initial[0] {
		return fmt.Errorf("%w: min %v > max %v", ErrInvalidEnergyRange, c.Initial[0], c.Initial[1])
	}
	return nil
}

// RandomSource produces uniform samples in [0, 1).
type RandomSource interface {
	RandU01() float64
}

// Energy is a depleting battery. Level changes are published to the
// registered listeners.
type Energy struct {
	cfg     EnergyConfig
	total   float64
	level   float64
	lastUpd float64
	lastScn float64

	listeners []func(level float64)
}

// NewEnergy draws the initial level from cfg. A two-value range needs rng.
func NewEnergy(cfg EnergyConfig, rng RandomSource) (*Energy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level := cfg.Initial[0]
	if len(cfg.Initial) == 2 {
		if rng == nil {
			return nil, fmt.Errorf("%w: range needs a random source", ErrInvalidEnergyRange)
		}
		level = cfg.Initial[0] + rng.RandU01()*(cfg.Initial[1]-cfg.Initial[0])
	}
	return &Energy{cfg: cfg, total: level, level: level}, nil
}

// Level returns the remaining energy.
func (e *Energy) Level() float64 { return e.level }

// Total returns the initial energy.
func (e *Energy) Total() float64 { return e.total }

// Fraction returns level / total, or 0 for a zero total.
func (e *Energy) Fraction() float64 {
	if e.total <= 0 {
		return 0
	}
	return e.level / e.total
}

// Depleted reports whether no energy is left.
func (e *Energy) Depleted() bool { return e.level <= 0 }

// OnChange registers fn to be called after each level change.
func (e *Energy) OnChange(fn func(level float64)) {
	e.listeners = append(e.listeners, fn)
}

// Reduce debits amount, flooring at zero. Debits before the warm-up time
// are ignored.
func (e *Energy) Reduce(now, amount float64) {
	if now < e.cfg.Warmup || amount <= 0 || e.level <= 0 {
		return
	}
	e.level -= amount
	if e.level < 0 {
		e.level = 0
	}
	e.publish()
}

// Deplete forces the level to zero.
func (e *Energy) Deplete() {
	if e.level == 0 {
		return
	}
	e.level = 0
	e.publish()
}

// Update applies the transmit debit for the time since the last update
// when active is true, and the scan debit when a scan interval elapsed.
func (e *Energy) Update(now float64, active bool) {
	if e.level <= 0 {
		e.lastUpd = now
		return
	}
	if active && now > e.lastUpd {
		e.Reduce(now, (now-e.lastUpd)*e.cfg.TransmitRate)
	}
	e.lastUpd = now
	if now > e.lastScn+e.cfg.ScanInterval {
		e.Reduce(now, e.cfg.ScanCost)
		e.lastScn = now
	}
}

func (e *Energy) publish() {
	for _, fn := range e.listeners {
		fn(e.level)
	}
}
