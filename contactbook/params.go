// Package contactbook keeps the per-host exemplar table used by the
// cluster-based policy: contact fitness toward every known neighbor, the
// host's responder and weighted fitness, and the gossip rules that merge
// two tables when their hosts meet.
package contactbook

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams reports an out-of-range parameter.
var ErrInvalidParams = errors.New("invalid contact book parameters")

// Params are the smoothing weights and thresholds shared by every host
// of a run.
type Params struct {
	SlotInterval float64 `yaml:"slot_interval" json:"slot_interval"`

	// Alpha weighs the newest contact-fitness sample.
	Alpha float64 `yaml:"alpha" json:"alpha"`
	// Beta is carried for the weighted-fitness model; the current formula
	// depends on energy alone.
	Beta float64 `yaml:"beta" json:"beta"`
	// Gamma weighs the newest responder-fitness sample.
	Gamma float64 `yaml:"gamma" json:"gamma"`

	CFThreshold float64 `yaml:"cf_threshold" json:"cf_threshold"`
	WFThreshold float64 `yaml:"wf_threshold" json:"wf_threshold"`
	RFThreshold float64 `yaml:"rf_threshold" json:"rf_threshold"`

	// FractionalSample feeds the fraction of the slot spent in contact
	// into the averages instead of a 0/1 presence sample.
	FractionalSample bool `yaml:"fractional_sample" json:"fractional_sample"`
}

// DefaultParams returns the stock settings.
func DefaultParams() Params {
	return Params{
		SlotInterval: 30,
		Alpha:        0.9,
		Beta:         0.9,
		Gamma:        0.9,
		CFThreshold:  0.1,
		WFThreshold:  0.1,
		RFThreshold:  0.1,
	}
}

// Validate checks the weights are in [0, 1] and the slot is positive.
func (p Params) Validate() error {
	if p.SlotInterval <= 0 {
		return fmt.Errorf("%w: slot interval %v", ErrInvalidParams, p.SlotInterval)
	}
	for name, w := range map[string]float64{"alpha": p.Alpha, "beta": p.Beta, "gamma": p.Gamma} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: %s %v outside [0, 1]", ErrInvalidParams, name, w)
		}
	}
	return nil
}

// EWMA returns (1-w)*old + w*sample.
func EWMA(old, sample, w float64) float64 {
	return (1-w)*old + w*sample
}

// Round2 rounds to two decimals, halves away from zero.
func Round2(v float64) float64 {
	sign := 1.0
	if v < 0 {
		sign, v = -1, -v
	}
	return sign * math.Floor(v*100+0.5+1e-9) / 100
}
