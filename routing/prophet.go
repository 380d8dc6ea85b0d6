package routing

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// ProphetParams are the PRoPHET constants.
type ProphetParams struct {
	PInit float64 `yaml:"p_init" json:"p_init"`
	Beta  float64 `yaml:"beta" json:"beta"`
	Gamma float64 `yaml:"gamma" json:"gamma"`
	// SecondsInTimeUnit is the aging period: predictabilities are
	// multiplied by Gamma once per unit elapsed.
	SecondsInTimeUnit float64 `yaml:"seconds_in_time_unit" json:"seconds_in_time_unit"`
}

// DefaultProphetParams returns P_init 0.75, beta 0.25, gamma 0.98 and a
// 30 second time unit.
func DefaultProphetParams() ProphetParams {
	return ProphetParams{PInit: 0.75, Beta: 0.25, Gamma: 0.98, SecondsInTimeUnit: 30}
}

// Validate checks that the constants are usable.
func (p ProphetParams) Validate() error {
	names := []string{"p_init", "beta", "gamma"}
	for i, v := range []float64{p.PInit, p.Beta, p.Gamma} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("prophet: %s must be in (0, 1], got %v", names[i], v)
		}
	}
	if p.SecondsInTimeUnit <= 0 {
		return fmt.Errorf("prophet: seconds_in_time_unit must be positive, got %v", p.SecondsInTimeUnit)
	}
	return nil
}

// Prophet forwards a message only to a neighbor whose delivery
// predictability for the message's destination is higher than ours.
type Prophet struct {
	core.PolicyBase

	params  ProphetParams
	preds   map[int]float64
	lastAge float64
}

// NewProphet creates the policy.
func NewProphet(p ProphetParams) *Prophet {
	return &Prophet{params: p, preds: make(map[int]float64)}
}

func (p *Prophet) Name() string { return KindProphet.String() }

// Pred returns the aged predictability for dest.
func (p *Prophet) Pred(dest int) float64 {
	p.age()
	return p.preds[dest]
}

// Preds returns a copy of the aged predictability table.
func (p *Prophet) Preds() map[int]float64 {
	p.age()
	out := make(map[int]float64, len(p.preds))
	for k, v := range p.preds {
		out[k] = v
	}
	return out
}

func (p *Prophet) age() {
	now := p.Router().Now()
	units := (now - p.lastAge) / p.params.SecondsInTimeUnit
	if units <= 0 {
		return
	}
	mult := math.Pow(p.params.Gamma, units)
	for k := range p.preds {
		p.preds[k] *= mult
	}
	p.lastAge = now
}

func (p *Prophet) encounter(dest int) {
	old := p.Pred(dest)
	p.preds[dest] = old + (1-old)*p.params.PInit
}

func (p *Prophet) transitive(other *core.Host, op *Prophet) {
	self := p.Host().Address
	pForHost := p.Pred(other.Address)
	for dest, pOther := range op.Preds() {
		if dest == self {
			continue
		}
		old := p.Pred(dest)
		p.preds[dest] = old + (1-old)*pForHost*pOther*p.params.Beta
	}
}

// ConnectionChanged runs the encounter and transitivity updates when a
// contact starts.
func (p *Prophet) ConnectionChanged(c *core.Connection) {
	if !c.IsUp() {
		return
	}
	other := c.OtherNode(p.Host())
	or := other.Router()
	if or == nil {
		return
	}
	op, ok := or.Policy().(*Prophet)
	if !ok {
		return
	}
	p.encounter(other.Address)
	if acceptsAny(p.Router(), other) {
		p.encounter(model.AnyDestination)
	}
	p.transitive(other, op)
}

func (p *Prophet) SelectTransfers() *core.Connection {
	r := p.Router()
	if c := r.ExchangeDeliverableMessages(); c != nil {
		return c
	}

	peerPred := func(t core.Tuple) float64 {
		op, _ := t.Connection.OtherNode(p.Host()).Router().Policy().(*Prophet)
		return op.Pred(t.Message.To)
	}
	ts := candidateTuples(r, r.Messages(), func(_ *model.Message, other *core.Host) bool {
		_, ok := other.Router().Policy().(*Prophet)
		return ok
	})
	kept := ts[:0]
	for _, t := range ts {
		if peerPred(t) > p.Pred(t.Message.To) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	kept = r.SortTuplesByQueueMode(kept)
	slices.SortStableFunc(kept, func(a, b core.Tuple) int {
		pa, pb := peerPred(a), peerPred(b)
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		return 0
	})
	if t := r.TryMessagesForConnected(kept); t != nil {
		return t.Connection
	}
	return nil
}
