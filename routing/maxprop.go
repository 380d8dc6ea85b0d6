package routing

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// bytesSamples is the number of contacts averaged for the hop threshold.
const bytesSamples = 10

// MaxProp orders messages by hop count below an adaptive threshold and
// by estimated path cost above it. Costs are shortest paths over the
// known meeting probabilities with edge weight 1-p.
type MaxProp struct {
	core.PolicyBase

	probs    *MeetingProbabilitySet
	allProbs map[int]*MeetingProbabilitySet
	acks     map[string]struct{}

	samples  []int
	avgBytes float64

	graph *simple.WeightedDirectedGraph
	trees map[int]path.Shortest
}

// NewMaxProp creates the policy.
func NewMaxProp() *MaxProp {
	return &MaxProp{
		probs:    NewMeetingProbabilitySet(DefaultProbSetSize, DefaultProbAlpha),
		allProbs: make(map[int]*MeetingProbabilitySet),
		acks:     make(map[string]struct{}),
	}
}

func (p *MaxProp) Name() string { return KindMaxProp.String() }

// Probs returns the owner's meeting probabilities.
func (p *MaxProp) Probs() *MeetingProbabilitySet { return p.probs }

// Acked reports whether id is known to have been delivered.
func (p *MaxProp) Acked(id string) bool {
	_, ok := p.acks[id]
	return ok
}

// AverageTransferred returns the mean bytes moved per recent contact.
func (p *MaxProp) AverageTransferred() float64 { return p.avgBytes }

// ConnectionChanged exchanges acks and probabilities when a contact
// starts (initiator side only, for both ends) and samples the bytes
// moved when it ends.
func (p *MaxProp) ConnectionChanged(c *core.Connection) {
	if !c.IsUp() {
		p.recordBytes(c.TotalBytesTransferred())
		return
	}
	me := p.Host()
	if !c.IsInitiator(me) {
		return
	}
	other := c.OtherNode(me)
	or := other.Router()
	if or == nil {
		return
	}
	op, ok := or.Policy().(*MaxProp)
	if !ok {
		return
	}
	now := p.Router().Now()

	p.mergeAcks(op)
	op.mergeAcks(p)
	p.deleteAcked()
	op.deleteAcked()

	p.met(other, now)
	op.met(me, now)

	p.learn(op)
	op.learn(p)
	p.allProbs[other.Address] = op.probs.Replicate()
	op.allProbs[me.Address] = p.probs.Replicate()

	p.invalidate()
	op.invalidate()
}

func (p *MaxProp) met(other *core.Host, now float64) {
	p.probs.Update(other.Address, now)
	if acceptsAny(p.Router(), other) {
		p.probs.Update(model.AnyDestination, now)
	}
}

func (p *MaxProp) mergeAcks(from *MaxProp) {
	for id := range from.acks {
		p.acks[id] = struct{}{}
	}
}

func (p *MaxProp) deleteAcked() {
	r := p.Router()
	for id := range p.acks {
		if r.HasMessage(id) && !r.IsSending(id) {
			r.DeleteMessage(id, false)
		}
	}
}

// learn copies every set the other side knows more recently than we do.
func (p *MaxProp) learn(from *MaxProp) {
	self := p.Host().Address
	for addr, theirs := range from.allProbs {
		if addr == self {
			continue
		}
		mine, ok := p.allProbs[addr]
		if !ok || theirs.LastUpdate() > mine.LastUpdate() {
			p.allProbs[addr] = theirs.Replicate()
		}
	}
}

func (p *MaxProp) recordBytes(n int) {
	if n <= 0 {
		return
	}
	p.samples = append(p.samples, n)
	if len(p.samples) > bytesSamples {
		p.samples = p.samples[len(p.samples)-bytesSamples:]
	}
	sum := 0
	for _, s := range p.samples {
		sum += s
	}
	p.avgBytes = float64(sum) / float64(len(p.samples))
}

// MessageReceived acks messages delivered here.
func (p *MaxProp) MessageReceived(m *model.Message, _ *core.Host) {
	if p.Router().IsValidSink(m, p.Host()) {
		p.acks[m.ID] = struct{}{}
	}
}

// TransferDone acks and drops our copy once it reached a sink.
func (p *MaxProp) TransferDone(c *core.Connection) {
	m := c.Message()
	if m == nil {
		return
	}
	r := p.Router()
	if r.IsValidSink(m, c.OtherNode(p.Host())) {
		p.acks[m.ID] = struct{}{}
		r.DeleteMessage(m.ID, false)
	}
}

func (p *MaxProp) invalidate() {
	p.graph = nil
	p.trees = nil
}

func nodeID(addr int) int64 { return int64(addr) + 1 }

func (p *MaxProp) buildGraph() *simple.WeightedDirectedGraph {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	add := func(from int, set *MeetingProbabilitySet) {
		for to, prob := range set.All() {
			if to == from {
				continue
			}
			g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(nodeID(from)),
				T: simple.Node(nodeID(to)),
				W: 1 - prob,
			})
		}
	}
	add(p.Host().Address, p.probs)
	for addr, set := range p.allProbs {
		add(addr, set)
	}
	return g
}

// Cost returns the estimated cost of delivering from the host at from to
// dest. Unreachable destinations cost +Inf.
func (p *MaxProp) Cost(from, dest int) float64 {
	if from == dest {
		return 0
	}
	if p.graph == nil {
		p.graph = p.buildGraph()
		p.trees = make(map[int]path.Shortest)
	}
	tree, ok := p.trees[from]
	if !ok {
		tree = path.DijkstraFrom(simple.Node(nodeID(from)), p.graph)
		p.trees[from] = tree
	}
	return tree.WeightTo(nodeID(dest))
}

// Threshold returns the hop count below which messages are sent before
// cost-ordered ones. It is derived from the average bytes per contact
// and the buffer size.
func (p *MaxProp) Threshold() int {
	r := p.Router()
	b := float64(r.Buffer().Capacity())
	x := p.avgBytes
	var budget float64
	switch {
	case x == 0:
		return 0
	case x < b/2:
		budget = x
	case x < b:
		budget = math.Min(x, b-x)
	default:
		return 0
	}
	msgs := r.Messages()
	slices.SortStableFunc(msgs, func(m1, m2 *model.Message) int {
		return m1.HopCount() - m2.HopCount()
	})
	for _, m := range msgs {
		budget -= float64(m.Size)
		if budget <= 0 {
			return m.HopCount() + 1
		}
	}
	return math.MaxInt
}

func (p *MaxProp) SelectTransfers() *core.Connection {
	r := p.Router()
	if c := r.ExchangeDeliverableMessages(); c != nil {
		return c
	}
	ts := candidateTuples(r, r.Messages(), nil)
	if len(ts) == 0 {
		return nil
	}
	ts = r.SortTuplesByQueueMode(ts)

	threshold := p.Threshold()
	me := p.Host()
	slices.SortStableFunc(ts, func(a, b core.Tuple) int {
		ha, hb := a.Message.HopCount(), b.Message.HopCount()
		belowA, belowB := ha < threshold, hb < threshold
		switch {
		case belowA && !belowB:
			return -1
		case belowB && !belowA:
			return 1
		case belowA && belowB:
			return ha - hb
		}
		ca := p.Cost(a.Connection.OtherNode(me).Address, a.Message.To)
		cb := p.Cost(b.Connection.OtherNode(me).Address, b.Message.To)
		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		return ha - hb
	})
	if t := r.TryMessagesForConnected(ts); t != nil {
		return t.Connection
	}
	return nil
}
