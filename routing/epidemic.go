package routing

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// summaryFalsePositive is the target false-positive rate of a summary
// vector. A false positive hides a message from one peer for one contact.
const summaryFalsePositive = 0.001

// SummaryVector returns a bloom filter over the ids r buffers.
func SummaryVector(r *core.Router) *bloom.BloomFilter {
	msgs := r.Messages()
	n := uint(len(msgs))
	if n < 16 {
		n = 16
	}
	f := bloom.NewWithEstimates(n, summaryFalsePositive)
	for _, m := range msgs {
		f.AddString(m.ID)
	}
	return f
}

// Epidemic floods every buffered message to every neighbor that does not
// already hold it, after the deliverable-first pass.
type Epidemic struct {
	core.PolicyBase

	summaries bool
	vectors   map[int]*bloom.BloomFilter
}

// NewEpidemic creates an epidemic policy. With summaryVectors the peer's
// buffer is sampled once per contact.
func NewEpidemic(summaryVectors bool) *Epidemic {
	return &Epidemic{
		summaries: summaryVectors,
		vectors:   make(map[int]*bloom.BloomFilter),
	}
}

func (e *Epidemic) Name() string { return KindEpidemic.String() }

// ConnectionChanged takes the peer's summary vector on contact start and
// forgets it on contact end.
func (e *Epidemic) ConnectionChanged(c *core.Connection) {
	if !e.summaries {
		return
	}
	other := c.OtherNode(e.Host())
	if !c.IsUp() {
		delete(e.vectors, other.Address)
		return
	}
	if or := other.Router(); or != nil {
		e.vectors[other.Address] = SummaryVector(or)
	}
}

// TransferDone records the sent id in the recipient's vector.
func (e *Epidemic) TransferDone(c *core.Connection) {
	if v, ok := e.vectors[c.OtherNode(e.Host()).Address]; ok && c.Message() != nil {
		v.AddString(c.Message().ID)
	}
}

// Known reports whether the peer is believed to hold m.
func (e *Epidemic) Known(other *core.Host, m *model.Message) bool {
	if e.summaries {
		if v, ok := e.vectors[other.Address]; ok {
			return m.Visited(other.Address) || v.TestString(m.ID)
		}
	}
	return peerHas(other, m)
}

func (e *Epidemic) SelectTransfers() *core.Connection {
	r := e.Router()
	if c := r.ExchangeDeliverableMessages(); c != nil {
		return c
	}
	msgs := r.SortByQueueMode(r.Messages())
	for _, c := range r.Connections() {
		other := c.OtherNode(e.Host())
		offer := make([]*model.Message, 0, len(msgs))
		for _, m := range msgs {
			if !e.Known(other, m) {
				offer = append(offer, m)
			}
		}
		if len(offer) == 0 {
			continue
		}
		if r.TryAllMessages(c, offer) != nil {
			return c
		}
	}
	return nil
}
