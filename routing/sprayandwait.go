package routing

import (
	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// SprayAndWait hands out a bounded number of copies per message. In
// binary mode a sender with n copies keeps floor(n/2) and gives the
// receiver ceil(n/2); otherwise the receiver gets exactly one.
type SprayAndWait struct {
	core.PolicyBase

	initial int
	binary  bool
}

// NewSprayAndWait creates the policy with the given copy budget.
func NewSprayAndWait(initialCopies int, binary bool) *SprayAndWait {
	return &SprayAndWait{initial: initialCopies, binary: binary}
}

func (s *SprayAndWait) Name() string { return KindSprayAndWait.String() }

func (s *SprayAndWait) MessageCreated(m *model.Message) {
	m.Copies = s.initial
}

// MessageReceived sets the receiver's share of the sender's copies. The
// replica arrives carrying the sender's count from before the split.
func (s *SprayAndWait) MessageReceived(m *model.Message, _ *core.Host) {
	if s.binary {
		m.Copies = (m.Copies + 1) / 2
		return
	}
	m.Copies = 1
}

// TransferDone reduces the sender's own buffered copy.
func (s *SprayAndWait) TransferDone(c *core.Connection) {
	sent := c.Message()
	if sent == nil {
		return
	}
	m := s.Router().Message(sent.ID)
	if m == nil {
		return
	}
	if s.binary {
		m.Copies /= 2
	} else {
		m.Copies--
	}
}

func (s *SprayAndWait) SelectTransfers() *core.Connection {
	r := s.Router()
	if c := r.ExchangeDeliverableMessages(); c != nil {
		return c
	}
	var spray []*model.Message
	for _, m := range r.Messages() {
		if m.Copies > 0 {
			spray = append(spray, m)
		}
	}
	if len(spray) == 0 {
		return nil
	}
	ts := candidateTuples(r, r.SortByQueueMode(spray), nil)
	if t := r.TryMessagesForConnected(ts); t != nil {
		return t.Connection
	}
	return nil
}
