package routing

import (
	"context"

	"github.com/signalsfoundry/dtn-simulator/contactbook"
	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/internal/logging"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// Cluster moves messages along the exemplar hierarchy kept in a
// contactbook.Book: member to its exemplar, exemplar to exemplar, and
// exemplar to responder.
type Cluster struct {
	core.PolicyBase

	params contactbook.Params
	relay  bool
	book   *contactbook.Book
}

// NewCluster creates the policy. With relay, any two exemplars may
// exchange messages.
func NewCluster(p contactbook.Params, relay bool) *Cluster {
	return &Cluster{params: p, relay: relay}
}

func (c *Cluster) Name() string { return KindClusterBased.String() }

// Attach creates the host's contact book.
func (c *Cluster) Attach(r *core.Router) {
	c.PolicyBase.Attach(r)
	c.book = contactbook.New(r.Host().Address, c.params)
}

// Book returns the host's contact book.
func (c *Cluster) Book() *contactbook.Book { return c.book }

func peerCluster(h *core.Host) *Cluster {
	r := h.Router()
	if r == nil {
		return nil
	}
	pc, _ := r.Policy().(*Cluster)
	return pc
}

// ConnectionChanged does the contact bookkeeping for both ends on the
// initiator's side.
func (c *Cluster) ConnectionChanged(conn *core.Connection) {
	me := c.Host()
	if !conn.IsInitiator(me) {
		return
	}
	other := conn.OtherNode(me)
	oc := peerCluster(other)
	now := c.Router().Now()

	switch {
	case me.Role == model.RoleSurvivor && other.Role == model.RoleSurvivor:
		if oc == nil {
			return
		}
		if conn.IsUp() {
			c.book.ContactStarted(oc.book, now)
			return
		}
		before, otherBefore := c.book.Exemplar(), oc.book.Exemplar()
		c.book.Meet(oc.book, now)
		if c.book.Exemplar() != before || oc.book.Exemplar() != otherBefore {
			c.Router().Logger().Debug(context.Background(), "exemplar changed",
				logging.String("peer", other.Name),
				logging.Int("exemplar", c.book.Exemplar()),
				logging.Int("peer_exemplar", oc.book.Exemplar()))
		}
	case me.Role == model.RoleSurvivor && other.Role == model.RoleResponder:
		c.responderContact(conn.IsUp(), now)
	case me.Role == model.RoleResponder && other.Role == model.RoleSurvivor:
		if oc != nil {
			oc.responderContact(conn.IsUp(), now)
		}
	}
}

func (c *Cluster) responderContact(up bool, now float64) {
	if up {
		c.book.ResponderContactStarted(now)
		return
	}
	c.book.ResponderContactEnded(now)
}

// Tick closes the contact slot when due.
func (c *Cluster) Tick(now float64) {
	if c.Host().Role != model.RoleSurvivor {
		return
	}
	frac := 1.0
	if e := c.Router().Energy(); e != nil {
		frac = e.Fraction()
	}
	c.book.SlotTimeout(now, frac)
}

// Eligible reports whether a message may move from this host to other.
func (c *Cluster) Eligible(other *core.Host) bool {
	me := c.Host()
	if me.Role != model.RoleSurvivor {
		return false
	}
	switch other.Role {
	case model.RoleSurvivor:
		oc := peerCluster(other)
		if oc == nil {
			return false
		}
		if c.book.Exemplar() == other.Address && oc.book.IsExemplar() {
			return true
		}
		return c.relay && c.book.IsExemplar() && oc.book.IsExemplar()
	case model.RoleResponder:
		return c.book.IsExemplar() && c.book.WeightedFitness() >= c.params.WFThreshold
	}
	return false
}

func (c *Cluster) SelectTransfers() *core.Connection {
	r := c.Router()
	if conn := r.ExchangeDeliverableMessages(); conn != nil {
		return conn
	}
	ts := candidateTuples(r, r.Messages(), func(_ *model.Message, other *core.Host) bool {
		return c.Eligible(other)
	})
	if len(ts) == 0 {
		return nil
	}
	if t := r.TryMessagesForConnected(r.SortTuplesByQueueMode(ts)); t != nil {
		return t.Connection
	}
	return nil
}
