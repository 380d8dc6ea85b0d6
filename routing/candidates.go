package routing

import (
	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// peerHas reports whether other is known to hold m, either because it
// is on m's hop list or because its router buffers the id.
func peerHas(other *core.Host, m *model.Message) bool {
	if m.Visited(other.Address) {
		return true
	}
	r := other.Router()
	return r != nil && (r.HasMessage(m.ID) || r.IsDelivered(m.ID))
}

// candidateTuples pairs every message with every connection whose peer
// is idle and passes keep. Busy peers and peers already holding the
// message are skipped.
func candidateTuples(r *core.Router, msgs []*model.Message, keep func(m *model.Message, other *core.Host) bool) []core.Tuple {
	var ts []core.Tuple
	for _, c := range r.Connections() {
		if !c.IsReadyForTransfer() {
			continue
		}
		other := c.OtherNode(r.Host())
		or := other.Router()
		if or == nil || or.IsTransferring() {
			continue
		}
		for _, m := range msgs {
			if peerHas(other, m) {
				continue
			}
			if keep != nil && !keep(m, other) {
				continue
			}
			ts = append(ts, core.Tuple{Message: m, Connection: c})
		}
	}
	return ts
}

// anyRequest is addressed to whichever host the sink predicate accepts.
var anyRequest = &model.Message{To: model.AnyDestination}

// acceptsAny reports whether r would deliver AnyDestination messages to h.
func acceptsAny(r *core.Router, h *core.Host) bool {
	return r.IsValidSink(anyRequest, h)
}
