package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/dtn-simulator/model"
)

// Connection is a bidirectional link between two hosts. At most one
// message is in flight at a time; the host that started the transfer
// owns the transfer fields until it finalizes or aborts.
type Connection struct {
	from *Host // initiator
	to   *Host // responder

	// Speed is the transfer rate in bytes per simulated second. Zero or
	// less means transfers complete at the next check.
	Speed float64

	clock Clock
	up    bool

	msgOnFly       *model.Message
	msgFrom        *Host
	transferDoneAt float64
	bytesDone      int
	upSince        float64
}

// NewConnection creates a connection in the up state.
func NewConnection(from, to *Host, speed float64, clock Clock) *Connection {
	return &Connection{
		from:    from,
		to:      to,
		Speed:   speed,
		clock:   clock,
		up:      true,
		upSince: clock.Seconds(),
	}
}

func (c *Connection) String() string {
	state := "up"
	if !c.up {
		state = "down"
	}
	return fmt.Sprintf("%s<->%s (%s)", c.from, c.to, state)
}

// IsUp reports whether the hosts are still in contact.
func (c *Connection) IsUp() bool { return c.up }

// SetUp is called by the connectivity layer on transitions.
func (c *Connection) SetUp(up bool) {
	if up && !c.up {
		c.upSince = c.clock.Seconds()
	}
	c.up = up
}

// UpSince returns the time the connection last came up.
func (c *Connection) UpSince() float64 { return c.upSince }

// Initiator returns the host that created the connection.
func (c *Connection) Initiator() *Host { return c.from }

// Responder returns the host that accepted the connection.
func (c *Connection) Responder() *Host { return c.to }

// IsInitiator reports whether h initiated the connection.
func (c *Connection) IsInitiator(h *Host) bool { return c.from == h }

// OtherNode returns the endpoint that is not h.
func (c *Connection) OtherNode(h *Host) *Host {
	if c.from == h {
		return c.to
	}
	return c.from
}

// IsReadyForTransfer reports whether a new transfer can start.
func (c *Connection) IsReadyForTransfer() bool {
	return c.up && c.msgOnFly == nil
}

// Message returns the message in flight, or nil.
func (c *Connection) Message() *model.Message { return c.msgOnFly }

// Sender returns the host sending the message in flight, or nil.
func (c *Connection) Sender() *Host { return c.msgFrom }

// TotalBytesTransferred returns the bytes finalized over this connection.
func (c *Connection) TotalBytesTransferred() int { return c.bytesDone }

// StartTransfer offers a replica of m from the sending host to the other
// endpoint's router. The transfer begins only if the receiver accepts.
func (c *Connection) StartTransfer(from *Host, m *model.Message) ReceiveResult {
	if !c.IsReadyForTransfer() {
		return Busy
	}
	receiver := c.OtherNode(from).Router()
	if receiver == nil {
		return Denied
	}
	replica := m.Replicate()
	res := receiver.Receive(replica, from)
	if res != Accepted {
		return res
	}
	c.msgOnFly = replica
	c.msgFrom = from
	c.transferDoneAt = c.clock.Seconds()
	if c.Speed > 0 {
		c.transferDoneAt += float64(m.Size) / c.Speed
	}
	return Accepted
}

// IsMessageTransferred reports whether the transfer in flight, if any,
// has had enough time to complete.
func (c *Connection) IsMessageTransferred() bool {
	if c.msgOnFly == nil {
		return true
	}
	return c.clock.Seconds() >= c.transferDoneAt
}

// RemainingBytes estimates the bytes not yet delivered.
func (c *Connection) RemainingBytes() int {
	if c.msgOnFly == nil {
		return 0
	}
	if c.Speed <= 0 {
		return 0
	}
	left := (c.transferDoneAt - c.clock.Seconds()) * c.Speed
	if left <= 0 {
		return 0
	}
	return int(math.Min(left, float64(c.msgOnFly.Size)))
}

// FinalizeTransfer hands the message to the receiving router.
func (c *Connection) FinalizeTransfer() {
	if c.msgOnFly == nil {
		return
	}
	m, from := c.msgOnFly, c.msgFrom
	c.clear()
	c.bytesDone += m.Size
	if r := c.OtherNode(from).Router(); r != nil {
		// ErrNoIncoming here means the receiver already discarded its copy.
		_ = r.TransferCompleted(m.ID, from)
	}
}

// AbortTransfer cancels the transfer in flight and tells the receiver.
func (c *Connection) AbortTransfer() {
	if c.msgOnFly == nil {
		return
	}
	m, from := c.msgOnFly, c.msgFrom
	remaining := c.RemainingBytes()
	c.clear()
	if r := c.OtherNode(from).Router(); r != nil {
		r.TransferAborted(m.ID, from, remaining)
	}
}

func (c *Connection) clear() {
	c.msgOnFly = nil
	c.msgFrom = nil
	c.transferDoneAt = 0
}
