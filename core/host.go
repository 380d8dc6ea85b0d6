package core

import (
	"fmt"

	"github.com/signalsfoundry/dtn-simulator/model"
)

// Clock supplies the current simulation time in seconds.
type Clock interface {
	Seconds() float64
}

// Host is a network participant: identity, role, radio, position and
// the router that owns its buffer.
type Host struct {
	Address int
	Name    string
	Role    model.Role

	Position Vec2
	Motion   MotionModel

	// Speed is the default transfer rate of connections this host initiates.
	Speed float64

	radioRange     float64
	rangeListeners []func(float64)

	router      *Router
	connections []*Connection
}

// NewHost creates a host with the given radio range.
func NewHost(address int, name string, role model.Role, radioRange float64) *Host {
	if name == "" {
		name = fmt.Sprintf("h%d", address)
	}
	return &Host{
		Address:    address,
		Name:       name,
		Role:       role,
		radioRange: radioRange,
	}
}

func (h *Host) String() string {
	if h == nil {
		return "<nil>"
	}
	return h.Name
}

// Router returns the host's router, or nil before SetRouter.
func (h *Host) Router() *Router { return h.router }

// SetRouter binds r to this host.
func (h *Host) SetRouter(r *Router) {
	h.router = r
	r.attach(h)
}

// RadioRange returns the current radio range.
func (h *Host) RadioRange() float64 { return h.radioRange }

// SetRadioRange changes the radio range and notifies range listeners.
func (h *Host) SetRadioRange(v float64) {
	if v == h.radioRange {
		return
	}
	h.radioRange = v
	for _, fn := range h.rangeListeners {
		fn(v)
	}
}

// OnRangeChange registers fn to be called after every range change.
func (h *Host) OnRangeChange(fn func(float64)) {
	h.rangeListeners = append(h.rangeListeners, fn)
}

// IsRadioActive reports whether the host can form connections.
func (h *Host) IsRadioActive() bool { return h.radioRange > 0 }

// Connections returns the host's current connections.
func (h *Host) Connections() []*Connection { return h.connections }

// ConnectionTo returns the connection to other, or nil.
func (h *Host) ConnectionTo(other *Host) *Connection {
	for _, c := range h.connections {
		if c.OtherNode(h) == other {
			return c
		}
	}
	return nil
}

// ConnectionUp registers c and informs the router.
func (h *Host) ConnectionUp(c *Connection) {
	h.connections = append(h.connections, c)
	if h.router != nil {
		h.router.ChangedConnection(c)
	}
}

// ConnectionDown informs the router and forgets c.
func (h *Host) ConnectionDown(c *Connection) {
	if h.router != nil {
		h.router.ChangedConnection(c)
	}
	for i, held := range h.connections {
		if held == c {
			h.connections = append(h.connections[:i], h.connections[i+1:]...)
			break
		}
	}
}

// Move updates Position from the motion model.
func (h *Host) Move(now float64) {
	if h.Motion != nil {
		h.Position = h.Motion.Position(now)
	}
}

// Update runs one tick of the host's router.
func (h *Host) Update() {
	if h.router != nil {
		h.router.Update()
	}
}
