package core

// ContactWindow brings hosts A and B into contact for Start <= t < End.
type ContactWindow struct {
	A, B       int
	Start, End float64
}

func (w ContactWindow) covers(a, b int, now float64) bool {
	if !((w.A == a && w.B == b) || (w.A == b && w.B == a)) {
		return false
	}
	return now >= w.Start && now < w.End
}

type pairKey struct{ a, b int }

func keyFor(a, b *Host) pairKey {
	if a.Address < b.Address {
		return pairKey{a.Address, b.Address}
	}
	return pairKey{b.Address, a.Address}
}

// ConnectivityService plays the physical layer: each tick it decides
// which host pairs are in contact and raises connection up/down
// transitions. With an empty Plan contact follows radio range; with a
// Plan contact follows the windows and geometry is ignored. Hosts whose
// radio is off never connect.
type ConnectivityService struct {
	Registry *HostRegistry
	Clock    Clock
	Plan     []ContactWindow

	// DefaultSpeed is the transfer rate used when neither host sets one.
	DefaultSpeed float64

	conns     map[pairKey]*Connection
	listeners []ConnectionListener
}

// NewConnectivityService creates a service over the registry's hosts.
func NewConnectivityService(reg *HostRegistry, clock Clock) *ConnectivityService {
	return &ConnectivityService{
		Registry:     reg,
		Clock:        clock,
		DefaultSpeed: 250000,
		conns:        make(map[pairKey]*Connection),
	}
}

// AddListener registers an observer for connection transitions.
func (cs *ConnectivityService) AddListener(l ConnectionListener) {
	cs.listeners = append(cs.listeners, l)
}

// Connection returns the live connection between a and b, or nil.
func (cs *ConnectivityService) Connection(a, b *Host) *Connection {
	return cs.conns[keyFor(a, b)]
}

// ActiveConnections returns the number of live connections.
func (cs *ConnectivityService) ActiveConnections() int { return len(cs.conns) }

// Reset tears down every live connection.
func (cs *ConnectivityService) Reset() {
	if cs == nil {
		return
	}
	for _, c := range cs.conns {
		cs.disconnect(c)
	}
}

// UpdateConnectivity evaluates every host pair once, in creation order,
// with the lower-ordered host as initiator of new connections.
func (cs *ConnectivityService) UpdateConnectivity() {
	now := cs.Clock.Seconds()
	hosts := cs.Registry.Hosts()
	for i := 0; i < len(hosts); i++ {
		for j := i + 1; j < len(hosts); j++ {
			a, b := hosts[i], hosts[j]
			want := cs.shouldConnect(a, b, now)
			c := cs.conns[keyFor(a, b)]
			switch {
			case want && c == nil:
				cs.connect(a, b)
			case !want && c != nil:
				cs.disconnect(c)
			}
		}
	}
}

func (cs *ConnectivityService) shouldConnect(a, b *Host, now float64) bool {
	if len(cs.Plan) == 0 {
		return inRange(a, b)
	}
	if !a.IsRadioActive() || !b.IsRadioActive() {
		return false
	}
	for _, w := range cs.Plan {
		if w.covers(a.Address, b.Address, now) {
			return true
		}
	}
	return false
}

func (cs *ConnectivityService) connect(a, b *Host) {
	speed := cs.DefaultSpeed
	switch {
	case a.Speed > 0 && b.Speed > 0:
		speed = min(a.Speed, b.Speed)
	case a.Speed > 0:
		speed = a.Speed
	case b.Speed > 0:
		speed = b.Speed
	}
	c := NewConnection(a, b, speed, cs.Clock)
	cs.conns[keyFor(a, b)] = c
	a.ConnectionUp(c)
	b.ConnectionUp(c)
	for _, l := range cs.listeners {
		l.HostsConnected(a, b)
	}
}

func (cs *ConnectivityService) disconnect(c *Connection) {
	a, b := c.Initiator(), c.Responder()
	c.SetUp(false)
	delete(cs.conns, keyFor(a, b))
	a.ConnectionDown(c)
	b.ConnectionDown(c)
	for _, l := range cs.listeners {
		l.HostsDisconnected(a, b)
	}
}
