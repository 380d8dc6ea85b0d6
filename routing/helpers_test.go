package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

type testClock struct{ now float64 }

func (c *testClock) Seconds() float64 { return c.now }

type world struct {
	t     *testing.T
	clock *testClock
	hosts []*core.Host
}

func newWorld(t *testing.T) *world {
	return &world{t: t, clock: &testClock{}}
}

func (w *world) host(role model.Role, policy core.ForwardingPolicy) *core.Host {
	w.t.Helper()
	h := core.NewHost(len(w.hosts), "", role, 100)
	r, err := core.NewRouter(core.RouterConfig{BufferSize: 10000}, policy, w.clock)
	require.NoError(w.t, err)
	h.SetRouter(r)
	w.hosts = append(w.hosts, h)
	return h
}

func (w *world) connect(a, b *core.Host) *core.Connection {
	c := core.NewConnection(a, b, 0, w.clock)
	a.ConnectionUp(c)
	b.ConnectionUp(c)
	return c
}

func (w *world) disconnect(c *core.Connection) {
	c.SetUp(false)
	c.Initiator().ConnectionDown(c)
	c.Responder().ConnectionDown(c)
}

// step updates every host in creation order, then advances the clock.
func (w *world) step() {
	for _, h := range w.hosts {
		h.Update()
	}
	w.clock.now++
}

func (w *world) create(h *core.Host, id string, to, size int) *model.Message {
	w.t.Helper()
	m := model.NewMessage(id, h.Address, to, size, w.clock.now, 0)
	require.True(w.t, h.Router().CreateMessage(m))
	return m
}
