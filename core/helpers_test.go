package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/dtn-simulator/model"
)

type stepClock struct {
	now  float64
	tick float64
}

func (c *stepClock) Seconds() float64 { return c.now }

func (c *stepClock) Step() time.Time {
	c.now += c.tick
	return time.Unix(0, 0).Add(time.Duration(c.now * float64(time.Second)))
}

type fixedRandom float64

func (f fixedRandom) RandU01() float64 { return float64(f) }

// floodPolicy offers deliverable messages first and then everything.
type floodPolicy struct {
	PolicyBase
}

func (p *floodPolicy) Name() string { return "flood" }

func (p *floodPolicy) SelectTransfers() *Connection {
	if c := p.Router().ExchangeDeliverableMessages(); c != nil {
		return c
	}
	return p.Router().TryAllMessagesToAllConnections()
}

type deletion struct {
	id      string
	dropped bool
}

type recordingListener struct {
	created     []string
	started     []string
	aborted     []string
	deleted     []deletion
	transferred []string
	delivered   []string
}

func (l *recordingListener) NewMessage(m *model.Message) {
	l.created = append(l.created, m.ID)
}

func (l *recordingListener) MessageTransferStarted(m *model.Message, _, _ *Host) {
	l.started = append(l.started, m.ID)
}

func (l *recordingListener) MessageDeleted(m *model.Message, _ *Host, dropped bool) {
	l.deleted = append(l.deleted, deletion{id: m.ID, dropped: dropped})
}

func (l *recordingListener) MessageTransferAborted(m *model.Message, _, _ *Host) {
	l.aborted = append(l.aborted, m.ID)
}

func (l *recordingListener) MessageTransferred(m *model.Message, _, _ *Host, first bool) {
	l.transferred = append(l.transferred, m.ID)
	if first {
		l.delivered = append(l.delivered, m.ID)
	}
}

func newTestHost(t *testing.T, clock Clock, addr int, cfg RouterConfig, opts ...RouterOption) *Host {
	t.Helper()
	h := NewHost(addr, "", model.RoleSurvivor, 100)
	r, err := NewRouter(cfg, &floodPolicy{}, clock, opts...)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	h.SetRouter(r)
	return h
}

func connect(clock Clock, a, b *Host, speed float64) *Connection {
	c := NewConnection(a, b, speed, clock)
	a.ConnectionUp(c)
	b.ConnectionUp(c)
	return c
}
