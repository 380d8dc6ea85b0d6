package core

import (
	"testing"

	"github.com/signalsfoundry/dtn-simulator/model"
)

type countingConnListener struct {
	up, down int
}

func (l *countingConnListener) HostsConnected(_, _ *Host)    { l.up++ }
func (l *countingConnListener) HostsDisconnected(_, _ *Host) { l.down++ }

func newRegistry(t *testing.T, hosts ...*Host) *HostRegistry {
	t.Helper()
	reg := NewHostRegistry()
	for _, h := range hosts {
		if err := reg.AddHost(h); err != nil {
			t.Fatalf("AddHost: %v", err)
		}
	}
	return reg
}

func TestConnectivityServiceRangeTransitions(t *testing.T) {
	clk := &stepClock{}
	a := NewHost(1, "a", model.RoleSurvivor, 50)
	b := NewHost(2, "b", model.RoleSurvivor, 50)
	b.Position = Vec2{X: 30}

	cs := NewConnectivityService(newRegistry(t, a, b), clk)
	l := &countingConnListener{}
	cs.AddListener(l)

	cs.UpdateConnectivity()
	c := cs.Connection(a, b)
	if c == nil || !c.IsUp() {
		t.Fatalf("hosts in range are not connected")
	}
	if !c.IsInitiator(a) {
		t.Fatalf("initiator = %s, want a", c.Initiator())
	}
	if a.ConnectionTo(b) != c || b.ConnectionTo(a) != c {
		t.Fatalf("connection not registered on both hosts")
	}

	cs.UpdateConnectivity()
	if l.up != 1 {
		t.Fatalf("up events = %d, want 1", l.up)
	}

	b.Position = Vec2{X: 80}
	cs.UpdateConnectivity()
	if c.IsUp() || cs.ActiveConnections() != 0 {
		t.Fatalf("connection still up after leaving range")
	}
	if len(a.Connections()) != 0 || len(b.Connections()) != 0 || l.down != 1 {
		t.Fatalf("down transition not propagated")
	}
}

func TestConnectivityServiceContactPlan(t *testing.T) {
	clk := &stepClock{}
	a := NewHost(1, "a", model.RoleSurvivor, 1)
	b := NewHost(2, "b", model.RoleSurvivor, 1)
	b.Position = Vec2{X: 1e6}

	cs := NewConnectivityService(newRegistry(t, a, b), clk)
	cs.Plan = []ContactWindow{{A: 2, B: 1, Start: 10, End: 20}}

	for _, tc := range []struct {
		now  float64
		want bool
	}{{5, false}, {10, true}, {19.9, true}, {20, false}} {
		clk.now = tc.now
		cs.UpdateConnectivity()
		if got := cs.Connection(a, b) != nil; got != tc.want {
			t.Fatalf("t=%v connected = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestConnectivityServiceInactiveRadio(t *testing.T) {
	clk := &stepClock{}
	a := NewHost(1, "a", model.RoleSurvivor, 50)
	b := NewHost(2, "b", model.RoleSurvivor, 50)
	cs := NewConnectivityService(newRegistry(t, a, b), clk)

	cs.UpdateConnectivity()
	a.SetRadioRange(0)
	cs.UpdateConnectivity()
	if cs.ActiveConnections() != 0 {
		t.Fatalf("host without radio still connected")
	}
}

func TestHostRegistryRejectsDuplicates(t *testing.T) {
	reg := newRegistry(t, NewHost(1, "a", model.RoleSurvivor, 1))
	if err := reg.AddHost(NewHost(1, "b", model.RoleSurvivor, 1)); err == nil {
		t.Fatalf("duplicate address accepted")
	}
	if err := reg.AddHost(NewHost(2, "a", model.RoleSurvivor, 1)); err == nil {
		t.Fatalf("duplicate name accepted")
	}
	if _, err := reg.Host(7); err == nil {
		t.Fatalf("unknown host lookup succeeded")
	}
	if h, err := reg.HostByName("a"); err != nil || h.Address != 1 {
		t.Fatalf("HostByName = %v, %v", h, err)
	}
}
