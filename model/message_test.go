package model

import (
	"math"
	"testing"
)

func TestNewMessageStartsHopListAtOrigin(t *testing.T) {
	m := NewMessage("M1", 3, 7, 100, 10, 50)
	if len(m.Hops) != 1 || m.Hops[0] != 3 {
		t.Fatalf("Hops = %v, want [3]", m.Hops)
	}
	if m.HopCount() != 0 {
		t.Fatalf("HopCount() = %d, want 0", m.HopCount())
	}
	if got := m.RemainingTTL(40); got != 20 {
		t.Fatalf("RemainingTTL(40) = %v, want 20", got)
	}
	if m.Expired(59) {
		t.Fatalf("message expired before creation+ttl")
	}
	if !m.Expired(60) {
		t.Fatalf("message should be expired when remaining ttl is 0")
	}
}

func TestNewMessageWithoutTTLNeverExpires(t *testing.T) {
	m := NewMessage("M1", 0, 1, 1, 0, 0)
	if !math.IsInf(m.TTL, 1) {
		t.Fatalf("TTL = %v, want +Inf", m.TTL)
	}
	if m.Expired(1e12) {
		t.Fatalf("infinite ttl message expired")
	}
}

func TestReplicateDoesNotShareHops(t *testing.T) {
	m := NewMessage("M1", 0, 1, 1, 0, 10)
	c := m.Replicate()
	c.AddHop(5)
	if m.Visited(5) {
		t.Fatalf("replica hop leaked into original: %v", m.Hops)
	}
	if !c.Visited(5) || c.HopCount() != 1 {
		t.Fatalf("replica hops = %v", c.Hops)
	}
}

func TestResponseAddressesOrigin(t *testing.T) {
	m := NewMessage("M9", 2, 4, 10, 0, 100)
	m.ResponseSize = 25
	r := m.Response(4, 30)
	if r.ID != "R_M9" || r.From != 4 || r.To != 2 || r.Size != 25 {
		t.Fatalf("unexpected response %+v", r)
	}
	if !r.IsResponse() || r.RequestID != "M9" {
		t.Fatalf("response back-reference missing: %+v", r)
	}
}

func TestParseRoleAliases(t *testing.T) {
	cases := map[string]Role{
		"n":               RoleSurvivor,
		"survivor":        RoleSurvivor,
		"CD":              RoleResponder,
		"ADB":             RoleResponder,
		"control_station": RoleSink,
		"Sink":            RoleSink,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Fatalf("ParseRole(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseRole("pilot"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
