package core

import (
	"testing"

	"github.com/signalsfoundry/dtn-simulator/model"
)

type allowNone struct{}

func (allowNone) Neighbors(int, float64) ([]int, bool) { return nil, true }

func TestRouterDeliversAndRejectsDuplicate(t *testing.T) {
	clk := &stepClock{}
	rec := &recordingListener{}
	cfg := RouterConfig{BufferSize: 1000}
	a := newTestHost(t, clk, 1, cfg, WithMessageListeners(rec))
	b := newTestHost(t, clk, 2, cfg, WithMessageListeners(rec))
	connect(clk, a, b, 100)

	m := model.NewMessage("m1", 1, 2, 100, 0, 0)
	if !a.Router().CreateMessage(m) {
		t.Fatalf("CreateMessage failed")
	}
	a.Update()
	if got := a.Router().SendingCount(); got != 1 {
		t.Fatalf("SendingCount = %d, want 1", got)
	}
	if !b.Router().IsReceiving() {
		t.Fatalf("receiver has no incoming transfer")
	}

	clk.now = 1
	a.Update()
	if len(rec.delivered) != 1 || rec.delivered[0] != "m1" {
		t.Fatalf("delivered = %v, want [m1]", rec.delivered)
	}
	if !b.Router().IsDelivered("m1") {
		t.Fatalf("receiver did not record delivery")
	}
	if b.Router().HasMessage("m1") {
		t.Fatalf("delivered message should not be buffered at its sink")
	}

	if res := b.Router().Receive(m.Replicate(), a); res != Duplicate {
		t.Fatalf("second Receive = %v, want duplicate", res)
	}
}

func TestRouterTTLSweepReportsDrop(t *testing.T) {
	clk := &stepClock{}
	rec := &recordingListener{}
	a := newTestHost(t, clk, 1, RouterConfig{BufferSize: 1000}, WithMessageListeners(rec))

	a.Router().CreateMessage(model.NewMessage("m1", 1, 99, 10, 0, 100))

	clk.now = 101
	a.Update()

	if a.Router().HasMessage("m1") {
		t.Fatalf("expired message still buffered")
	}
	if len(rec.deleted) != 1 || !rec.deleted[0].dropped {
		t.Fatalf("deleted = %+v, want one drop", rec.deleted)
	}
	if len(rec.delivered) != 0 {
		t.Fatalf("expired message reported delivered")
	}
}

func TestRouterSingleTransferInFlight(t *testing.T) {
	clk := &stepClock{}
	cfg := RouterConfig{BufferSize: 1000}
	a := newTestHost(t, clk, 1, cfg)
	b := newTestHost(t, clk, 2, cfg)
	c := newTestHost(t, clk, 3, cfg)
	connect(clk, a, b, 10)
	connect(clk, a, c, 10)

	a.Router().CreateMessage(model.NewMessage("m1", 1, 99, 100, 0, 0))
	a.Router().CreateMessage(model.NewMessage("m2", 1, 99, 100, 0, 0))

	a.Update()
	a.Update()
	if got := a.Router().SendingCount(); got != 1 {
		t.Fatalf("SendingCount = %d, want 1", got)
	}
}

func TestRouterCreatesResponseOnFirstDelivery(t *testing.T) {
	clk := &stepClock{}
	cfg := RouterConfig{BufferSize: 1000}
	a := newTestHost(t, clk, 1, cfg)
	b := newTestHost(t, clk, 2, cfg)
	connect(clk, a, b, 0)

	m := model.NewMessage("req", 1, 2, 100, 0, 0)
	m.ResponseSize = 50
	a.Router().CreateMessage(m)

	a.Update()
	a.Update()

	res := b.Router().Message(model.ResponsePrefix + "req")
	if res == nil {
		t.Fatalf("response not created at sink")
	}
	if res.RequestID != "req" || res.To != 1 || res.Size != 50 {
		t.Fatalf("response = %+v", res)
	}
}

func TestRouterDeleteDeliveredOnDuplicate(t *testing.T) {
	clk := &stepClock{}
	cfg := RouterConfig{BufferSize: 1000, DeleteDelivered: true}
	a := newTestHost(t, clk, 1, cfg)
	b := newTestHost(t, clk, 2, cfg)
	conn := connect(clk, a, b, 0)

	m := model.NewMessage("m1", 1, 2, 10, 0, 0)
	a.Router().CreateMessage(m)
	a.Update()
	a.Update()
	if !b.Router().IsDelivered("m1") {
		t.Fatalf("message not delivered")
	}

	if res := a.Router().StartTransfer(m, conn); res != Duplicate {
		t.Fatalf("StartTransfer = %v, want duplicate", res)
	}
	if a.Router().HasMessage("m1") {
		t.Fatalf("sender kept a message its peer already consumed")
	}
}

func TestRouterBusyWhileConnectionOccupied(t *testing.T) {
	clk := &stepClock{}
	cfg := RouterConfig{BufferSize: 1000}
	a := newTestHost(t, clk, 1, cfg)
	b := newTestHost(t, clk, 2, cfg)
	connect(clk, a, b, 1)

	a.Router().CreateMessage(model.NewMessage("m1", 1, 2, 100, 0, 0))
	a.Update()

	other := model.NewMessage("m2", 1, 2, 10, 0, 0)
	if res := b.Router().Receive(other, a); res != Busy {
		t.Fatalf("Receive = %v, want busy", res)
	}
	if !Busy.TryLater() || Duplicate.TryLater() {
		t.Fatalf("only busy should ask the sender to try later")
	}
}

func TestRouterAbortsWhenConnectionDrops(t *testing.T) {
	clk := &stepClock{}
	rec := &recordingListener{}
	cfg := RouterConfig{BufferSize: 1000}
	a := newTestHost(t, clk, 1, cfg, WithMessageListeners(rec))
	b := newTestHost(t, clk, 2, cfg, WithMessageListeners(rec))
	conn := connect(clk, a, b, 1)

	a.Router().CreateMessage(model.NewMessage("m1", 1, 2, 100, 0, 0))
	a.Update()

	conn.SetUp(false)
	a.ConnectionDown(conn)
	b.ConnectionDown(conn)
	clk.now = 10
	a.Update()

	if len(rec.aborted) != 1 {
		t.Fatalf("aborted = %v, want one abort", rec.aborted)
	}
	if b.Router().IsReceiving() {
		t.Fatalf("receiver still holds the aborted transfer")
	}
	if a.Router().SendingCount() != 0 {
		t.Fatalf("sender still sending")
	}
}

func TestRouterDeniedAfterFailure(t *testing.T) {
	clk := &stepClock{}
	cfg := RouterConfig{
		BufferSize: 1000,
		Energy:     &EnergyConfig{Initial: []float64{100}, ScanInterval: 30},
	}
	a := newTestHost(t, clk, 1, cfg)
	b := newTestHost(t, clk, 2, cfg)
	b.Router().ScheduleFailure(0)
	b.Update()

	if b.IsRadioActive() {
		t.Fatalf("failed host still has an active radio")
	}
	if res := b.Router().Receive(model.NewMessage("m1", 1, 2, 10, 0, 0), a); res != Denied {
		t.Fatalf("Receive = %v, want denied", res)
	}
}

func TestRouterDeniedAfterFailureWithoutEnergy(t *testing.T) {
	clk := &stepClock{}
	cfg := RouterConfig{BufferSize: 1000}
	a := newTestHost(t, clk, 1, cfg)
	b := newTestHost(t, clk, 2, cfg)
	b.Router().ScheduleFailure(0)
	b.Update()

	if b.IsRadioActive() {
		t.Fatalf("failed host still has an active radio")
	}
	if res := b.Router().Receive(model.NewMessage("m1", 1, 2, 10, 0, 0), a); res != Denied {
		t.Fatalf("Receive = %v, want denied", res)
	}
}

func TestRouterNeighborFilterDeniesSurvivors(t *testing.T) {
	clk := &stepClock{}
	cfg := RouterConfig{BufferSize: 1000, NeighborFilter: allowNone{}}
	a := newTestHost(t, clk, 1, cfg)
	b := newTestHost(t, clk, 2, cfg)
	conn := connect(clk, a, b, 0)

	m := model.NewMessage("m1", 1, 2, 10, 0, 0)
	a.Router().CreateMessage(m)
	a.Update()

	if a.Router().SendingCount() != 0 {
		t.Fatalf("transfer started to a filtered neighbor")
	}
	if res := a.Router().StartTransfer(m, conn); res != Denied {
		t.Fatalf("StartTransfer = %v, want denied", res)
	}

	b.Role = model.RoleResponder
	if res := a.Router().StartTransfer(m, conn); res != Accepted {
		t.Fatalf("StartTransfer to responder = %v, want accepted", res)
	}
}

func TestRoleSinkMatchesRoleForRequestsOnly(t *testing.T) {
	sink := RoleSink(model.RoleResponder)
	responder := NewHost(5, "", model.RoleResponder, 10)

	req := model.NewMessage("m1", 1, model.AnyDestination, 10, 0, 0)
	if !sink(req, responder) {
		t.Fatalf("responder should accept a request")
	}
	res := req.Response(9, 1)
	if sink(res, responder) {
		t.Fatalf("responder should not accept a response for another host")
	}
}
