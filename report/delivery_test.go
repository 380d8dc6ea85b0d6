package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

type fakeClock struct{ now float64 }

func (c *fakeClock) Seconds() float64 { return c.now }

func TestDeliveryReportSummary(t *testing.T) {
	clock := &fakeClock{}
	r := NewDeliveryReport(clock, 10)
	a := core.NewHost(0, "a", model.RoleSurvivor, 10)
	b := core.NewHost(1, "b", model.RoleSurvivor, 10)
	s := core.NewHost(2, "s", model.RoleSink, 10)

	clock.now = 5
	warm := model.NewMessage("warm", 0, 2, 10, 5, 0)
	r.NewMessage(warm)

	clock.now = 10
	m1 := model.NewMessage("m1", 0, 2, 10, 10, 0)
	m1.ResponseSize = 50
	m2 := model.NewMessage("m2", 0, 2, 10, 10, 0)
	r.NewMessage(m1)
	r.NewMessage(m2)

	clock.now = 20
	r.MessageTransferStarted(m1, a, b)
	m1.AddHop(1)
	r.MessageTransferred(m1, a, b, false)

	clock.now = 30
	m1.AddHop(2)
	r.MessageTransferred(m1, b, s, true)
	res := m1.Response(2, 30)
	r.NewMessage(res)

	clock.now = 50
	res.AddHop(0)
	r.MessageTransferred(res, s, a, true)

	clock.now = 60
	r.MessageTransferAborted(m2, a, b)
	r.MessageDeleted(m2, a, true)
	r.MessageDeleted(warm, a, false)
	r.MessageTransferred(warm, a, s, true)

	got := r.Summary()
	assert.Equal(t, 60.0, got.SimTime)
	assert.Equal(t, 3, got.Created)
	assert.Equal(t, 1, got.Started)
	assert.Equal(t, 3, got.Relayed)
	assert.Equal(t, 2, got.Delivered)
	assert.Equal(t, 1, got.Aborted)
	assert.Equal(t, 1, got.Dropped)
	assert.Equal(t, 0, got.Removed)
	assert.Equal(t, 1, got.ResponseRequests)
	assert.Equal(t, 1, got.ResponsesDelivered)

	assert.InDelta(t, 2.0/3.0, got.DeliveryProb, 1e-9)
	assert.InDelta(t, 0.5, got.OverheadRatio, 1e-9)
	assert.InDelta(t, 1.0, got.ResponseProb, 1e-9)
	assert.InDelta(t, 20.0, got.LatencyAvg, 1e-9)
	assert.InDelta(t, 20.0, got.LatencyMedian, 1e-9)
	assert.InDelta(t, 1.5, got.HopCountAvg, 1e-9)
	assert.Equal(t, 2, got.HopCountMedian)
	assert.InDelta(t, 40.0, got.RTTAvg, 1e-9)
	assert.InDelta(t, 50.0, got.BufferTimeAvg, 1e-9)
	assert.Empty(t, got.Timeline)
}

func TestDeliveryReportEmptyRatios(t *testing.T) {
	r := NewDeliveryReport(&fakeClock{}, 0)
	got := r.Summary()
	assert.Zero(t, got.DeliveryProb)
	assert.Zero(t, got.OverheadRatio)
	assert.Zero(t, got.LatencyMedian)
}

func TestDeliveryReportTimeline(t *testing.T) {
	clock := &fakeClock{}
	r := NewDeliveryReport(clock, 0)
	r.SetSampleInterval(10)

	clock.now = 5
	r.NewMessage(model.NewMessage("a", 0, 1, 10, 5, 0))
	clock.now = 15
	r.NewMessage(model.NewMessage("b", 0, 1, 10, 15, 0))

	tl := r.Summary().Timeline
	require.Len(t, tl, 1)
	assert.Equal(t, 15.0, tl[0].Time)
	assert.Equal(t, 1, tl[0].Created)
	assert.Zero(t, tl[0].CumulativeProb)
}
