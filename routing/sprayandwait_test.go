package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

func copiesHeld(hosts []*core.Host, id string) (total, holders int) {
	for _, h := range hosts {
		if m := h.Router().Message(id); m != nil {
			total += m.Copies
			holders++
		}
	}
	return total, holders
}

func TestSprayAndWaitBinaryConservesCopies(t *testing.T) {
	w := newWorld(t)
	var hosts []*core.Host
	for i := 0; i < 4; i++ {
		hosts = append(hosts, w.host(model.RoleSurvivor, NewSprayAndWait(8, true)))
	}
	m := w.create(hosts[0], "m", 99, 100)
	require.Equal(t, 8, m.Copies)
	for i := 0; i+1 < len(hosts); i++ {
		w.connect(hosts[i], hosts[i+1])
	}

	for i := 0; i < 12; i++ {
		w.step()
		total, _ := copiesHeld(hosts, "m")
		require.LessOrEqual(t, total, 8, "tick %d", i)
	}
	total, holders := copiesHeld(hosts, "m")
	assert.Equal(t, 8, total)
	assert.Equal(t, 4, holders)
	assert.Equal(t, 4, hosts[0].Router().Message("m").Copies)
	assert.Equal(t, 2, hosts[1].Router().Message("m").Copies)
	assert.Equal(t, 1, hosts[2].Router().Message("m").Copies)
	assert.Equal(t, 1, hosts[3].Router().Message("m").Copies)
}

func TestSprayAndWaitNonBinaryHandsOneCopy(t *testing.T) {
	w := newWorld(t)
	a := w.host(model.RoleSurvivor, NewSprayAndWait(3, false))
	b := w.host(model.RoleSurvivor, NewSprayAndWait(3, false))
	w.create(a, "m", 99, 100)
	w.connect(a, b)

	w.step()
	w.step()
	assert.Equal(t, 2, a.Router().Message("m").Copies)
	assert.Equal(t, 1, b.Router().Message("m").Copies)
}

func TestSprayAndWaitHoldsWithoutCopies(t *testing.T) {
	w := newWorld(t)
	a := w.host(model.RoleSurvivor, NewSprayAndWait(1, true))
	b := w.host(model.RoleSurvivor, NewSprayAndWait(1, true))
	c := w.host(model.RoleSurvivor, NewSprayAndWait(1, true))
	w.create(a, "m", 99, 100)
	w.connect(a, b)
	w.step()
	w.step()
	require.True(t, b.Router().HasMessage("m"))
	assert.Equal(t, 0, a.Router().Message("m").Copies)
	assert.Equal(t, 1, b.Router().Message("m").Copies)

	w.connect(a, c)
	w.step()
	w.step()
	assert.False(t, c.Router().HasMessage("m"))
}
