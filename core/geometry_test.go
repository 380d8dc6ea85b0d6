package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/dtn-simulator/model"
)

func TestVec2Distance(t *testing.T) {
	a := Vec2{X: 0, Y: 0}
	b := Vec2{X: 3, Y: 4}
	if got := a.DistanceTo(b); math.Abs(got-5) > 1e-12 {
		t.Fatalf("DistanceTo = %v, want 5", got)
	}
	if got := a.Lerp(b, 0.5); got != (Vec2{X: 1.5, Y: 2}) {
		t.Fatalf("Lerp = %+v, want (1.5, 2)", got)
	}
}

func TestInRangeUsesShorterRadio(t *testing.T) {
	a := NewHost(0, "a", model.RoleSurvivor, 10)
	b := NewHost(1, "b", model.RoleSurvivor, 4)
	b.Position = Vec2{X: 5}
	if inRange(a, b) {
		t.Fatalf("hosts 5m apart with a 4m radio should not be in range")
	}
	b.SetRadioRange(5)
	if !inRange(a, b) {
		t.Fatalf("hosts should be in range at exactly the shorter range")
	}
	a.SetRadioRange(0)
	if inRange(a, b) {
		t.Fatalf("radio off must break range")
	}
}
