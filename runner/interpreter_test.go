package runner

import (
	"context"
	"testing"

	"github.com/jianyangg/show-and-tell/agent"
	"github.com/jianyangg/show-and-tell/browser"
)

func TestDenormalizeBounds(t *testing.T) {
	for _, x := range []float64{0, 500, 999} {
		for _, y := range []float64{0, 450, 999} {
			px, py := denormalize(x, y)
			if px < 0 || px > float64(Viewport.Width-1) {
				t.Errorf("denormalize(%v,_) px=%v out of [0,%d]", x, px, Viewport.Width-1)
			}
			if py < 0 || py > float64(Viewport.Height-1) {
				t.Errorf("denormalize(_,%v) py=%v out of [0,%d]", y, py, Viewport.Height-1)
			}
		}
	}
}

func TestDenormalizeExtremesHitInclusiveEdges(t *testing.T) {
	px, py := denormalize(0, 0)
	if px != 0 || py != 0 {
		t.Errorf("denormalize(0,0) = (%v,%v), want (0,0)", px, py)
	}
	px, py = denormalize(999, 999)
	if px != float64(Viewport.Width-1) || py != float64(Viewport.Height-1) {
		t.Errorf("denormalize(999,999) = (%v,%v), want (%d,%d)", px, py, Viewport.Width-1, Viewport.Height-1)
	}
}

func TestClampNorm(t *testing.T) {
	cases := map[float64]float64{-50: 0, 0: 0, 500: 500, 999: 999, 1500: 999}
	for in, want := range cases {
		if got := clampNorm(in); got != want {
			t.Errorf("clampNorm(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestNormCoordsRejectsMissingArgs(t *testing.T) {
	if _, _, err := normCoords(map[string]any{"x": 1.0}); err == nil {
		t.Error("normCoords should fail when y is missing")
	}
	if _, _, err := normCoords(map[string]any{}); err == nil {
		t.Error("normCoords should fail when both are missing")
	}
}

func TestNormCoordsClampsOutOfRange(t *testing.T) {
	x, y, err := normCoords(map[string]any{"x": -20.0, "y": 5000.0})
	if err != nil {
		t.Fatalf("normCoords returned error: %v", err)
	}
	if x != 0 || y != 999 {
		t.Errorf("normCoords = (%v,%v), want (0,999)", x, y)
	}
}

func TestClampMagnitudeDefaultsAndClamps(t *testing.T) {
	if got := clampMagnitude(nil); got != 800 {
		t.Errorf("clampMagnitude(nil) = %d, want default 800", got)
	}
	if got := clampMagnitude(0.0); got != 800 {
		t.Errorf("clampMagnitude(0) = %d, want default 800", got)
	}
	if got := clampMagnitude(5000.0); got != 2000 {
		t.Errorf("clampMagnitude(5000) = %d, want 2000", got)
	}
	if got := clampMagnitude(-5000.0); got != -2000 {
		t.Errorf("clampMagnitude(-5000) = %d, want -2000", got)
	}
	if got := clampMagnitude(300.0); got != 300 {
		t.Errorf("clampMagnitude(300) = %d, want 300", got)
	}
}

func TestScrollDeltaDirections(t *testing.T) {
	cases := []struct {
		dir      string
		dx, dy   float64
	}{
		{"up", 0, -800}, {"down", 0, 800}, {"left", -800, 0}, {"right", 800, 0}, {"", 0, 800}, {"sideways", 0, 800},
	}
	for _, c := range cases {
		dx, dy := scrollDelta(c.dir, 800)
		if dx != c.dx || dy != c.dy {
			t.Errorf("scrollDelta(%q,800) = (%v,%v), want (%v,%v)", c.dir, dx, dy, c.dx, c.dy)
		}
	}
}

func TestApplyKeyCombinationRejectsEmptyKeys(t *testing.T) {
	interp := NewInterpreter(&browser.Browser{}, "")
	_, _, err := interp.Apply(context.Background(), agent.Action{Name: "key_combination", Args: map[string]any{}})
	if err == nil {
		t.Fatal("expected ActionError for missing keys")
	}
}

func TestApplyNavigateRequiresURL(t *testing.T) {
	interp := NewInterpreter(&browser.Browser{}, "")
	_, _, err := interp.Apply(context.Background(), agent.Action{Name: "navigate", Args: map[string]any{}})
	if err == nil {
		t.Fatal("expected ActionError for missing url")
	}
}

func TestApplyUnsupportedAction(t *testing.T) {
	interp := NewInterpreter(&browser.Browser{}, "")
	_, _, err := interp.Apply(context.Background(), agent.Action{Name: "fly_away"})
	if err == nil {
		t.Fatal("expected ActionError for unsupported action")
	}
}

func TestApplyDragAndDropRequiresDestination(t *testing.T) {
	interp := NewInterpreter(&browser.Browser{}, "")
	_, _, err := interp.Apply(context.Background(), agent.Action{
		Name: "drag_and_drop",
		Args: map[string]any{"x": 10.0, "y": 10.0},
	})
	if err == nil {
		t.Fatal("expected ActionError for missing destination coordinates")
	}
}

func TestCursorHintNormalizes(t *testing.T) {
	hint := cursorHint(999, 0)
	if hint.X != 1.0 || hint.Y != 0.0 {
		t.Errorf("cursorHint(999,0) = %+v, want X=1 Y=0", hint)
	}
}
