package lower

import (
	"strings"
	"testing"

	"forgecad/internal/scene"
)

func TestLower_EmptyScene_YieldsPlaceholder(t *testing.T) {
	out := Lower(scene.Empty())
	if !strings.Contains(out, "cube([1, 1, 1]);") {
		t.Fatalf("missing placeholder body:\n%s", out)
	}
	if strings.Contains(out, "union()") {
		t.Fatalf("empty scene should not emit a union:\n%s", out)
	}
}

func TestLower_CenteredCube(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{{
		ID:     "plate",
		Kind:   "primitive.cube",
		Params: map[string]any{"size": []any{20.0, 20.0, 20.0}, "center": true},
	}}}
	out := Lower(s)
	if !strings.Contains(out, "cube([20, 20, 20], center=true);") {
		t.Fatalf("unexpected cube body:\n%s", out)
	}
	if !strings.Contains(out, "translate([0, 0, 0]) rotate([0, 0, 0])") {
		t.Fatalf("identity transform not emitted:\n%s", out)
	}
}

func TestLower_ScalarSizeIsUniform(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{{
		ID: "c", Kind: "primitive.cube", Params: map[string]any{"size": 7.5},
	}}}
	out := Lower(s)
	if !strings.Contains(out, "cube([7.5, 7.5, 7.5]);") {
		t.Fatalf("scalar size not broadcast:\n%s", out)
	}
}

func TestLower_CylinderDefaults(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{{ID: "p", Kind: "primitive.cylinder"}}}
	out := Lower(s)
	if !strings.Contains(out, "cylinder(h=10, d=10, $fn=64);") {
		t.Fatalf("cylinder defaults:\n%s", out)
	}
}

func TestLower_TubeDegeneratesToSolid(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{{
		ID: "t", Kind: "primitive.tube",
		Params: map[string]any{"od": 8.0, "id": 9.0, "h": 5.0},
	}}}
	out := Lower(s)
	if strings.Contains(out, "difference()") {
		t.Fatalf("degenerate tube must be solid:\n%s", out)
	}
	if !strings.Contains(out, "cylinder(h=5, d=8, $fn=64);") {
		t.Fatalf("solid fallback body:\n%s", out)
	}
}

func TestLower_UnknownKind_Placeholder(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{{ID: "x", Kind: "nurbs.teapot"}}}
	out := Lower(s)
	if !strings.Contains(out, "cube([5, 5, 5]);") {
		t.Fatalf("placeholder body missing:\n%s", out)
	}
	if !strings.Contains(out, "unknown kind: nurbs.teapot") {
		t.Fatalf("placeholder annotation missing:\n%s", out)
	}
}

func TestLower_SubtractWrapsInDifference(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{
		{
			ID: "body", Kind: "primitive.cube",
			Ops: []scene.BoolOp{{Op: "subtract", Target: "bore"}},
		},
		{
			ID: "bore", Kind: "primitive.cylinder",
			Transform: &scene.Transform{Translate: &scene.Vec3{0, 0, -1}},
		},
	}}
	out := Lower(s)
	if !strings.Contains(out, "difference() {") {
		t.Fatalf("subtract missing:\n%s", out)
	}
	if !strings.Contains(out, "translate([0, 0, -1])") {
		t.Fatalf("target transform not applied:\n%s", out)
	}
	// The bore exists only inside the difference; a sibling copy in the
	// union would refill the hole.
	if got := strings.Count(out, "cylinder("); got != 1 {
		t.Fatalf("target body emitted %d times, want 1:\n%s", got, out)
	}
	if strings.Contains(out, `part "bore"`) {
		t.Fatalf("consumed target emitted as its own part:\n%s", out)
	}
}

func TestLower_IntersectTargetNotReemitted(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{
		{
			ID: "blank", Kind: "primitive.cube",
			Ops: []scene.BoolOp{{Op: "intersect", Target: "dome"}},
		},
		{ID: "dome", Kind: "primitive.sphere", Params: map[string]any{"d": 25.0}},
	}}
	out := Lower(s)
	if !strings.Contains(out, "intersection() {") {
		t.Fatalf("intersect missing:\n%s", out)
	}
	if got := strings.Count(out, "sphere("); got != 1 {
		t.Fatalf("target body emitted %d times, want 1:\n%s", got, out)
	}
}

func TestLower_OpTargetCycleStaysCompilable(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{
		{ID: "a", Kind: "primitive.cube", Ops: []scene.BoolOp{{Op: "subtract", Target: "b"}}},
		{ID: "b", Kind: "primitive.cube", Ops: []scene.BoolOp{{Op: "subtract", Target: "a"}}},
	}}
	out := Lower(s)
	if !strings.Contains(out, "union() {") {
		t.Fatalf("union missing:\n%s", out)
	}
	if !strings.Contains(out, "cube([1, 1, 1]);") {
		t.Fatalf("empty union not backfilled:\n%s", out)
	}
}

func TestLower_DropsInvalidOps(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{{
		ID: "a", Kind: "primitive.cube",
		Ops: []scene.BoolOp{
			{Op: "explode", Target: "a"},  // unknown op
			{Op: "subtract", Target: "b"}, // missing target
			{Op: "subtract", Target: "a"}, // self-reference
		},
	}}}
	out := Lower(s)
	if strings.Contains(out, "difference()") || strings.Contains(out, "intersection()") {
		t.Fatalf("invalid ops were emitted:\n%s", out)
	}
	if !strings.Contains(out, "cube([10, 10, 10]);") {
		t.Fatalf("base body missing:\n%s", out)
	}
}

func TestLower_Deterministic(t *testing.T) {
	s := scene.Scene{Version: 1, Parts: []scene.Part{
		{ID: "a", Kind: "primitive.cube", Params: map[string]any{"size": []any{3.0, 4.0, 5.0}}},
		{ID: "b", Kind: "primitive.sphere", Params: map[string]any{"d": 6.0}},
	}}
	first := Lower(s)
	for i := 0; i < 5; i++ {
		if got := Lower(s); got != first {
			t.Fatalf("output varied across runs:\n%s\n---\n%s", first, got)
		}
	}
}

func TestNum_TrimsTrailingZeros(t *testing.T) {
	cases := map[float64]string{
		10:      "10",
		7.5:     "7.5",
		0.125:   "0.125",
		3.14159: "3.1416",
	}
	for in, want := range cases {
		if got := num(in); got != want {
			t.Errorf("num(%v) = %q, want %q", in, got, want)
		}
	}
}
