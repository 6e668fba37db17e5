// Package lower deterministically renders a scene into OpenSCAD source.
// Lowering never fails: malformed or unknown parts degrade to a placeholder
// body so a single bad part cannot abort the whole document.
package lower

import (
	"fmt"
	"strings"

	"forgecad/internal/scene"
)

// bodyFunc emits the untransformed body for one part kind.
type bodyFunc func(p scene.Part) string

// kindTable is the closed set of supported part kinds. Anything else takes
// the placeholder path.
var kindTable = map[string]bodyFunc{
	"primitive.cube":     cubeBody,
	"primitive.cylinder": cylinderBody,
	"primitive.sphere":   sphereBody,
	"primitive.tube":     tubeBody,
}

const placeholderBody = "cube([5, 5, 5]);"

// Lower renders the scene, in part order, as a single top-level union. The
// output is always a compilable document: an empty scene yields a small
// placeholder body rather than an empty union.
func Lower(s scene.Scene) string {
	var b strings.Builder
	b.WriteString("// generated by forgecad; do not edit\n")
	fmt.Fprintf(&b, "// scene version %d, %d part(s)\n\n", s.Version, len(s.Parts))

	if len(s.Parts) == 0 {
		b.WriteString("// empty scene placeholder\n")
		b.WriteString("cube([1, 1, 1]);\n")
		return b.String()
	}

	consumed := consumedTargets(s)

	b.WriteString("union() {\n")
	emitted := 0
	for _, p := range s.Parts {
		if consumed[p.ID] {
			continue
		}
		emitPart(&b, s, p)
		emitted++
	}
	if emitted == 0 {
		// Every part is an op target (a reference cycle); keep the document
		// compilable.
		b.WriteString("  cube([1, 1, 1]); /* unresolvable op targets */\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// consumedTargets reports the part ids drawn into another part's boolean
// expression. A consumed part has no sibling body of its own: re-emitting a
// subtract target at the top level would refill the hole it cut.
func consumedTargets(s scene.Scene) map[string]bool {
	out := map[string]bool{}
	for _, p := range s.Parts {
		for _, op := range validOps(s, p) {
			out[op.Target] = true
		}
	}
	return out
}

func emitPart(b *strings.Builder, s scene.Scene, p scene.Part) {
	fmt.Fprintf(b, "  // part %q (%s)\n", p.ID, p.Kind)

	open := map[string]string{
		"union":     "union()",
		"subtract":  "difference()",
		"intersect": "intersection()",
	}

	// Ops nest left to right: each op wraps the expression built so far.
	expr := transformed(p.Transform, partBody(p))
	for _, op := range validOps(s, p) {
		ti, _ := s.FindPart(op.Target)
		tp := s.Parts[ti]
		expr = fmt.Sprintf("%s { %s %s }", open[op.Op], expr, transformed(tp.Transform, partBody(tp)))
	}
	b.WriteString("  " + expr + "\n")
}

// validOps filters a part's boolean ops down to known op names whose target
// part exists. Invalid ops are dropped, matching the lowering's
// never-fail contract.
func validOps(s scene.Scene, p scene.Part) []scene.BoolOp {
	var out []scene.BoolOp
	for _, op := range p.Ops {
		switch op.Op {
		case "union", "subtract", "intersect":
		default:
			continue
		}
		if _, ok := s.FindPart(op.Target); !ok {
			continue
		}
		if op.Target == p.ID {
			continue
		}
		out = append(out, op)
	}
	return out
}

func partBody(p scene.Part) string {
	if fn, ok := kindTable[p.Kind]; ok {
		return fn(p)
	}
	// Block comment so the annotation stays safe inside composed expressions.
	return placeholderBody + fmt.Sprintf(" /* unknown kind: %s */", p.Kind)
}

// transformed wraps a body in translate-then-rotate, in that order, with
// rotation about the part's local origin.
func transformed(t *scene.Transform, body string) string {
	tr := scene.Vec3{}
	rot := scene.Vec3{}
	if t != nil {
		if t.Translate != nil {
			tr = *t.Translate
		}
		if t.Rotate != nil {
			rot = *t.Rotate
		}
	}
	return fmt.Sprintf("translate(%s) rotate(%s) %s", vec(tr), vec(rot), body)
}

func cubeBody(p scene.Part) string {
	size := vec3Param(p.Params, "size", scene.Vec3{10, 10, 10})
	if boolParam(p.Params, "center", false) {
		return fmt.Sprintf("cube(%s, center=true);", vec(size))
	}
	return fmt.Sprintf("cube(%s);", vec(size))
}

func cylinderBody(p scene.Part) string {
	d := floatParam(p.Params, "d", 10)
	h := floatParam(p.Params, "h", 10)
	if boolParam(p.Params, "center", false) {
		return fmt.Sprintf("cylinder(h=%s, d=%s, center=true, $fn=64);", num(h), num(d))
	}
	return fmt.Sprintf("cylinder(h=%s, d=%s, $fn=64);", num(h), num(d))
}

func sphereBody(p scene.Part) string {
	d := floatParam(p.Params, "d", 10)
	return fmt.Sprintf("sphere(d=%s, $fn=64);", num(d))
}

func tubeBody(p scene.Part) string {
	od := floatParam(p.Params, "od", 12)
	id := floatParam(p.Params, "id", 8)
	h := floatParam(p.Params, "h", 10)
	if id >= od {
		// Degenerate wall; fall back to a solid cylinder.
		return fmt.Sprintf("cylinder(h=%s, d=%s, $fn=64);", num(h), num(od))
	}
	return fmt.Sprintf(
		"difference() { cylinder(h=%s, d=%s, $fn=64); translate([0, 0, -1]) cylinder(h=%s, d=%s, $fn=64); }",
		num(h), num(od), num(h+2), num(id))
}

func vec(v scene.Vec3) string {
	return fmt.Sprintf("[%s, %s, %s]", num(v[0]), num(v[1]), num(v[2]))
}

func num(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", f), "0"), ".")
}

func floatParam(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return def
	}
}

func boolParam(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func vec3Param(params map[string]any, key string, def scene.Vec3) scene.Vec3 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case []any:
		if len(x) != 3 {
			return def
		}
		out := def
		for i, it := range x {
			f, ok := it.(float64)
			if !ok {
				return def
			}
			out[i] = f
		}
		return out
	case []float64:
		if len(x) != 3 {
			return def
		}
		return scene.Vec3{x[0], x[1], x[2]}
	case float64:
		// Scalar size means a uniform body.
		return scene.Vec3{x, x, x}
	default:
		return def
	}
}
