// Package scene holds the Scene IR: a versioned document describing an
// assembly as an ordered list of parametrized, transformed parts.
package scene

import "errors"

var (
	// ErrDuplicateID is returned when adding a part whose id already exists.
	ErrDuplicateID = errors.New("duplicate part id")
	// ErrNotFound is returned when a mutation targets a missing part id.
	ErrNotFound = errors.New("part not found")
	// ErrPatchPath is returned when a patch path cannot be resolved.
	ErrPatchPath = errors.New("patch path error")
)

type Vec3 [3]float64

// Transform positions a part. Lowering applies translate first, then rotate
// about the part's local origin. Units: mm and degrees.
type Transform struct {
	Translate *Vec3 `json:"translate,omitempty"`
	Rotate    *Vec3 `json:"rotate,omitempty"`
}

// BoolOp combines this part with an earlier part's body.
type BoolOp struct {
	Op     string `json:"op"` // union | subtract | intersect
	Target string `json:"target"`
}

type Part struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Params    map[string]any `json:"params,omitempty"`
	Transform *Transform     `json:"transform,omitempty"`
	Anchors   map[string]any `json:"anchors,omitempty"`
	Ops       []BoolOp       `json:"ops,omitempty"`
}

type Scene struct {
	Version     int              `json:"version"`
	Parts       []Part           `json:"parts"`
	Constraints []map[string]any `json:"constraints,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// Empty returns the document a fresh workspace starts from.
func Empty() Scene {
	return Scene{Version: 1, Parts: []Part{}}
}

func (s Scene) FindPart(id string) (int, bool) {
	for i := range s.Parts {
		if s.Parts[i].ID == id {
			return i, true
		}
	}
	return -1, false
}
