package scene

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type PatchOp struct {
	Op    string `json:"op"` // add | replace | remove
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

type Patch []PatchOp

// ApplyPatch applies ops in order against a deep copy of s and returns the
// result; s itself is never modified. Paths are slash-delimited pointers into
// the scene document. On arrays, segment "-" means append (add only), and
// "add" at an existing index overwrites that element like "replace" does;
// this dialect has no insert-before, unlike RFC 6902.
func ApplyPatch(s Scene, patch Patch) (Scene, error) {
	tree, err := toTree(s)
	if err != nil {
		return Scene{}, err
	}
	for i, op := range patch {
		tree, err = applyOne(tree, op)
		if err != nil {
			return Scene{}, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return fromTree(tree)
}

func applyOne(root any, op PatchOp) (any, error) {
	segs := splitPath(op.Path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrPatchPath)
	}
	switch op.Op {
	case "add", "replace", "remove":
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrPatchPath, op.Op)
	}

	parent, err := walk(root, segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}
	last := segs[len(segs)-1]

	switch c := parent.(type) {
	case map[string]any:
		switch op.Op {
		case "add", "replace":
			c[last] = op.Value
		case "remove":
			if _, ok := c[last]; !ok {
				return nil, fmt.Errorf("%w: no key %q", ErrPatchPath, last)
			}
			delete(c, last)
		}
		return root, nil
	case []any:
		if last == "-" {
			if op.Op != "add" {
				return nil, fmt.Errorf("%w: %q only valid for add", ErrPatchPath, "-")
			}
			appended := append(c, op.Value)
			return replaceChild(root, segs[:len(segs)-1], appended)
		}
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("%w: bad index %q", ErrPatchPath, last)
		}
		switch op.Op {
		case "add", "replace":
			c[idx] = op.Value
			return root, nil
		case "remove":
			trimmed := append(append([]any{}, c[:idx]...), c[idx+1:]...)
			return replaceChild(root, segs[:len(segs)-1], trimmed)
		}
	}
	return nil, fmt.Errorf("%w: segment %q addresses a scalar", ErrPatchPath, last)
}

// walk resolves all but the last path segment. Every intermediate segment
// must already exist.
func walk(node any, segs []string) (any, error) {
	for _, seg := range segs {
		switch c := node.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, fmt.Errorf("%w: undefined segment %q", ErrPatchPath, seg)
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, fmt.Errorf("%w: bad index %q", ErrPatchPath, seg)
			}
			node = c[idx]
		default:
			return nil, fmt.Errorf("%w: segment %q addresses a scalar", ErrPatchPath, seg)
		}
	}
	return node, nil
}

// replaceChild rewrites the container at segs with v. Needed because slice
// identity changes on append/remove.
func replaceChild(root any, segs []string, v any) (any, error) {
	if len(segs) == 0 {
		return v, nil
	}
	parent, err := walk(root, segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}
	last := segs[len(segs)-1]
	switch c := parent.(type) {
	case map[string]any:
		c[last] = v
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("%w: bad index %q", ErrPatchPath, last)
		}
		c[idx] = v
	default:
		return nil, fmt.Errorf("%w: segment %q addresses a scalar", ErrPatchPath, last)
	}
	return root, nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// toTree deep-copies the scene into a generic JSON tree, which is what the
// path walker operates on.
func toTree(s Scene) (any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func fromTree(tree any) (Scene, error) {
	b, err := json.Marshal(tree)
	if err != nil {
		return Scene{}, err
	}
	var s Scene
	if err := json.Unmarshal(b, &s); err != nil {
		return Scene{}, fmt.Errorf("%w: patched document no longer a scene: %v", ErrPatchPath, err)
	}
	if s.Parts == nil {
		s.Parts = []Part{}
	}
	return s, nil
}
