package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Load reads a scene document. A missing file is not an error: it yields the
// empty v1 scene, so a fresh workspace needs no initialization step.
func Load(path string) (Scene, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return Scene{}, fmt.Errorf("reading scene: %w", err)
	}
	var s Scene
	if err := json.Unmarshal(b, &s); err != nil {
		return Scene{}, fmt.Errorf("parsing scene %s: %w", path, err)
	}
	if s.Parts == nil {
		s.Parts = []Part{}
	}
	return s, nil
}

// Save writes the full document, replacing prior content (last-writer-wins).
func Save(path string, s Scene) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating scene directory: %w", err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// Store serializes all mutations of one session's scene file through a
// mutex, giving the session single-writer semantics in-process. Access from
// other processes stays last-writer-wins.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (st *Store) Path() string { return st.path }

func (st *Store) Load() (Scene, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Load(st.path)
}

func (st *Store) Save(s Scene) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Save(st.path, s)
}

// AddPart appends a part and returns the new part count.
func (st *Store) AddPart(p Part) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := Load(st.path)
	if err != nil {
		return 0, err
	}
	if _, ok := s.FindPart(p.ID); ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
	}
	s.Parts = append(s.Parts, p)
	if err := Save(st.path, s); err != nil {
		return 0, err
	}
	return len(s.Parts), nil
}

// SetTransform shallow-merges t into the part's transform: only the fields
// present in t replace the stored ones.
func (st *Store) SetTransform(id string, t Transform) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := Load(st.path)
	if err != nil {
		return err
	}
	i, ok := s.FindPart(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	cur := s.Parts[i].Transform
	if cur == nil {
		cur = &Transform{}
	}
	if t.Translate != nil {
		cur.Translate = t.Translate
	}
	if t.Rotate != nil {
		cur.Rotate = t.Rotate
	}
	s.Parts[i].Transform = cur
	return Save(st.path, s)
}

// SetParams shallow-merges params into the part's parameter map.
func (st *Store) SetParams(id string, params map[string]any) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := Load(st.path)
	if err != nil {
		return err
	}
	i, ok := s.FindPart(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if s.Parts[i].Params == nil {
		s.Parts[i].Params = map[string]any{}
	}
	for k, v := range params {
		s.Parts[i].Params[k] = v
	}
	return Save(st.path, s)
}

// RemovePart deletes the part with the given id if present and reports how
// many parts were removed (0 or 1). Removing a missing id is not an error.
func (st *Store) RemovePart(id string) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := Load(st.path)
	if err != nil {
		return 0, err
	}
	kept := s.Parts[:0:0]
	removed := 0
	for _, p := range s.Parts {
		if p.ID == id {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	if removed == 0 {
		return 0, nil
	}
	if kept == nil {
		kept = []Part{}
	}
	s.Parts = kept
	if err := Save(st.path, s); err != nil {
		return 0, err
	}
	return removed, nil
}

// Apply runs a patch against the stored scene and persists the result. The
// patch is applied to a clone, so a failing patch leaves the file untouched.
func (st *Store) Apply(p Patch) (Scene, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := Load(st.path)
	if err != nil {
		return Scene{}, err
	}
	out, err := ApplyPatch(s, p)
	if err != nil {
		return Scene{}, err
	}
	if err := Save(st.path, out); err != nil {
		return Scene{}, err
	}
	return out, nil
}
