package scene

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testScene() Scene {
	return Scene{
		Version: 1,
		Parts: []Part{
			{ID: "base", Kind: "primitive.cube", Params: map[string]any{"size": []any{20.0, 20.0, 20.0}}},
			{ID: "post", Kind: "primitive.cylinder", Transform: &Transform{Translate: &Vec3{0, 0, 20}}},
		},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	want := testScene()
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile_ReturnsEmptyScene(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("version = %d, want 1", got.Version)
	}
	if got.Parts == nil || len(got.Parts) != 0 {
		t.Fatalf("parts = %#v, want empty slice", got.Parts)
	}
}

func TestStore_AddPart_IncrementsPersistedCount(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "scene.json"))
	if err := st.Save(testScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	count, err := st.AddPart(Part{ID: "lid", Kind: "primitive.cube"})
	if err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	s, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Parts) != 3 {
		t.Fatalf("persisted parts = %d, want 3", len(s.Parts))
	}
	if s.Parts[2].ID != "lid" {
		t.Fatalf("last part = %q, want lid", s.Parts[2].ID)
	}
}

func TestStore_AddPart_DuplicateID_LeavesFileUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	st := NewStore(path)
	if err := st.Save(testScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.ReadFile(path)

	_, err := st.AddPart(Part{ID: "base", Kind: "primitive.sphere"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatalf("scene file changed on failed add")
	}
}

func TestStore_SetTransform_NotFound_LeavesFileUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	st := NewStore(path)
	if err := st.Save(testScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.ReadFile(path)

	err := st.SetTransform("ghost", Transform{Translate: &Vec3{1, 2, 3}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatalf("scene file changed on failed transform")
	}
}

func TestStore_SetTransform_ShallowMerge(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "scene.json"))
	if err := st.Save(testScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Rotate only: the existing translate on "post" must survive.
	if err := st.SetTransform("post", Transform{Rotate: &Vec3{0, 90, 0}}); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
	s, _ := st.Load()
	i, _ := s.FindPart("post")
	tr := s.Parts[i].Transform
	if tr.Translate == nil || (*tr.Translate)[2] != 20 {
		t.Fatalf("translate lost on merge: %#v", tr)
	}
	if tr.Rotate == nil || (*tr.Rotate)[1] != 90 {
		t.Fatalf("rotate not applied: %#v", tr)
	}
}

func TestStore_SetParams_MergesIntoExisting(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "scene.json"))
	if err := st.Save(testScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := st.SetParams("base", map[string]any{"center": true}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	s, _ := st.Load()
	i, _ := s.FindPart("base")
	if _, ok := s.Parts[i].Params["size"]; !ok {
		t.Fatalf("existing param dropped on merge")
	}
	if v, _ := s.Parts[i].Params["center"].(bool); !v {
		t.Fatalf("merged param missing")
	}
}

func TestStore_SetParams_NotFound(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "scene.json"))
	if err := st.Save(testScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.SetParams("ghost", map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_RemovePart_Counts(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "scene.json"))
	if err := st.Save(testScene()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := st.RemovePart("base")
	if err != nil {
		t.Fatalf("RemovePart: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	removed, err = st.RemovePart("base")
	if err != nil {
		t.Fatalf("RemovePart second: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}

	s, _ := st.Load()
	if len(s.Parts) != 1 || s.Parts[0].ID != "post" {
		t.Fatalf("unexpected parts after remove: %#v", s.Parts)
	}
}
