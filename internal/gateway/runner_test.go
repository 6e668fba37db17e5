package gateway

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// writeScript drops an executable shell stub into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

// okCompiler copies behavior of a compiler that honors -o and succeeds.
const okCompilerBody = `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
echo "rendering"
echo "compiled" > "$out"
`

const failCompilerBody = `echo "ERROR: syntax error in line 3" >&2
exit 1
`

func TestCompile_Success(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "fakescad", okCompilerBody)
	src := filepath.Join(dir, "model.scad")
	if err := os.WriteFile(src, []byte("cube([1,1,1]);\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "model.stl")

	r := NewRunner(bin, "", nil)
	res := r.Compile(context.Background(), src, out, nil)
	if !res.OK() {
		t.Fatalf("compile failed: %+v", res)
	}
	if res.StatusCode != 0 || !res.OutputExists {
		t.Fatalf("res = %+v", res)
	}
	if res.OutputPath != out {
		t.Fatalf("output path = %q", res.OutputPath)
	}
}

func TestCompile_FailureIsDataNotError(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "fakescad", failCompilerBody)
	out := filepath.Join(dir, "model.stl")

	r := NewRunner(bin, "", nil)
	res := r.Compile(context.Background(), filepath.Join(dir, "model.scad"), out, nil)
	if res.OK() {
		t.Fatalf("expected failure: %+v", res)
	}
	if res.StatusCode != 1 {
		t.Fatalf("status = %d, want 1", res.StatusCode)
	}
	if !strings.Contains(res.Stderr, "syntax error") {
		t.Fatalf("stderr = %q", res.Stderr)
	}
	if res.OutputExists {
		t.Fatalf("no output should exist")
	}
}

func TestCompile_MissingBinary(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "no-such-bin"), "", nil)
	res := r.Compile(context.Background(), "in.scad", "out.stl", nil)
	if res.OK() {
		t.Fatalf("expected failure: %+v", res)
	}
	if res.StatusCode != -1 {
		t.Fatalf("status = %d, want -1 for spawn failure", res.StatusCode)
	}
	if res.Stderr == "" {
		t.Fatalf("spawn error not surfaced")
	}
}

func TestCompile_CallerOutputFlagsStripped(t *testing.T) {
	dir := t.TempDir()
	// Records its argv so the test can assert what actually reached it.
	bin := writeScript(t, dir, "fakescad", `echo "$@" > "`+filepath.Join(dir, "argv.txt")+`"
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
echo "compiled" > "$out"
`)
	out := filepath.Join(dir, "wanted.stl")
	evil := filepath.Join(dir, "evil.stl")

	r := NewRunner(bin, "", nil)
	res := r.Compile(context.Background(), "in.scad", out, []string{"-o", evil, "--backend", "manifold"})
	if !res.OutputExists {
		t.Fatalf("output missing: %+v", res)
	}
	if _, err := os.Stat(evil); err == nil {
		t.Fatalf("caller-supplied output path was honored")
	}
	argv, _ := os.ReadFile(filepath.Join(dir, "argv.txt"))
	if !strings.Contains(string(argv), "--backend manifold") {
		t.Fatalf("benign args lost: %q", argv)
	}
}

func TestStripOutputFlags(t *testing.T) {
	cases := []struct {
		in, want []string
	}{
		{nil, nil},
		{[]string{"--backend", "manifold"}, []string{"--backend", "manifold"}},
		{[]string{"-o", "x.stl"}, nil},
		{[]string{"--output", "x.stl", "-q"}, []string{"-q"}},
		{[]string{"-o=x.stl", "-q"}, []string{"-q"}},
		{[]string{"--output=x.stl"}, nil},
		{[]string{"a", "-o", "x", "b"}, []string{"a", "b"}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, stripOutputFlags(c.in)); diff != "" {
			t.Errorf("stripOutputFlags(%v) (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestMeasure_ParsesMetrics(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "fakemeasure",
		`echo '{"path":"part.stl","bbox":[[0,0,0],[10,10,10]],"center":[5,5,5],"volume":1000}'`)

	r := NewRunner("", bin, nil)
	res := r.Measure(context.Background(), "part.stl")
	if !res.OK {
		t.Fatalf("measure failed: %+v", res)
	}
	if res.Metrics == nil || res.Metrics.Volume != 1000 {
		t.Fatalf("metrics = %+v", res.Metrics)
	}
	if len(res.Metrics.BBox) != 2 || res.Metrics.BBox[1][0] != 10 {
		t.Fatalf("bbox = %v", res.Metrics.BBox)
	}
}

func TestMeasure_UtilityErrorJSON(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "fakemeasure", `echo '{"error":"mesh is not closed"}'`)

	r := NewRunner("", bin, nil)
	res := r.Measure(context.Background(), "part.stl")
	if res.OK {
		t.Fatalf("expected failure: %+v", res)
	}
	if res.Error != "mesh is not closed" {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestMeasure_MalformedOutput(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "fakemeasure", `echo "segfault core dumped"`)

	r := NewRunner("", bin, nil)
	res := r.Measure(context.Background(), "part.stl")
	if res.OK {
		t.Fatalf("expected failure: %+v", res)
	}
	if !strings.Contains(res.Error, "unparseable measurement output") {
		t.Fatalf("error = %q", res.Error)
	}
	if !strings.Contains(res.Error, "segfault") {
		t.Fatalf("raw output not preserved: %q", res.Error)
	}
}
