package codegen

import (
	"strings"
	"testing"
)

func TestExtractSource_FencedBlock(t *testing.T) {
	reply := "Here is the part:\n\n```openscad\nmodule build() { cube(5); }\n```\n\nLet me know."
	got := ExtractSource(reply)
	if got != "module build() { cube(5); }" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractSource_BareReply(t *testing.T) {
	got := ExtractSource("  module build() { sphere(3); }\n")
	if got != "module build() { sphere(3); }" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractSource_FirstFenceWins(t *testing.T) {
	reply := "```scad\nmodule build() { cube(1); }\n```\ntext\n```\ncube(2);\n```"
	got := ExtractSource(reply)
	if !strings.Contains(got, "cube(1);") || strings.Contains(got, "cube(2);") {
		t.Fatalf("got %q", got)
	}
}

func TestCheckSource(t *testing.T) {
	libs := []string{"MCAD", "BOSL2"}
	cases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"valid", "module build() { cube(5); }", ""},
		{"valid with lib include", "include <BOSL2/std.scad>\nmodule build() { cuboid(5); }", ""},
		{"valid bare include", "include <helpers.scad>\nmodule build() { cube(5); }", ""},
		{"empty", "   \n", "empty source"},
		{"no entry module", "cube(5);", "does not define module build()"},
		{"import forbidden", "module build() { import(\"x.stl\"); }", "import()"},
		{"absolute include", "include </etc/passwd>\nmodule build() {}", "forbidden include path"},
		{"parent include", "use <../secrets.scad>\nmodule build() {}", "forbidden use path"},
		{"unknown library", "include <NopSCADlib/lib.scad>\nmodule build() {}", `forbidden library "NopSCADlib"`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := CheckSource(c.src, libs)
			if c.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), c.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, c.wantErr)
			}
		})
	}
}

func TestWrapHarness_AppendsEntryCall(t *testing.T) {
	src := "module build() { cube(5); }"
	out := WrapHarness("bracket", src)
	if !strings.Contains(out, src) {
		t.Fatalf("source lost:\n%s", out)
	}
	if !strings.HasSuffix(out, "build();\n") {
		t.Fatalf("entry call missing:\n%s", out)
	}
	if !strings.Contains(out, "part: bracket") {
		t.Fatalf("part annotation missing:\n%s", out)
	}
	// The wrapped text must call build exactly once.
	if strings.Count(out, "build();") != 1 {
		t.Fatalf("entry called more than once:\n%s", out)
	}
}
