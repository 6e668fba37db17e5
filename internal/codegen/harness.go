package codegen

import (
	"fmt"
	"regexp"
	"strings"
)

// The harness contract for generated source:
//   - define `module build()` containing the whole part;
//   - never call build() or emit top-level geometry;
//   - never choose an output path (the gateway owns it);
//   - includes limited to the advertised library set, no absolute or
//     parent paths, no import() of external files.
//
// The generated text is untrusted input. The source-level guard below plus
// the gateway stripping output flags enforce the contract in-process;
// OS-level sandboxing of the compiler binary is a deployment concern.

const EntryModule = "build"

var (
	fenceRe   = regexp.MustCompile("(?s)```(?:openscad|scad)?\\s*\\n(.*?)```")
	includeRe = regexp.MustCompile(`(?m)^\s*(include|use)\s*<([^>]+)>`)
	moduleRe  = regexp.MustCompile(`(?m)\bmodule\s+build\s*\(`)
	importRe  = regexp.MustCompile(`(?m)\bimport\s*\(`)
)

// ExtractSource pulls the code out of a model reply: the first fenced code
// block if present, otherwise the reply as-is.
func ExtractSource(reply string) string {
	if m := fenceRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}

// CheckSource validates generated source against the harness contract.
func CheckSource(src string, allowedLibs []string) error {
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("empty source")
	}
	if !moduleRe.MatchString(src) {
		return fmt.Errorf("source does not define module %s()", EntryModule)
	}
	if importRe.MatchString(src) {
		return fmt.Errorf("import() of external files is not allowed")
	}
	for _, m := range includeRe.FindAllStringSubmatch(src, -1) {
		target := strings.TrimSpace(m[2])
		if strings.HasPrefix(target, "/") || strings.Contains(target, "..") {
			return fmt.Errorf("forbidden %s path: %s", m[1], target)
		}
		root := target
		if i := strings.IndexAny(target, "/"); i >= 0 {
			root = target[:i]
			allowed := false
			for _, lib := range allowedLibs {
				if root == lib {
					allowed = true
					break
				}
			}
			if !allowed {
				return fmt.Errorf("forbidden library %q in %s <%s>", root, m[1], target)
			}
		}
	}
	return nil
}

// WrapHarness appends the harness's own render call so the generated code
// cannot decide what gets built or where it goes.
func WrapHarness(key, src string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// part: %s (harness-wrapped, do not edit)\n\n", key)
	b.WriteString(src)
	if !strings.HasSuffix(src, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n// harness entry\n")
	b.WriteString(EntryModule + "();\n")
	return b.String()
}
