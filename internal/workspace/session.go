// Package workspace gives each agent run an isolated directory tree and a
// single canonical source file, so multi-step runs cannot sprawl files
// across the filesystem.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// DefaultArtifactName is substituted whenever a caller-supplied filename is
// rejected by SanitizeFileName.
const DefaultArtifactName = "part.stl"

type Session struct {
	ID        string
	Root      string
	SourceDir string
	OutDir    string
	ScenePath string

	// SourcePath is the session's canonical geometry source file. Tool calls
	// that accept a filename are overridden to this path.
	SourcePath string
}

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return strings.ToLower(ulid.Make().String())
}

// Resolve derives (and creates) the session's directory tree. Deterministic
// in its inputs and idempotent: resolving the same session twice yields the
// same paths.
func Resolve(root, sessionID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	base := filepath.Join(root, "sessions", sessionID)
	srcDir := filepath.Join(base, "src")
	outDir := filepath.Join(base, "out")
	for _, d := range []string{srcDir, outDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating session directory: %w", err)
		}
	}
	return &Session{
		ID:         sessionID,
		Root:       base,
		SourceDir:  srcDir,
		OutDir:     outDir,
		ScenePath:  filepath.Join(base, "scene.json"),
		SourcePath: filepath.Join(srcDir, CanonicalSourceName(sessionID)),
	}, nil
}

// CanonicalSourceName derives the session's one source filename.
func CanonicalSourceName(sessionID string) string {
	return "model_" + sessionID + ".scad"
}

// SanitizeFileName reduces a user- or model-supplied filename to a bare name
// safe to join under the session's output directory. Directory components
// and traversal sequences are rejected, not stripped piecemeal: any input
// containing a separator or ".." collapses to DefaultArtifactName. This is
// the sole path-traversal defense; every filesystem write of a supplied name
// must pass through here.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." {
		return DefaultArtifactName
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return DefaultArtifactName
	}
	return name
}
