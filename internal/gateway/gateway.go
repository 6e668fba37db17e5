// Package gateway bridges abstract tool calls to scene mutations and
// subprocess invocations, scoped to one session's workspace.
package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"forgecad/internal/lower"
	"forgecad/internal/scene"
	"forgecad/internal/workspace"
)

const previewName = "preview.png"

// Libraries the generated source may include. get_libs reports these; the
// harness rejects includes outside the set.
var GeometryLibs = []string{"MCAD", "BOSL2"}

type Gateway struct {
	Session *workspace.Session
	Store   *scene.Store
	Runner  *Runner

	log *zap.Logger
}

func New(sess *workspace.Session, store *scene.Store, runner *Runner, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{Session: sess, Store: store, Runner: runner, log: log}
}

// WriteSource writes contents to the session's canonical source file. The
// caller's filename, if any, is ignored by design: one session owns exactly
// one source file.
func (g *Gateway) WriteSource(contents string) error {
	return os.WriteFile(g.Session.SourcePath, []byte(contents), 0o644)
}

// CompileSource compiles the canonical source into the session's out
// directory under a sanitized name.
func (g *Gateway) CompileSource(ctx context.Context, outName string, extraArgs []string) CompileResult {
	name := workspace.SanitizeFileName(outName)
	outPath := filepath.Join(g.Session.OutDir, name)
	return g.Runner.Compile(ctx, g.Session.SourcePath, outPath, extraArgs)
}

// RenderPreview lowers the current scene, writes the canonical source, and
// compiles a preview image.
func (g *Gateway) RenderPreview(ctx context.Context) (CompileResult, error) {
	s, err := g.Store.Load()
	if err != nil {
		return CompileResult{}, err
	}
	if err := g.WriteSource(lower.Lower(s)); err != nil {
		return CompileResult{}, err
	}
	outPath := filepath.Join(g.Session.OutDir, previewName)
	return g.Runner.Compile(ctx, g.Session.SourcePath, outPath, []string{"--imgsize", "800,600"}), nil
}

// ExportArtifact lowers the current scene and compiles a solid artifact
// under the (sanitized) requested name.
func (g *Gateway) ExportArtifact(ctx context.Context, name string) (CompileResult, error) {
	s, err := g.Store.Load()
	if err != nil {
		return CompileResult{}, err
	}
	if err := g.WriteSource(lower.Lower(s)); err != nil {
		return CompileResult{}, err
	}
	safe := workspace.SanitizeFileName(name)
	if safe == workspace.DefaultArtifactName && name == "" {
		safe = "model.stl"
	}
	outPath := filepath.Join(g.Session.OutDir, safe)
	return g.Runner.Compile(ctx, g.Session.SourcePath, outPath, nil), nil
}

// ListArtifacts returns the solid artifacts exported so far, sorted. Preview
// images do not count as exports.
func (g *Gateway) ListArtifacts() ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(g.Session.OutDir, "**", "*.{stl,3mf,off,amf}"))
	if err != nil {
		return nil, fmt.Errorf("globbing artifacts: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
