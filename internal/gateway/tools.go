package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"forgecad/internal/agent"
	"forgecad/internal/llm"
	"forgecad/internal/scene"
	"forgecad/internal/workspace"
)

// RegisterTools wires the fixed tool menu into a registry. Every tool is a
// thin closure over the gateway; errors surface as tool error results, not
// panics or lost state.
func (g *Gateway) RegisterTools(reg *agent.ToolRegistry) error {
	tools := []agent.RegisteredTool{
		{
			Definition: llm.ToolDefinition{
				Name:        "get_libs",
				Description: "List the geometry libraries available to generated source.",
				Parameters:  objectSchema(nil, nil),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				return GeometryLibs, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "write_scad",
				Description: "Write OpenSCAD source. The session has one canonical source file; any path argument is ignored.",
				Parameters: objectSchema(map[string]any{
					"path":     map[string]any{"type": "string"},
					"contents": map[string]any{"type": "string"},
				}, []string{"contents"}),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				if p, _ := args["path"].(string); p != "" && p != filepath.Base(g.Session.SourcePath) {
					g.log.Info("write_scad path overridden", zap.String("requested", p))
				}
				contents, _ := args["contents"].(string)
				if err := g.WriteSource(contents); err != nil {
					return nil, err
				}
				return fmt.Sprintf("wrote %d bytes to %s", len(contents), filepath.Base(g.Session.SourcePath)), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "run_scad",
				Description: "Compile the canonical source file to an output artifact in the session's out directory.",
				Parameters: objectSchema(map[string]any{
					"entry": map[string]any{"type": "string"},
					"out":   map[string]any{"type": "string"},
					"args":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				}, []string{"out"}),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				out, _ := args["out"].(string)
				var extra []string
				if raw, ok := args["args"].([]any); ok {
					for _, a := range raw {
						extra = append(extra, fmt.Sprint(a))
					}
				}
				return g.CompileSource(ctx, out, extra), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "add_part",
				Description: "Add a part to the scene. Fails if the part id already exists.",
				Parameters: objectSchema(map[string]any{
					"part": map[string]any{"type": "object"},
				}, []string{"part"}),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				var p scene.Part
				if err := decodeArg(args["part"], &p); err != nil {
					return nil, err
				}
				if p.ID == "" || p.Kind == "" {
					return nil, fmt.Errorf("part requires id and kind")
				}
				count, err := g.Store.AddPart(p)
				if err != nil {
					return nil, err
				}
				return map[string]any{"parts": count}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "set_transform",
				Description: "Merge a transform (translate mm, rotate degrees) into an existing part.",
				Parameters: objectSchema(map[string]any{
					"id":        map[string]any{"type": "string"},
					"transform": map[string]any{"type": "object"},
				}, []string{"id", "transform"}),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				id, _ := args["id"].(string)
				var t scene.Transform
				if err := decodeArg(args["transform"], &t); err != nil {
					return nil, err
				}
				if err := g.Store.SetTransform(id, t); err != nil {
					return nil, err
				}
				return "ok", nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "set_params",
				Description: "Merge parameter values into an existing part.",
				Parameters: objectSchema(map[string]any{
					"id":     map[string]any{"type": "string"},
					"params": map[string]any{"type": "object"},
				}, []string{"id", "params"}),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				id, _ := args["id"].(string)
				params, _ := args["params"].(map[string]any)
				if err := g.Store.SetParams(id, params); err != nil {
					return nil, err
				}
				return "ok", nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "remove_part",
				Description: "Remove a part by id. Removing a missing id reports 0 removed, not an error.",
				Parameters: objectSchema(map[string]any{
					"id": map[string]any{"type": "string"},
				}, []string{"id"}),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				id, _ := args["id"].(string)
				removed, err := g.Store.RemovePart(id)
				if err != nil {
					return nil, err
				}
				return map[string]any{"removed": removed}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "render_preview",
				Description: "Lower the scene and render a preview image.",
				Parameters:  objectSchema(nil, nil),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				return g.RenderPreview(ctx)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "export_artifacts",
				Description: "Lower the scene and export a solid artifact (default model.stl).",
				Parameters: objectSchema(map[string]any{
					"name": map[string]any{"type": "string"},
				}, nil),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				name, _ := args["name"].(string)
				return g.ExportArtifact(ctx, name)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "measure",
				Description: "Measure an exported artifact: bounding box, center, volume.",
				Parameters: objectSchema(map[string]any{
					"path": map[string]any{"type": "string"},
				}, []string{"path"}),
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				p, _ := args["path"].(string)
				// export_artifacts reports absolute paths; accept those by
				// reducing to the basename before sanitizing. The measured
				// file still always resolves inside the session's out dir.
				full := filepath.Join(g.Session.OutDir, workspace.SanitizeFileName(filepath.Base(p)))
				return g.Runner.Measure(ctx, full), nil
			},
		},
	}

	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func objectSchema(props map[string]any, required []string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeArg round-trips a schema-validated argument into a typed struct.
func decodeArg(v any, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
