package codegen

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"forgecad/internal/gateway"
	"forgecad/internal/llm"
)

type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAILED"
)

// maxAttempts is fixed by design: the first generation plus one repair.
const maxAttempts = 2

type Attempt struct {
	Number     int                   `json:"number"`
	SourcePath string                `json:"source_path,omitempty"`
	Compile    gateway.CompileResult `json:"compile"`

	// Note carries non-compiler failures (unusable model output).
	Note string `json:"note,omitempty"`
}

type PartResult struct {
	Key          string    `json:"key"`
	Status       Status    `json:"status"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Attempts     []Attempt `json:"attempts"`
}

// Summary reports the whole run. Partial success is the normal case: one
// failed part never aborts the others.
type Summary struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Results   []PartResult `json:"results"`
}

func (s Summary) Ratio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

type Config struct {
	Model   string
	WorkDir string

	RetryPolicy *llm.RetryPolicy
	Sleep       llm.SleepFunc
}

type Pipeline struct {
	cfg    Config
	client *llm.Client
	runner *gateway.Runner
	log    *zap.Logger
}

func NewPipeline(client *llm.Client, runner *gateway.Runner, cfg Config, log *zap.Logger) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is nil")
	}
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return nil, fmt.Errorf("work dir is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, client: client, runner: runner, log: log}, nil
}

// Run processes every spec in order. The returned error covers setup
// problems only; per-part failures land in the summary.
func (p *Pipeline) Run(ctx context.Context, specs []PartSpec) (Summary, error) {
	dir := filepath.Join(p.cfg.WorkDir, "parts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating parts dir: %w", err)
	}

	sum := Summary{Total: len(specs)}
	for _, spec := range specs {
		res := p.runPart(ctx, dir, spec)
		if res.Status == StatusOK {
			sum.Succeeded++
		}
		sum.Results = append(sum.Results, res)
	}
	p.log.Info("pipeline finished",
		zap.Int("total", sum.Total),
		zap.Int("succeeded", sum.Succeeded))
	return sum, nil
}

func (p *Pipeline) runPart(ctx context.Context, dir string, spec PartSpec) PartResult {
	res := PartResult{Key: spec.Key, Status: StatusFailed}
	outPath := filepath.Join(dir, spec.Key+".stl")

	var prevSource, prevFailure string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var prompt string
		if attempt == 1 {
			prompt = firstPrompt(spec)
		} else {
			prompt = repairPrompt(spec, prevSource, prevFailure)
		}

		src, err := p.generate(ctx, prompt)
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, Note: err.Error()})
			prevSource, prevFailure = src, err.Error()
			p.log.Warn("unusable generated source",
				zap.String("part", spec.Key),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		wrapped := WrapHarness(spec.Key, src)
		srcPath := filepath.Join(dir, fmt.Sprintf("%s_%s.scad", spec.Key, contentHash(wrapped)))
		if werr := os.WriteFile(srcPath, []byte(wrapped), 0o644); werr != nil {
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, Note: werr.Error()})
			prevSource, prevFailure = src, werr.Error()
			continue
		}

		cres := p.runner.Compile(ctx, srcPath, outPath, nil)
		res.Attempts = append(res.Attempts, Attempt{Number: attempt, SourcePath: srcPath, Compile: cres})
		if cres.OK() {
			res.Status = StatusOK
			res.ArtifactPath = outPath
			return res
		}
		prevSource = src
		prevFailure = strings.TrimSpace(cres.Stderr + "\n" + cres.Stdout)
		p.log.Warn("compile failed",
			zap.String("part", spec.Key),
			zap.Int("attempt", attempt),
			zap.Int("status", cres.StatusCode))
	}
	return res
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	req := llm.Request{
		Model: p.cfg.Model,
		Messages: []llm.Message{
			llm.System(generationSystemPrompt),
			llm.User(prompt),
		},
	}
	policy := llm.DefaultRetryPolicy()
	if p.cfg.RetryPolicy != nil {
		policy = *p.cfg.RetryPolicy
	}
	resp, err := llm.Retry(ctx, policy, p.cfg.Sleep, func() (llm.Response, error) {
		return p.client.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	src := ExtractSource(resp.Text())
	if err := CheckSource(src, gateway.GeometryLibs); err != nil {
		return src, err
	}
	return src, nil
}

func contentHash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}

const generationSystemPrompt = `You write OpenSCAD source for single mechanical parts.
Rules:
- Define the entire part inside "module build()". Do not call build() yourself.
- Do not write files, choose output paths, or emit top-level geometry.
- All dimensions are millimeters. Use $fn=64 for round features.
- Only include <` + "MCAD/... or BOSL2/..." + `> libraries; no import() of external files.
Reply with one fenced code block containing only the source.`

func firstPrompt(spec PartSpec) string {
	return "Write the build script for this part:\n\n" + spec.describe()
}

func repairPrompt(spec PartSpec, prevSource, failure string) string {
	var b strings.Builder
	b.WriteString("The previous script for this part failed. Fix it.\n\nPart spec:\n")
	b.WriteString(spec.describe())
	b.WriteString("\n\nPrevious source:\n```scad\n")
	b.WriteString(prevSource)
	b.WriteString("\n```\n\nFailure output:\n")
	b.WriteString(failure)
	b.WriteString("\n\nReply with the corrected source in one fenced code block.")
	return b.String()
}
