package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CompileResult is the gateway's view of one compiler invocation. The
// subprocess outcome is data, never a Go error: callers judge success from
// StatusCode and OutputExists so the agent loop can feed failures back to
// the model.
type CompileResult struct {
	StatusCode   int    `json:"status_code"`
	Stdout       string `json:"stdout,omitempty"`
	Stderr       string `json:"stderr,omitempty"`
	OutputExists bool   `json:"output_exists"`
	OutputPath   string `json:"output_path"`
}

func (r CompileResult) OK() bool { return r.StatusCode == 0 && r.OutputExists }

type Metrics struct {
	BBox   [][]float64 `json:"bbox,omitempty"`
	Center []float64   `json:"center,omitempty"`
	Volume float64     `json:"volume"`
}

type MeasureResult struct {
	OK      bool     `json:"ok"`
	Metrics *Metrics `json:"metrics,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Runner spawns the external geometry compiler and measurement utility.
// Invocations block until the subprocess exits; there is no timeout beyond
// the caller's context, so a hung compiler blocks until that context is
// cancelled.
type Runner struct {
	CompilerBin string
	MeasureBin  string

	log *zap.Logger
}

func NewRunner(compilerBin, measureBin string, log *zap.Logger) *Runner {
	if strings.TrimSpace(compilerBin) == "" {
		compilerBin = "openscad"
	}
	if strings.TrimSpace(measureBin) == "" {
		measureBin = "forgecad-measure"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{CompilerBin: compilerBin, MeasureBin: measureBin, log: log}
}

// Compile renders sourcePath into outPath. Any output flag smuggled into
// extraArgs is stripped first: the gateway's output path always wins, which
// is what keeps artifacts inside the session's out directory.
func (r *Runner) Compile(ctx context.Context, sourcePath, outPath string, extraArgs []string) CompileResult {
	args := append(stripOutputFlags(extraArgs), "-o", outPath, sourcePath)
	r.log.Debug("compile", zap.String("bin", r.CompilerBin), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, r.CompilerBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := CompileResult{OutputPath: outPath}
	if err := cmd.Run(); err != nil {
		if cmd.ProcessState != nil {
			res.StatusCode = cmd.ProcessState.ExitCode()
		} else {
			res.StatusCode = -1
		}
		if stderr.Len() == 0 {
			stderr.WriteString(err.Error())
		}
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if _, err := os.Stat(outPath); err == nil {
		res.OutputExists = true
	}
	return res
}

// Measure runs the measurement utility against an artifact and parses its
// JSON output. Malformed output comes back as OK=false with the raw text.
func (r *Runner) Measure(ctx context.Context, artifactPath string) MeasureResult {
	cmd := exec.CommandContext(ctx, r.MeasureBin, artifactPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var m Metrics
	if err := json.Unmarshal(stdout.Bytes(), &m); err != nil {
		raw := strings.TrimSpace(stdout.String() + "\n" + stderr.String())
		if runErr != nil {
			raw = fmt.Sprintf("%s (exit: %v)", raw, runErr)
		}
		return MeasureResult{OK: false, Error: "unparseable measurement output: " + raw}
	}
	// The utility reports its own failures as an error JSON field.
	var probe struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(stdout.Bytes(), &probe)
	if probe.Error != "" {
		return MeasureResult{OK: false, Error: probe.Error}
	}
	if runErr != nil {
		return MeasureResult{OK: false, Error: strings.TrimSpace(stderr.String())}
	}
	return MeasureResult{OK: true, Metrics: &m}
}

// stripOutputFlags drops "-o"/"--o" (and a following value) plus any
// "-o=..." form from caller-supplied compiler args.
func stripOutputFlags(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		trimmed := strings.TrimLeft(a, "-")
		if strings.HasPrefix(a, "-") && (trimmed == "o" || trimmed == "output") {
			i++ // skip the flag's value too
			continue
		}
		if strings.HasPrefix(a, "-") && (strings.HasPrefix(trimmed, "o=") || strings.HasPrefix(trimmed, "output=")) {
			continue
		}
		out = append(out, a)
	}
	return out
}
