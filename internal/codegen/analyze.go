package codegen

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"forgecad/internal/llm"
)

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

const analysisSystemPrompt = `You break a product description into discrete mechanical parts.
Reply with one fenced JSON code block: {"parts": [{"key", "name", "role",
"geometry_hint", "approx_dims_mm", "features", "appearance"}]}.
Keys are lowercase slugs, dimensions are millimeters, features is a short
list of strings. Declare only parts that need their own solid body.`

// Analyze asks the model to decompose a free-form description into part
// specs. Runs once per pipeline invocation, before any generation.
func (p *Pipeline) Analyze(ctx context.Context, description string) ([]PartSpec, error) {
	req := llm.Request{
		Model: p.cfg.Model,
		Messages: []llm.Message{
			llm.System(analysisSystemPrompt),
			llm.User(description),
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
		return nil, err
	}

	raw := strings.TrimSpace(resp.Text())
	if m := jsonFenceRe.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}
	specs, err := ParseSpecs([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("analysis reply: %w", err)
	}
	return specs, nil
}
