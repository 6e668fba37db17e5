package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"forgecad/internal/llm"
)

// State is the loop's explicit lifecycle. The transition table is small on
// purpose: Active is the only non-terminal state, and every path out of it
// is bounded by MaxSteps or MaxIdleRounds.
type State string

const (
	StateActive            State = "ACTIVE"
	StateDone              State = "DONE"
	StateStoppedIncomplete State = "STOPPED_INCOMPLETE"
)

// CompletionToken is the exact reply that ends a run, honored only once at
// least one artifact has been exported.
const CompletionToken = "BUILD_COMPLETE"

const nudgeMessage = "You replied without calling a tool and the build is not finished. " +
	"Keep working with the available tools, and reply with exactly " + CompletionToken +
	" once export_artifacts has produced at least one artifact."

type Config struct {
	Model         string
	MaxSteps      int
	MaxIdleRounds int
	SystemPrompt  string

	// RetryPolicy controls retries for retryable provider errors.
	// Nil means llm.DefaultRetryPolicy().
	RetryPolicy *llm.RetryPolicy
	Sleep       llm.SleepFunc
}

func (c *Config) applyDefaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 40
	}
	if c.MaxIdleRounds <= 0 {
		c.MaxIdleRounds = 3
	}
}

type RunResult struct {
	State             State
	Steps             int
	FinalText         string
	ExportedArtifacts []string
}

// Loop drives a tool-calling model against the registry until the model
// signals completion or a budget runs out. One Loop owns one growing
// transcript; tool calls execute strictly sequentially so the session's
// single scene file stays consistent.
type Loop struct {
	cfg    Config
	client *llm.Client
	reg    *ToolRegistry
	log    *zap.Logger

	// artifacts reports what the session has exported so far; the loop never
	// tracks filesystem state itself.
	artifacts func() ([]string, error)

	transcript []llm.Message
	steps      int
}

func NewLoop(client *llm.Client, reg *ToolRegistry, artifacts func() ([]string, error), cfg Config, log *zap.Logger) (*Loop, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}
	if artifacts == nil {
		artifacts = func() ([]string, error) { return nil, nil }
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Loop{
		cfg:       cfg,
		client:    client,
		reg:       reg,
		log:       log,
		artifacts: artifacts,
	}, nil
}

// Transcript returns a copy of the conversation so far.
func (l *Loop) Transcript() []llm.Message {
	return append([]llm.Message{}, l.transcript...)
}

// Run processes one user request to a terminal state. Provider errors (after
// retries) are the only error return; budget exhaustion is a normal result
// with State == StateStoppedIncomplete.
func (l *Loop) Run(ctx context.Context, input string) (RunResult, error) {
	l.transcript = append(l.transcript, llm.User(input))

	idleCount := 0
	state := StateActive
	lastText := ""

	for state == StateActive {
		if l.steps >= l.cfg.MaxSteps {
			l.log.Warn("step budget exhausted", zap.Int("max_steps", l.cfg.MaxSteps))
			state = StateStoppedIncomplete
			break
		}
		l.steps++

		select {
		case <-ctx.Done():
			return l.result(StateStoppedIncomplete, lastText), ctx.Err()
		default:
		}

		resp, err := l.complete(ctx)
		if err != nil {
			return l.result(StateStoppedIncomplete, lastText), err
		}
		l.transcript = append(l.transcript, resp.Message)
		lastText = resp.Text()

		calls := resp.ToolCalls()
		if len(calls) > 0 {
			idleCount = 0
			// Sequential on purpose: every tool may read-modify-write the one
			// scene file this session owns.
			for _, call := range calls {
				res := l.reg.ExecuteCall(ctx, call)
				l.log.Debug("tool call",
					zap.String("tool", res.ToolName),
					zap.Bool("is_error", res.IsError))
				l.transcript = append(l.transcript, llm.ToolResultNamed(res.CallID, res.ToolName, res.Output, res.IsError))
			}
			continue
		}

		if strings.TrimSpace(lastText) == CompletionToken {
			exported, _ := l.artifacts()
			if len(exported) > 0 {
				state = StateDone
				break
			}
			// Premature completion claim: treat it as an idle reply.
			l.log.Warn("completion token before any export")
		}

		idleCount++
		if idleCount >= l.cfg.MaxIdleRounds {
			l.log.Warn("idle budget exhausted", zap.Int("max_idle_rounds", l.cfg.MaxIdleRounds))
			state = StateStoppedIncomplete
			break
		}
		l.transcript = append(l.transcript, llm.User(nudgeMessage))
	}

	return l.result(state, lastText), nil
}

func (l *Loop) complete(ctx context.Context) (llm.Response, error) {
	msgs := make([]llm.Message, 0, len(l.transcript)+1)
	if strings.TrimSpace(l.cfg.SystemPrompt) != "" {
		msgs = append(msgs, llm.System(l.cfg.SystemPrompt))
	}
	msgs = append(msgs, l.transcript...)

	req := llm.Request{
		Model:    l.cfg.Model,
		Messages: msgs,
		Tools:    l.reg.Definitions(),
	}

	policy := llm.DefaultRetryPolicy()
	if l.cfg.RetryPolicy != nil {
		policy = *l.cfg.RetryPolicy
	}
	return llm.Retry(ctx, policy, l.cfg.Sleep, func() (llm.Response, error) {
		return l.client.Complete(ctx, req)
	})
}

func (l *Loop) result(state State, finalText string) RunResult {
	exported, _ := l.artifacts()
	return RunResult{
		State:             state,
		Steps:             l.steps,
		FinalText:         finalText,
		ExportedArtifacts: exported,
	}
}
