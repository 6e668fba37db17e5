package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forgecad/internal/agent"
	"forgecad/internal/config"
	"forgecad/internal/gateway"
	"forgecad/internal/llm"
	"forgecad/internal/llm/providers/anthropic"
	"forgecad/internal/runstore"
	"forgecad/internal/scene"
	"forgecad/internal/workspace"
)

const agentSystemPrompt = `You are a CAD assistant building a parametric assembly.
Work incrementally: add parts to the scene, position them, render previews
to check your work, and export artifacts when the model is right.
All dimensions are millimeters. Scene mutations go through the scene tools;
write_scad/run_scad operate on the session's single canonical source file.
When at least one artifact has been exported and the build is complete,
reply with exactly ` + agent.CompletionToken + ` and nothing else.`

var agentCmd = &cobra.Command{
	Use:   "agent [prompt]",
	Short: "Run the tool-calling agent loop for one build request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.RequireCredentials(); err != nil {
			return err
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		sess, err := workspace.Resolve(cfg.WorkRoot, cfg.SessionID)
		if err != nil {
			return err
		}
		log.Info("session", zap.String("id", sess.ID), zap.String("root", sess.Root))

		adapter := anthropic.New(cfg.APIKey, "")
		client := llm.NewClient()
		client.Register(adapter)

		store := scene.NewStore(sess.ScenePath)
		runner := gateway.NewRunner(cfg.CompilerBin, cfg.MeasureBin, log)
		gw := gateway.New(sess, store, runner, log)

		reg := agent.NewToolRegistry()
		if err := gw.RegisterTools(reg); err != nil {
			return err
		}

		loop, err := agent.NewLoop(client, reg, gw.ListArtifacts, agent.Config{
			Model:         cfg.Model,
			MaxSteps:      cfg.MaxSteps,
			MaxIdleRounds: cfg.MaxIdleRounds,
			SystemPrompt:  agentSystemPrompt,
		}, log)
		if err != nil {
			return err
		}

		res, runErr := loop.Run(cmd.Context(), strings.Join(args, " "))

		if db, err := runstore.Open(cfg.RunLogPath); err == nil {
			if err := db.SaveAgentRun(sess.ID, res); err != nil {
				log.Warn("run log write failed", zap.Error(err))
			}
			db.Close()
		} else {
			log.Warn("run log unavailable", zap.Error(err))
		}

		fmt.Printf("state: %s (steps: %d)\n", res.State, res.Steps)
		for _, a := range res.ExportedArtifacts {
			fmt.Printf("artifact: %s\n", a)
		}
		if res.FinalText != "" && res.State != agent.StateDone {
			fmt.Printf("last reply: %s\n", res.FinalText)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
