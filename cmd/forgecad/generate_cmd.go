package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forgecad/internal/codegen"
	"forgecad/internal/config"
	"forgecad/internal/gateway"
	"forgecad/internal/llm"
	"forgecad/internal/llm/providers/anthropic"
	"forgecad/internal/runstore"
	"forgecad/internal/workspace"
)

var (
	specsFile   string
	description string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one build script and artifact per declared part",
	Long: `Runs the script-generation pipeline: for each declared part the model
writes a build script, the script is harness-wrapped and compiled, and a
failing script gets exactly one corrective regeneration. Parts are declared
in a JSON file (--specs) or derived from a description (--describe).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if specsFile == "" && description == "" {
			return fmt.Errorf("one of --specs or --describe is required")
		}

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

		adapter := anthropic.New(cfg.APIKey, "")
		client := llm.NewClient()
		client.Register(adapter)

		runID := workspace.NewSessionID()
		workDir := filepath.Join(cfg.WorkRoot, "generate", runID)
		runner := gateway.NewRunner(cfg.CompilerBin, cfg.MeasureBin, log)

		pipe, err := codegen.NewPipeline(client, runner, codegen.Config{
			Model:   cfg.Model,
			WorkDir: workDir,
		}, log)
		if err != nil {
			return err
		}

		var specs []codegen.PartSpec
		if specsFile != "" {
			b, err := os.ReadFile(specsFile)
			if err != nil {
				return fmt.Errorf("reading specs file: %w", err)
			}
			specs, err = codegen.ParseSpecs(b)
			if err != nil {
				return err
			}
		} else {
			specs, err = pipe.Analyze(cmd.Context(), description)
			if err != nil {
				return err
			}
			log.Info("analysis complete", zap.Int("parts", len(specs)))
		}

		sum, err := pipe.Run(cmd.Context(), specs)
		if err != nil {
			return err
		}

		if db, err := runstore.Open(cfg.RunLogPath); err == nil {
			if err := db.SavePipelineRun(runID, sum); err != nil {
				log.Warn("run log write failed", zap.Error(err))
			}
			db.Close()
		} else {
			log.Warn("run log unavailable", zap.Error(err))
		}

		fmt.Printf("run %s: %d/%d parts succeeded (%.0f%%)\n",
			runID, sum.Succeeded, sum.Total, sum.Ratio()*100)
		for _, r := range sum.Results {
			line := fmt.Sprintf("  %-24s %s", r.Key, r.Status)
			if r.ArtifactPath != "" {
				line += "  " + r.ArtifactPath
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&specsFile, "specs", "", "JSON file declaring the parts to generate")
	generateCmd.Flags().StringVar(&description, "describe", "", "Free-form product description to analyze into parts")
	rootCmd.AddCommand(generateCmd)
}
