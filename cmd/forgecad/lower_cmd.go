package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"forgecad/internal/lower"
	"forgecad/internal/scene"
)

var lowerCmd = &cobra.Command{
	Use:   "lower <scene.json>",
	Short: "Print the OpenSCAD lowering of a scene document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := scene.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Print(lower.Lower(s))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lowerCmd)
}
