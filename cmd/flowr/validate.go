package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Load a manifest and report load-time errors without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := context.Background()

			runners, ne, closeRunners := newRunners(ctx, cfg)
			defer closeRunners()
			_ = runners

			if _, err := loaderFor(cfg, ne).Load(ctx, args[0]); err != nil {
				return fmt.Errorf("flowr: %s is invalid: %w", args[0], err)
			}
			fmt.Printf("%s: ok\n", args[0])
			return nil
		},
	}
	return cmd
}
