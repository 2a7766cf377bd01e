package internal

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/goplus/scmpbuild/internal/confhdr"
	"github.com/goplus/scmpbuild/internal/pipeline"
	"github.com/goplus/scmpbuild/internal/run"
)

var headerStrategy string

var headerCmd = &cobra.Command{
	Use:   "header",
	Short: "Generate the libseccomp configuration headers",
	Args:  cobra.NoArgs,
	RunE:  runHeader,
}

func init() {
	headerCmd.Flags().StringVar(&headerStrategy, "strategy", "", "Header strategy: configure or template (default from config)")
	rootCmd.AddCommand(headerCmd)
}

func runHeader(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		return err
	}
	if headerStrategy != "" {
		cfg.Header.Strategy = headerStrategy
	}
	t, err := pipeline.ResolveTarget(cfg, os.Getenv)
	if err != nil {
		return err
	}
	dir, err := pipeline.OutDir(cfg, t)
	if err != nil {
		return err
	}
	runner := run.New(log.Log)
	tree, err := pipeline.EnsureSource(cmd.Context(), cfg, pipeline.Deps{Runner: runner, Logger: log.Log})
	if err != nil {
		return err
	}
	s := &confhdr.Synthesizer{Runner: runner, Target: t, Logger: log.Log}
	if err := s.Synthesize(cmd.Context(), tree.Root, dir, confhdr.StrategyFrom(cfg.Header)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dir)
	return nil
}
