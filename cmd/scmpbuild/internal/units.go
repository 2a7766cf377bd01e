package internal

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/goplus/scmpbuild/internal/pipeline"
	"github.com/goplus/scmpbuild/internal/units"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the translation units compiled into libseccomp",
	Long:  `Units fetches the configured source if needed and prints the units a from-source build compiles, one per line.`,
	Args:  cobra.NoArgs,
	RunE:  runUnits,
}

func init() {
	rootCmd.AddCommand(unitsCmd)
}

func runUnits(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		return err
	}
	tree, err := pipeline.EnsureSource(cmd.Context(), cfg, pipeline.Deps{Logger: log.Log})
	if err != nil {
		return err
	}
	us, err := units.Collect(tree.Root, units.Options{
		SrcDir:   cfg.Build.SrcDir,
		Denylist: cfg.Build.Denylist,
		Logger:   log.Log,
	})
	if err != nil {
		return err
	}
	for _, u := range us {
		fmt.Fprintln(cmd.OutOrStdout(), u)
	}
	return nil
}
