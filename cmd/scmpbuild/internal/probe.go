package internal

import (
	"encoding/json"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/goplus/scmpbuild/internal/pipeline"
	"github.com/goplus/scmpbuild/internal/probe"
	"github.com/goplus/scmpbuild/internal/run"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Query pkg-config for libseccomp",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		return err
	}
	t, err := pipeline.ResolveTarget(cfg, os.Getenv)
	if err != nil {
		return err
	}
	p := &probe.Prober{
		Runner:     run.New(log.Log),
		Logger:     log.Log,
		Cross:      t.Cross(),
		AllowCross: os.Getenv("PKG_CONFIG_ALLOW_CROSS") == "1",
	}
	res := p.Probe(cmd.Context(), cfg.Library.Name, cfg.Library.MinVersion)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
