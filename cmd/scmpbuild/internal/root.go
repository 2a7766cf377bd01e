package internal

import (
	"context"
	"os"
	"os/signal"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"github.com/goplus/scmpbuild/internal/config"
)

var (
	configPath string
	verbose    bool
	outDir     string
	targetFlag string
)

var rootCmd = &cobra.Command{
	Use:   "scmpbuild",
	Short: "scmpbuild makes libseccomp available to the linker",
	Long: `scmpbuild probes pkg-config for libseccomp and, when it is missing or too old,
builds a static libseccomp from source for the requested target.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(cli.New(os.Stderr))
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose log output")
	rootCmd.PersistentFlags().StringVar(&outDir, "out-dir", "", "Output directory for headers and the archive")
	rootCmd.PersistentFlags().StringVar(&targetFlag, "target", "", "Target triple (default $TARGET or the host)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatal(err.Error())
	}
}

// loadConfig returns the configuration with the file, the environment
// and the command line flags applied, in that order.
func loadConfig(getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if outDir != "" {
		cfg.Build.OutDir = outDir
	}
	if targetFlag != "" {
		cfg.Build.Target = targetFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
