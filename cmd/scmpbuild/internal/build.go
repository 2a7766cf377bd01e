package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/goplus/scmpbuild/internal/linkemit"
	"github.com/goplus/scmpbuild/internal/pipeline"
)

var (
	buildRecord     string
	buildCgo        string
	buildCgoPackage string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Probe for libseccomp and build it from source if needed",
	Long: `Build probes pkg-config for libseccomp. When no suitable system copy exists it
fetches the pinned source, generates its headers and compiles a static archive.
The resulting link directive is printed as JSON.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildRecord, "record", "", "Write the link directive to this file instead of stdout")
	buildCmd.Flags().StringVar(&buildCgo, "cgo", "", "Also write a Go file carrying the directive as #cgo flags")
	buildCmd.Flags().StringVar(&buildCgoPackage, "cgo-package", "seccomp", "Package name of the --cgo file")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(cmd.Context(), cfg, pipeline.Deps{Logger: log.Log})
	if err != nil {
		return err
	}
	if res.FromSource {
		log.WithField("archive", res.Archive).Info("libseccomp built from source")
	} else {
		log.WithField("version", res.Probe.Version).Info("libseccomp found on the system")
	}
	return emit(res.Directive, cmd.OutOrStdout(), buildRecord, buildCgo, buildCgoPackage)
}

// emit writes the directive record to recordPath, or to stdout when it is
// empty, and the cgo file when cgoPath is set.
func emit(d linkemit.Directive, stdout io.Writer, recordPath, cgoPath, cgoPackage string) error {
	if recordPath == "" {
		if err := linkemit.WriteRecord(stdout, d); err != nil {
			return err
		}
	} else if err := writeFile(recordPath, func(w io.Writer) error { return linkemit.WriteRecord(w, d) }); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if cgoPath != "" {
		if err := writeFile(cgoPath, func(w io.Writer) error { return linkemit.WriteCgo(w, cgoPackage, d) }); err != nil {
			return fmt.Errorf("failed to write cgo file: %w", err)
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
