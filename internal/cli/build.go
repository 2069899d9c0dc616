package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sirad/internal/pipeline"
	"github.com/roach88/sirad/internal/research"
	"github.com/roach88/sirad/internal/resolve"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Export bool
}

// BuildResult is the JSON payload of the build command.
type BuildResult struct {
	Ingest   IngestResult      `json:"ingest"`
	Resolve  resolve.Result    `json:"resolve"`
	Research research.Manifest `json:"research"`
	Export   *ExportResult     `json:"export,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run ingest, resolve and research in order",
		Long: `Run the full build for the configured version. Each stage starts
only after the previous one finished; the first error aborts the build
and names the stage that failed.

Exit codes:
  0 - Build finished
  1 - A stage failed
  2 - Configuration error (missing layout, table or store)

Example:
  sirad build --config ./sirad.yaml
  sirad build --export`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Export, "export", false, "also write research tables as text files")

	return cmd
}

func runBuild(opts *BuildOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	r, err := s.pipeline.Build(ctx)
	if err != nil {
		var serr *pipeline.StageError
		if errors.As(err, &serr) {
			return stageError(serr.Stage+" failed", serr.Err)
		}
		return stageError("build failed", err)
	}

	out := BuildResult{
		Ingest:   newIngestResult(r.Ingest),
		Resolve:  r.Resolve,
		Research: r.Research,
	}
	var text strings.Builder
	text.WriteString(formatIngest(r.Ingest, opts.Verbose))
	text.WriteString(formatResolve(r.Resolve, opts.Verbose))
	text.WriteString(formatManifest(r.Research))

	if opts.Export {
		files, err := s.pipeline.Export(ctx)
		if err != nil {
			return stageError("export failed", err)
		}
		out.Export = &ExportResult{Version: s.cfg.Version, Files: files}
		for _, f := range files {
			text.WriteString("exported " + f + "\n")
		}
	}
	return s.report(out, text.String())
}
