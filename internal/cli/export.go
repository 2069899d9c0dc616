package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ExportResult is the JSON payload of the export command.
type ExportResult struct {
	Version string   `json:"version"`
	Files   []string `json:"files"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write research tables as pipe-delimited text",
		Long: `Write every table of the configured research version to
<export>/<version>/<table>.txt, pipe-delimited with a header line.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd)
		},
	}
	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	files, err := s.pipeline.Export(ctx)
	if err != nil {
		return stageError("export failed", err)
	}

	var b strings.Builder
	for _, f := range files {
		fmt.Fprintln(&b, f)
	}
	return s.report(ExportResult{Version: s.cfg.Version, Files: files}, b.String())
}
