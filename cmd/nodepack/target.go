package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/platform"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/target"
)

func newTargetCommand(g *globalOptions) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "target [TARGET]",
		Short: "Print the canonical name of a target",
		Long: `target normalises a loose target such as "win32-x64", "darwin" or
"v16.3.0" into <platform>-<arch>-<version>. Missing parts come from the host.
The result is the release asset name and the cache file name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := hostDescriptor(cmd.Context(), g.log, platform.NewDetector(), version)
			if err != nil {
				return err
			}
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			d, err := target.Parse(raw, host)
			if err != nil {
				return err
			}
			g.log.Debug().Str("input", raw).Str("target", d.String()).Msg("resolved target")
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "node-version", defaultVersion, "runtime version used when TARGET has none")
	return cmd
}

const defaultVersion = target.DefaultVersion

// hostDescriptor detects the host, falling back to linux-x64 with a warning
// when detection fails or the host itself is not a supported target.
func hostDescriptor(ctx context.Context, log zerolog.Logger, detector platform.Detector, version string) (target.Descriptor, error) {
	info, err := detector.Detect(ctx)
	if err == nil {
		var d target.Descriptor
		if d, err = target.Host(info, version); err == nil {
			return d, nil
		}
	}
	log.Warn().Err(err).Msg("host is not a supported target, defaulting to linux-x64")
	return target.New(target.Linux, target.X64, version)
}
