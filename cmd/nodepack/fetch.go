package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/config"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/download"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/fetch"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/logging"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/pipeline"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/platform"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/release"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/verify"
)

// defaultConfigFiles are tried in order when --config is not given.
var defaultConfigFiles = []string{"nodepack.lua", "nodepack.yaml", "nodepack.yml"}

// FetchOptions holds the flags of the fetch command. Flags override the
// environment, which overrides the config file.
type FetchOptions struct {
	ConfigPath  string
	Target      string
	Build       bool
	TempDir     string
	SourceURL   string
	GitHubToken string
	Timeout     time.Duration
	Proxy       string
	Verify      string
	Keyring     string
	ReleaseURL  string
	NodeVersion string

	flags *pflag.FlagSet
}

func newFetchCommand(g *globalOptions) *cobra.Command {
	opts := &FetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch [TARGET]",
		Short: "Download the runtime for a target unless it is already cached",
		Long: `fetch places a runtime in the temp directory. By default it downloads the
prebuilt executable named after the target from the latest release. With
--build it downloads and extracts the runtime source instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if cmd.Flags().Changed("target") {
					return errors.New("target given both as argument and --target")
				}
				if err := cmd.Flags().Set("target", args[0]); err != nil {
					return err
				}
			}

			cfg, err := opts.Complete(cmd.Context(), g, platform.NewDetector())
			if err != nil {
				return errors.New(config.FormatError(err, g.verbose))
			}

			path, err := opts.Run(cmd.Context(), g, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// AddFlags registers the fetch flags on fs.
func (o *FetchOptions) AddFlags(fs *pflag.FlagSet) {
	o.flags = fs
	fs.StringVarP(&o.ConfigPath, "config", "c", "", "config file (.lua, .yaml); defaults to ./nodepack.lua or ./nodepack.yaml if present")
	fs.StringVarP(&o.Target, "target", "t", "", "target such as linux-x64-14.15.3, alpine or v16.3.0")
	fs.BoolVarP(&o.Build, "build", "b", false, "download the runtime source instead of a prebuilt binary")
	fs.StringVar(&o.TempDir, "temp", "", "cache directory (default ~/.nodepack)")
	fs.StringVar(&o.SourceURL, "source-url", "", "override the runtime source archive URL")
	fs.StringVar(&o.GitHubToken, "gh-token", "", "GitHub token for the release API")
	fs.DurationVar(&o.Timeout, "timeout", 0, "timeout for each network call, e.g. 2m (0 = none)")
	fs.StringVar(&o.Proxy, "proxy", "", "HTTP proxy URL")
	fs.StringVar(&o.Verify, "verify", "", "source verification: none, checksum or signature")
	fs.StringVar(&o.Keyring, "keyring", "", "OpenPGP keyring for --verify=signature")
	fs.StringVar(&o.ReleaseURL, "release-url", release.DefaultEndpoint, "latest-release metadata endpoint")
	fs.StringVar(&o.NodeVersion, "node-version", "", "runtime version when the target has none")
}

// Complete layers config file, environment and flags into a build config.
func (o *FetchOptions) Complete(ctx context.Context, g *globalOptions, detector platform.Detector) (config.Build, error) {
	parser := config.NewParser(detector).WithLogger(logging.New(g.log))

	file := &config.File{}
	path, err := o.configPath()
	if err != nil {
		return config.Build{}, err
	}
	if path != "" {
		f, err := parser.ParseFile(ctx, path)
		if err != nil {
			return config.Build{}, err
		}
		file = f
		g.log.Debug().Str("path", path).Msg("loaded config")
	}

	if err := file.ApplyEnv(nil); err != nil {
		return config.Build{}, err
	}
	o.applyFlags(file)

	version := o.NodeVersion
	if version == "" {
		version = defaultVersion
	}
	host, err := hostDescriptor(ctx, g.log, detector, version)
	if err != nil {
		return config.Build{}, err
	}

	return file.Resolve(host)
}

func (o *FetchOptions) configPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	for _, name := range defaultConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("check %s: %w", name, err)
		}
	}
	return "", nil
}

func (o *FetchOptions) applyFlags(f *config.File) {
	changed := func(name string) bool { return o.flags != nil && o.flags.Changed(name) }

	if changed("build") {
		f.Build = o.Build
	}
	strFlags := []struct {
		name string
		val  string
		dst  *string
	}{
		{"target", o.Target, &f.Target},
		{"temp", o.TempDir, &f.TempDir},
		{"source-url", o.SourceURL, &f.SourceURL},
		{"gh-token", o.GitHubToken, &f.GitHubToken},
		{"proxy", o.Proxy, &f.Download.Proxy},
		{"verify", o.Verify, &f.Verify},
		{"keyring", o.Keyring, &f.Keyring},
	}
	for _, sf := range strFlags {
		if changed(sf.name) {
			*sf.dst = sf.val
		}
	}
	if changed("timeout") {
		f.Download.Timeout = o.Timeout.String()
	}
}

// Run executes the download step and returns the artifact path.
func (o *FetchOptions) Run(ctx context.Context, g *globalOptions, cfg config.Build, stderr io.Writer) (string, error) {
	fetcher := fetch.NewFetcher()
	resolver := release.NewResolver(fetcher, o.ReleaseURL)

	stepOpts := []download.Option{download.WithLogger(logging.New(g.log))}
	if cfg.Build && cfg.Verify != verify.ModeNone {
		var keyring openpgp.EntityList
		if cfg.Verify == verify.ModeSignature {
			kr, err := verify.LoadKeyring(cfg.Keyring)
			if err != nil {
				return "", err
			}
			keyring = kr
		}
		checker, err := verify.NewChecker(fetcher, cfg.Verify, keyring)
		if err != nil {
			return "", err
		}
		stepOpts = append(stepOpts, download.WithChecker(checker))
	}

	step := download.New(cfg, fetcher, resolver, stepOpts...)

	var term io.Writer
	if f, ok := stderr.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		term = f
	}
	var sinks []*logging.StepSink
	executor := pipeline.NewExecutor(step).
		WithLogger(logging.New(g.log)).
		WithSinks(func(runID, name string) pipeline.Sink {
			s := logging.NewStepSink(g.log.With().Str("run_id", runID).Logger(), name, term)
			sinks = append(sinks, s)
			return s
		})

	run := pipeline.NewRun()
	err := executor.Execute(ctx, run)
	for _, s := range sinks {
		s.Done()
	}
	if err != nil {
		return "", err
	}
	return step.ExpectedPath(), nil
}
