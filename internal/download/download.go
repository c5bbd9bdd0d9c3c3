// Package download implements the pipeline step that puts a runtime on disk:
// either the source tree for building from source, or a prebuilt executable
// from the latest release. A cached artifact short-circuits the step.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/config"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/fetch"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/pipeline"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/release"
)

// DefaultDistURL is the root of the official runtime source archives.
const DefaultDistURL = "https://nodejs.org/dist"

// StepName identifies the step in logs and run records.
const StepName = "download"

// CacheProbe reports whether an artifact already exists at path.
type CacheProbe func(path string) bool

// PathExists is the default CacheProbe.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Fetcher streams one artifact to disk. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request, opts fetch.Options, obs fetch.Observer) (string, error)
}

// Resolver finds a prebuilt release asset. *release.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, opts fetch.Options, token, assetName string) (release.Asset, error)
}

// Checker yields the digest a source archive must match, or "" to skip the
// check. *verify.Checker implements it.
type Checker interface {
	Expected(ctx context.Context, artifactURL string, opts fetch.Options) (string, error)
}

// Step acquires the runtime described by a build configuration.
type Step struct {
	cfg      config.Build
	fetcher  Fetcher
	resolver Resolver
	checker  Checker
	probe    CacheProbe
	logger   pipeline.Logger
	onState  func(State)
}

// Option configures a Step.
type Option func(*Step)

// WithCacheProbe replaces PathExists.
func WithCacheProbe(p CacheProbe) Option {
	return func(s *Step) { s.probe = p }
}

// WithChecker enables digest verification of source archives.
func WithChecker(c Checker) Option {
	return func(s *Step) { s.checker = c }
}

// WithLogger sets the structured logger.
func WithLogger(l pipeline.Logger) Option {
	return func(s *Step) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStateHook calls f on every state transition.
func WithStateHook(f func(State)) Option {
	return func(s *Step) { s.onState = f }
}

// New creates the download step for cfg.
func New(cfg config.Build, fetcher Fetcher, resolver Resolver, opts ...Option) *Step {
	s := &Step{
		cfg:      cfg,
		fetcher:  fetcher,
		resolver: resolver,
		probe:    PathExists,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements pipeline.Step.
func (s *Step) Name() string { return StepName }

// SourceURL returns the archive URL for building version from source.
func SourceURL(version string) string {
	return fmt.Sprintf("%s/v%s/node-v%s.tar.gz", DefaultDistURL, version, version)
}

// ExpectedPath is where the artifact lives once acquired: the extracted
// source directory when building, otherwise the prebuilt executable.
func (s *Step) ExpectedPath() string {
	if s.cfg.Build {
		return s.cfg.SourceDir()
	}
	return s.cfg.PrebuiltPath()
}

func (s *Step) sourceURL() string {
	if s.cfg.SourceURL != "" {
		return s.cfg.SourceURL
	}
	return SourceURL(s.cfg.Target.Version)
}

// Run implements pipeline.Step. It returns Skip on a cache hit, Proceed once
// the artifact is in place, and Fail otherwise.
func (s *Step) Run(ctx context.Context, run *pipeline.Run) pipeline.Result {
	sink := run.Sink()
	log := s.logger
	runID := run.ID

	s.transition(runID, StateIdle)
	if s.cfg.Build {
		sink.Log("Downloading Node.js source from: " + s.sourceURL())
	} else {
		sink.Log("Downloading pre-built Node.js")
	}

	path := s.ExpectedPath()
	s.transition(runID, StateProbing)
	if s.probe(path) {
		sink.Log("Already downloaded...")
		s.transition(runID, StateSkipped)
		log.Debug("artifact cached", "run_id", runID, "path", path)
		return pipeline.Skip()
	}

	var err error
	if s.cfg.Build {
		err = s.fetchSource(ctx, runID, path, sink)
	} else {
		err = s.fetchPrebuilt(ctx, runID, path, sink)
	}
	if err != nil {
		s.transition(runID, StateFailed)
		return pipeline.Fail(err)
	}

	s.transition(runID, StateDone)
	return pipeline.Proceed()
}

func (s *Step) fetchSource(ctx context.Context, runID, dest string, sink pipeline.Sink) error {
	url := s.sourceURL()
	opts := s.cfg.Download

	var digest string
	if s.checker != nil {
		s.transition(runID, StateResolving)
		d, err := s.checker.Expected(ctx, url, opts)
		if err != nil {
			return fmt.Errorf("resolve source checksum: %w", err)
		}
		digest = d
	}

	s.transition(runID, StateFetching)
	obs := &progress{
		sink:   sink,
		logger: s.logger,
		url:    url,
		format: func(pct int) string { return fmt.Sprintf("Downloading Node: %d%%...", pct) },
		complete: func() {
			s.transition(runID, StateExtracting)
			sink.Log("Extracting Node...")
		},
	}

	_, err := s.fetcher.Fetch(ctx, fetch.Request{
		URL:     url,
		Dir:     dest,
		Extract: true,
		Strip:   1,
		SHA256:  digest,
	}, opts, obs)
	if err != nil {
		return fmt.Errorf("download node source: %w", err)
	}

	sink.Log("Node source extracted to: " + dest)
	return nil
}

func (s *Step) fetchPrebuilt(ctx context.Context, runID, exe string, sink pipeline.Sink) error {
	assetName := s.cfg.Target.String()

	s.transition(runID, StateResolving)
	asset, err := s.resolver.Resolve(ctx, s.cfg.Download, s.cfg.GitHubToken, assetName)
	if err != nil {
		return fmt.Errorf("resolve prebuilt binary: %w", err)
	}
	s.logger.Debug("resolved release asset", "run_id", runID, "asset", asset.Name, "url", asset.BrowserDownloadURL)

	s.transition(runID, StateFetching)
	obs := &progress{
		sink:   sink,
		logger: s.logger,
		url:    asset.BrowserDownloadURL,
		format: func(pct int) string { return fmt.Sprintf("Downloading...%d%%", pct) },
	}

	// the asset host gets the plain options; the token is only for the API
	path, err := s.fetcher.Fetch(ctx, fetch.Request{
		URL:      asset.BrowserDownloadURL,
		Dir:      filepath.Dir(exe),
		Filename: filepath.Base(exe),
	}, s.cfg.Download, obs)
	if err != nil {
		return fmt.Errorf("download prebuilt binary: %w", err)
	}

	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("mark %s executable: %w", path, err)
	}

	sink.Log("Node binary downloaded to: " + path)
	return nil
}

func (s *Step) transition(runID string, st State) {
	s.logger.Debug("download state", "run_id", runID, "state", st.String())
	if s.onState != nil {
		s.onState(st)
	}
}

// progress turns byte counts into status lines. An unknown total produces a
// single warning and no percentages.
type progress struct {
	sink     pipeline.Sink
	logger   pipeline.Logger
	url      string
	format   func(pct int) string
	complete func()
	warned   bool
}

func (p *progress) Progress(received, total int64) {
	pct, ok := fetch.Percent(received, total)
	if !ok {
		if !p.warned {
			p.warned = true
			p.logger.Warn("response has no content length, progress unavailable", "url", p.url)
		}
		return
	}
	p.sink.Modify(p.format(pct))
	if received == total && p.complete != nil {
		p.complete()
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
