package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/fetch"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/target"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/verify"
)

// File is the raw, unvalidated configuration as written in a config file.
// Every field is optional.
type File struct {
	Build       bool         `yaml:"build"`
	Target      string       `yaml:"target"`
	SourceURL   string       `yaml:"source_url"`
	GitHubToken string       `yaml:"github_token"`
	TempDir     string       `yaml:"temp"`
	Verify      string       `yaml:"verify"`
	Keyring     string       `yaml:"keyring"`
	Download    DownloadFile `yaml:"download"`
}

// DownloadFile holds transport settings.
type DownloadFile struct {
	Proxy     string            `yaml:"proxy"`
	UserAgent string            `yaml:"user_agent"`
	Timeout   string            `yaml:"timeout"` // Go duration, e.g. "90s"
	Headers   map[string]string `yaml:"headers"`
}

// Build is the validated configuration handed to the pipeline. It is a
// value type; fetch.Options only hands out copies of its headers.
type Build struct {
	// Build selects compiling from source over downloading a prebuilt binary.
	Build       bool
	SourceURL   string
	GitHubToken string
	Download    fetch.Options
	Target      target.Descriptor
	TempDir     string
	Verify      verify.Mode
	Keyring     string
}

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// Resolve validates f and produces a Build. Target fields missing from
// f.Target come from host. All problems are returned together.
func (f *File) Resolve(host target.Descriptor) (Build, error) {
	var result *multierror.Error
	invalid := func(field, format string, args ...interface{}) {
		result = multierror.Append(result, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	b := Build{
		Build:       f.Build,
		SourceURL:   strings.TrimSpace(f.SourceURL),
		GitHubToken: strings.TrimSpace(f.GitHubToken),
	}

	t, err := target.Parse(f.Target, host)
	if err != nil {
		invalid("target", "%v", err)
	}
	b.Target = t

	if b.SourceURL != "" {
		if err := validateHTTPURL(b.SourceURL); err != nil {
			invalid("source_url", "%v", err)
		}
	}

	mode, err := verify.ParseMode(f.Verify)
	if err != nil {
		invalid("verify", "%v", err)
	}
	b.Verify = mode

	b.Keyring = expandHome(f.Keyring)
	if mode == verify.ModeSignature && b.Keyring == "" {
		invalid("keyring", "required when verify is %q", verify.ModeSignature)
	}

	tempDir, err := resolveTempDir(f.TempDir)
	if err != nil {
		invalid("temp", "%v", err)
	}
	b.TempDir = tempDir

	opts := fetch.Options{
		Proxy:     strings.TrimSpace(f.Download.Proxy),
		UserAgent: f.Download.UserAgent,
	}
	if f.Download.Timeout != "" {
		d, err := time.ParseDuration(f.Download.Timeout)
		if err != nil {
			invalid("download.timeout", "invalid duration %q", f.Download.Timeout)
		}
		opts.Timeout = d
	}
	for _, key := range sortedKeys(f.Download.Headers) {
		if strings.TrimSpace(key) == "" {
			invalid("download.headers", "header name cannot be empty")
			continue
		}
		opts = opts.WithHeader(key, f.Download.Headers[key])
	}
	if err := opts.Validate(); err != nil {
		invalid("download", "%v", err)
	}
	b.Download = opts

	if err := result.ErrorOrNil(); err != nil {
		return Build{}, err
	}
	return b, nil
}

// PrebuiltPath is where the prebuilt executable for b.Target is cached.
func (b Build) PrebuiltPath() string {
	return filepath.Join(b.TempDir, b.Target.String())
}

// SourceDir is where the runtime source for b.Target is extracted.
func (b Build) SourceDir() string {
	return filepath.Join(b.TempDir, b.Target.Version)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}

func resolveTempDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, DefaultTempDirName), nil
	}
	dir = expandHome(dir)
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", dir, err)
	}
	return abs, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
