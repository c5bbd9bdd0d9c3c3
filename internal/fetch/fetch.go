package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "nodepack/1.0"
	// MaxMetadataSize caps bodies read by Get.
	MaxMetadataSize = 10 << 20
	maxRedirects    = 10
)

// Request describes one artifact to fetch.
type Request struct {
	URL string
	// Dir is the destination directory. When extracting, the archive contents
	// land directly in Dir.
	Dir string
	// Filename names the written file when not extracting. Defaults to the
	// last path segment of URL.
	Filename string
	// Extract pipes the body through gzip+tar extraction.
	Extract bool
	// Strip drops this many leading path segments from every archive entry.
	Strip int
	// SHA256 is the expected hex digest of the raw body. Empty skips the check.
	SHA256 string
}

// Fetcher streams remote artifacts to disk.
type Fetcher struct {
	client    *http.Client
	userAgent string
	// fixedClient disables per-call proxy transports
	fixedClient bool
}

// NewFetcher creates a fetcher with its own HTTP client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport:     newTransport(nil),
			CheckRedirect: checkRedirect,
		},
		userAgent: DefaultUserAgent,
	}
}

// NewFetcherWithClient creates a fetcher that sends every request through
// client. Options.Proxy is ignored in that case.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client, userAgent: DefaultUserAgent, fixedClient: true}
}

func newTransport(proxy *url.URL) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("too many redirects")
	}
	return nil
}

// Fetch streams req.URL into req.Dir and returns the path written: the file
// path, or req.Dir when extracting. Any failure leaves no output behind.
func (f *Fetcher) Fetch(ctx context.Context, req Request, opts Options, obs Observer) (string, error) {
	if req.URL == "" {
		return "", fmt.Errorf("fetch: URL is required")
	}
	if req.Dir == "" {
		return "", fmt.Errorf("fetch: destination directory is required")
	}
	if req.Strip < 0 {
		return "", fmt.Errorf("fetch: strip must not be negative")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := f.open(ctx, req.URL, opts)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body := &progressReader{r: resp.Body, obs: obs, total: resp.ContentLength}
	var src io.Reader = body
	var hasher hash.Hash
	if req.SHA256 != "" {
		hasher = sha256.New()
		src = io.TeeReader(body, hasher)
	}

	var dest string
	if req.Extract {
		dest, err = f.extractTo(src, req)
	} else {
		dest, err = f.writeTo(src, req)
	}
	if err != nil {
		if body.err != nil {
			return "", &TransportError{URL: req.URL, StatusCode: resp.StatusCode, Err: body.err}
		}
		return "", err
	}

	if hasher != nil {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, req.SHA256) {
			_ = os.RemoveAll(dest)
			return "", &ChecksumError{URL: req.URL, Expected: req.SHA256, Actual: actual}
		}
	}

	return dest, nil
}

// Get reads a small response body into memory, up to MaxMetadataSize bytes.
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := f.open(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMetadataSize+1))
	if err != nil {
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	if len(data) > MaxMetadataSize {
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("response larger than %d bytes", MaxMetadataSize)}
	}
	return data, nil
}

func (f *Fetcher) open(ctx context.Context, rawURL string, opts Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}

	opts.applyHeaders(req)
	if req.Header.Get("User-Agent") == "" {
		ua := f.userAgent
		if opts.UserAgent != "" {
			ua = opts.UserAgent
		}
		req.Header.Set("User-Agent", ua)
	}

	client, err := f.clientFor(opts)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	return resp, nil
}

func (f *Fetcher) clientFor(opts Options) (*http.Client, error) {
	if opts.Proxy == "" || f.fixedClient {
		return f.client, nil
	}

	proxy, err := url.Parse(opts.Proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy URL: %w", err)
	}
	return &http.Client{
		Transport:     newTransport(proxy),
		CheckRedirect: f.client.CheckRedirect,
	}, nil
}

// writeTo writes src to req.Dir/filename through a temporary file.
func (f *Fetcher) writeTo(src io.Reader, req Request) (string, error) {
	name := req.Filename
	if name == "" {
		name = filenameFromURL(req.URL)
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("fetch: cannot derive a file name from %q", req.URL)
	}

	if err := os.MkdirAll(req.Dir, 0755); err != nil {
		return "", fmt.Errorf("create dest dir: %w", err)
	}

	destPath := filepath.Join(req.Dir, name)
	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, src); err != nil {
		return "", fmt.Errorf("write %s: %w", destPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return destPath, nil
}

// extractTo extracts src into a sibling staging directory and renames it to
// req.Dir once the whole stream has been consumed.
func (f *Fetcher) extractTo(src io.Reader, req Request) (string, error) {
	dest := filepath.Clean(req.Dir)
	if _, err := os.Stat(dest); err == nil {
		return "", &ExtractionError{Err: fmt.Errorf("destination %s already exists", dest)}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", &ExtractionError{Err: fmt.Errorf("stat destination: %w", err)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}

	staging, err := os.MkdirTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".partial-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			os.RemoveAll(staging)
		}
	}()

	if err := extractTarGz(src, staging, req.Strip); err != nil {
		return "", err
	}

	// tar stops at its end-of-archive marker; drain so progress and the
	// digest cover the full body
	if _, err := io.Copy(io.Discard, src); err != nil {
		return "", &ExtractionError{Err: fmt.Errorf("drain archive: %w", err)}
	}

	if err := os.Chmod(staging, 0755); err != nil {
		return "", fmt.Errorf("chmod staging dir: %w", err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return "", fmt.Errorf("rename staging dir: %w", err)
	}

	cleanupNeeded = false
	return dest, nil
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
