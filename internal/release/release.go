// Package release finds prebuilt runtime binaries among the assets of the
// latest published GitHub release.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/fetch"
)

// DefaultEndpoint is the latest-release metadata URL for prebuilt runtimes.
const DefaultEndpoint = "https://api.github.com/repos/nexe/nexe/releases/latest"

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Release is the subset of the GitHub release payload used here.
type Release struct {
	TagName string  `json:"tag_name"`
	Name    string  `json:"name"`
	Assets  []Asset `json:"assets"`
}

// Getter reads small response bodies. *fetch.Fetcher implements it.
type Getter interface {
	Get(ctx context.Context, url string, opts fetch.Options) ([]byte, error)
}

// Resolver looks up release assets.
type Resolver struct {
	getter   Getter
	endpoint string
}

// NewResolver creates a resolver querying endpoint. An empty endpoint means
// DefaultEndpoint.
func NewResolver(getter Getter, endpoint string) *Resolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Resolver{getter: getter, endpoint: endpoint}
}

// Endpoint returns the metadata URL the resolver queries.
func (r *Resolver) Endpoint() string {
	return r.endpoint
}

// Latest fetches the most recent published release. When token is set the
// request carries an Authorization header on a derived copy of opts.
func (r *Resolver) Latest(ctx context.Context, opts fetch.Options, token string) (*Release, error) {
	if token != "" {
		opts = opts.WithHeader("Authorization", "token "+token)
	}
	if opts.Header("Accept") == "" {
		opts = opts.WithHeader("Accept", "application/vnd.github+json")
	}

	data, err := r.getter.Get(ctx, r.endpoint, opts)
	if err != nil {
		if rlErr := rateLimitError(err); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("get latest release: %w", err)
	}

	var rel Release
	if err := json.Unmarshal(data, &rel); err != nil {
		return nil, fmt.Errorf("decode release metadata: %w", err)
	}
	return &rel, nil
}

// Resolve returns the asset of the latest release whose name equals assetName.
func (r *Resolver) Resolve(ctx context.Context, opts fetch.Options, token, assetName string) (Asset, error) {
	rel, err := r.Latest(ctx, opts, token)
	if err != nil {
		return Asset{}, err
	}

	asset, ok := rel.Find(assetName)
	if !ok {
		return Asset{}, &AssetNotFoundError{Name: assetName, Release: rel.TagName}
	}
	return asset, nil
}

// Find returns the asset named exactly name.
func (rel *Release) Find(name string) (Asset, bool) {
	for _, a := range rel.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// AssetNotFoundError reports that no prebuilt runtime exists for a target.
type AssetNotFoundError struct {
	Name    string
	Release string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("%s not available, create it using the --build flag", e.Name)
}

// RateLimitError reports an exhausted GitHub API quota.
type RateLimitError struct {
	ResetAt time.Time // zero if the server did not say
}

func (e *RateLimitError) Error() string {
	msg := "GitHub API rate limit exceeded"
	if !e.ResetAt.IsZero() {
		msg += fmt.Sprintf(", resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
	}
	return msg + "; set a GitHub token to raise the limit"
}

func rateLimitError(err error) *RateLimitError {
	var tErr *fetch.TransportError
	if !errors.As(err, &tErr) || tErr.Header == nil {
		return nil
	}
	if tErr.StatusCode != http.StatusForbidden && tErr.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	if tErr.Header.Get("X-RateLimit-Remaining") != "0" {
		return nil
	}

	rl := &RateLimitError{}
	if reset, err := strconv.ParseInt(tErr.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		rl.ResetAt = time.Unix(reset, 0)
	}
	return rl
}
