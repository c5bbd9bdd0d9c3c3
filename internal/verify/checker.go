package verify

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck

	"github.com/ZebulonRouseFrantzich/nodepack/internal/fetch"
)

// Mode selects how a downloaded artifact is checked.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeChecksum  Mode = "checksum"
	ModeSignature Mode = "signature"
)

// ChecksumFile is the checksum list published next to each runtime release.
const ChecksumFile = "SHASUMS256.txt"

// ParseMode converts a config or flag value into a Mode. The empty string
// means ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeChecksum, ModeSignature:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown verify mode %q (want none, checksum or signature)", s)
	}
}

// Getter reads small response bodies. *fetch.Fetcher implements it.
type Getter interface {
	Get(ctx context.Context, url string, opts fetch.Options) ([]byte, error)
}

// Checker resolves the expected digest of an artifact from the checksum list
// published beside it.
type Checker struct {
	getter  Getter
	mode    Mode
	keyring openpgp.EntityList
}

// NewChecker creates a checker. ModeSignature requires a keyring.
func NewChecker(getter Getter, mode Mode, keyring openpgp.EntityList) (*Checker, error) {
	if mode == ModeSignature && len(keyring) == 0 {
		return nil, fmt.Errorf("signature verification requires a keyring")
	}
	return &Checker{getter: getter, mode: mode, keyring: keyring}, nil
}

// Mode returns the configured verification mode.
func (c *Checker) Mode() Mode {
	return c.mode
}

// ChecksumURL returns the checksum list URL for an artifact URL. The signed
// variant carries an ".asc" suffix.
func ChecksumURL(artifactURL string, signed bool) (string, error) {
	u, err := url.Parse(artifactURL)
	if err != nil {
		return "", fmt.Errorf("parse artifact URL: %w", err)
	}
	name := ChecksumFile
	if signed {
		name += ".asc"
	}
	u.Path = path.Join(path.Dir(u.Path), name)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Expected returns the hex SHA-256 the artifact at artifactURL must have.
// It returns "" in ModeNone.
func (c *Checker) Expected(ctx context.Context, artifactURL string, opts fetch.Options) (string, error) {
	if c.mode == ModeNone {
		return "", nil
	}

	signed := c.mode == ModeSignature
	sumsURL, err := ChecksumURL(artifactURL, signed)
	if err != nil {
		return "", err
	}

	data, err := c.getter.Get(ctx, sumsURL, opts)
	if err != nil {
		return "", fmt.Errorf("get checksums: %w", err)
	}

	if signed {
		data, err = VerifyClearsigned(c.keyring, sumsURL, data)
		if err != nil {
			return "", err
		}
	}

	sums, err := ParseChecksums(data)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(artifactURL)
	if err != nil {
		return "", fmt.Errorf("parse artifact URL: %w", err)
	}
	return sums.Lookup(path.Base(u.Path))
}
