package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides f with any NODEPACK_* variables that are set.
// NODEPACK_GH_TOKEN wins over GITHUB_TOKEN. A nil lookup uses os.LookupEnv.
func (f *File) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	strVars := []struct {
		key string
		dst *string
	}{
		{EnvTemp, &f.TempDir},
		{EnvSourceURL, &f.SourceURL},
		{EnvTarget, &f.Target},
		{EnvTimeout, &f.Download.Timeout},
		{EnvProxy, &f.Download.Proxy},
		{EnvVerify, &f.Verify},
		{EnvKeyring, &f.Keyring},
		{EnvGitHub, &f.GitHubToken},
		{EnvToken, &f.GitHubToken},
	}
	for _, v := range strVars {
		if val, ok := lookup(v.key); ok && val != "" {
			*v.dst = val
		}
	}

	var result *multierror.Error
	if val, ok := lookup(EnvBuild); ok && val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			result = multierror.Append(result, &ValidationError{
				Field:   EnvBuild,
				Message: fmt.Sprintf("invalid boolean %q", val),
			})
		} else {
			f.Build = b
		}
	}

	return result.ErrorOrNil()
}
