// Package config loads the build configuration for a nodepack run.
//
// A configuration file is either a Lua script (nodepack.lua) evaluated in a
// sandboxed gopher-lua VM, or a YAML document (nodepack.yaml). Lua configs
// see a read-only global "platform" table describing the host and must
// define a global "nodepack" table:
//
//	nodepack = {
//	  build = false,                    -- compile from source instead of using a prebuilt
//	  target = "linux-x64-14.15.3",     -- loose forms like "alpine" or "v14.0.0" work too
//	  temp = "~/.nodepack",
//	  source_url = "https://mirror.example/node.tar.gz",
//	  verify = platform.is_windows and "none" or "checksum",
//	  keyring = "~/.nodepack/nodejs.gpg",
//	  download = {
//	    proxy = "http://proxy:3128",
//	    user_agent = "nodepack",
//	    timeout = "2m",
//	    headers = { ["X-Mirror-Token"] = "abc" },
//	  },
//	}
//
// The YAML form uses the same keys at the document root.
//
// Loading is layered: file values, then environment (NODEPACK_* and
// GITHUB_TOKEN), then command-line flags. File.Resolve validates the result
// and reports every problem at once as a *multierror.Error of
// *ValidationError values.
package config
