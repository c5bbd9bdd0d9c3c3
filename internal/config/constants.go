package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalNodepack = "nodepack"
	luaFieldBuild     = "build"
	luaFieldTarget    = "target"
	luaFieldSourceURL = "source_url"
	luaFieldToken     = "github_token"
	luaFieldTemp      = "temp"
	luaFieldVerify    = "verify"
	luaFieldKeyring   = "keyring"
	luaFieldDownload  = "download"
	luaFieldProxy     = "proxy"
	luaFieldUserAgent = "user_agent"
	luaFieldTimeout   = "timeout"
	luaFieldHeaders   = "headers"
)

// Environment variables consulted by File.ApplyEnv.
const (
	EnvTemp      = "NODEPACK_TEMP"
	EnvSourceURL = "NODEPACK_SOURCE_URL"
	EnvBuild     = "NODEPACK_BUILD"
	EnvTarget    = "NODEPACK_TARGET"
	EnvTimeout   = "NODEPACK_TIMEOUT"
	EnvProxy     = "NODEPACK_PROXY"
	EnvVerify    = "NODEPACK_VERIFY"
	EnvKeyring   = "NODEPACK_KEYRING"
	EnvToken     = "NODEPACK_GH_TOKEN"
	EnvGitHub    = "GITHUB_TOKEN"
)

const (
	// MaxConfigSize bounds config files read from disk.
	MaxConfigSize = 1 << 20

	// DefaultParseTimeout applies when the caller's context has no deadline.
	DefaultParseTimeout = 5 * time.Second

	// DefaultTempDirName is created under the user's home directory when no
	// temp directory is configured.
	DefaultTempDirName = ".nodepack"
)
