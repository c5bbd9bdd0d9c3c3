package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/platform"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/target"
	"github.com/ZebulonRouseFrantzich/nodepack/internal/verify"
)

// mockDetector is a test implementation of platform.Detector.
type mockDetector struct {
	info *platform.Info
	err  error
}

func (m *mockDetector) Detect(ctx context.Context) (*platform.Info, error) {
	return m.info, m.err
}

func hostDescriptor(t *testing.T) target.Descriptor {
	t.Helper()
	d, err := target.New(target.Linux, target.X64, target.DefaultVersion)
	if err != nil {
		t.Fatalf("target.New() error = %v", err)
	}
	return d
}

func TestParser_ParseString_Minimal(t *testing.T) {
	parser := NewParser(nil)
	f, err := parser.ParseString(context.Background(), `nodepack = { build = true }`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if !f.Build {
		t.Error("Build = false, want true")
	}
	if f.Target != "" || f.Download.Headers != nil {
		t.Errorf("unexpected defaults: %+v", f)
	}
}

func TestParser_ParseString_Full(t *testing.T) {
	luaCode := `
		nodepack = {
			build = false,
			target = "windows-x64-14.0.0",
			source_url = "https://mirror.example/node.tar.gz",
			github_token = "abc",
			temp = "/var/cache/nodepack",
			verify = "signature",
			keyring = "/etc/nodepack/nodejs.gpg",
			download = {
				proxy = "http://proxy:3128",
				user_agent = "ci",
				timeout = 90,
				headers = { ["X-Mirror-Token"] = "t0k" },
			},
		}
	`

	f, err := NewParser(nil).ParseString(context.Background(), luaCode)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	want := &File{
		Target:      "windows-x64-14.0.0",
		SourceURL:   "https://mirror.example/node.tar.gz",
		GitHubToken: "abc",
		TempDir:     "/var/cache/nodepack",
		Verify:      "signature",
		Keyring:     "/etc/nodepack/nodejs.gpg",
		Download: DownloadFile{
			Proxy:     "http://proxy:3128",
			UserAgent: "ci",
			Timeout:   "90s",
			Headers:   map[string]string{"X-Mirror-Token": "t0k"},
		},
	}
	if !reflect.DeepEqual(f, want) {
		t.Errorf("ParseString() = %+v, want %+v", f, want)
	}
}

func TestParser_ParseString_PlatformConditionals(t *testing.T) {
	detector := &mockDetector{info: &platform.Info{
		OS:       "linux",
		Arch:     "arm64",
		ArchRaw:  "aarch64",
		Platform: "alpine",
		Family:   platform.FamilyAlpine,
		Version:  "3.19",
	}}
	luaCode := `
		nodepack = {
			target = platform.is_alpine and "alpine" or "linux",
			verify = platform.when(platform.is_arm64, "checksum"),
		}
	`

	f, err := NewParser(detector).ParseString(context.Background(), luaCode)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if f.Target != "alpine" {
		t.Errorf("Target = %q, want alpine", f.Target)
	}
	if f.Verify != "checksum" {
		t.Errorf("Verify = %q, want checksum", f.Verify)
	}
}

func TestParser_ParseString_DetectorError(t *testing.T) {
	detector := &mockDetector{err: errors.New("boom")}
	if _, err := NewParser(detector).ParseString(context.Background(), `nodepack = {}`); err == nil {
		t.Fatal("expected error but got none")
	}
}

func TestParser_ParseString_Errors(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		errMsg string
	}{
		{"syntax error", `nodepack = {`, "Lua syntax error"},
		{"missing table", `x = 1`, "missing or invalid 'nodepack' table"},
		{"table is a string", `nodepack = "yes"`, "missing or invalid 'nodepack' table"},
		{"build not bool", `nodepack = { build = "yes" }`, "invalid value for 'build'"},
		{"target not string", `nodepack = { target = 14 }`, "invalid value for 'target'"},
		{"download not table", `nodepack = { download = "fast" }`, "invalid value for 'download'"},
		{"timeout wrong type", `nodepack = { download = { timeout = true } }`, "download.timeout"},
		{"header value not string", `nodepack = { download = { headers = { A = 1 } } }`, "download.headers"},
		{"sandboxed os", `os.exit(1)`, "Lua syntax error"},
	}

	parser := NewParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.ParseString(context.Background(), tt.code)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error = %T, want *ParseError", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestParser_ParseString_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewParser(nil).ParseString(ctx, `while true do end`)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestParser_ParseString_TooLarge(t *testing.T) {
	code := "nodepack = {}\n--" + strings.Repeat("x", MaxConfigSize)
	_, err := NewParser(nil).ParseString(context.Background(), code)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestParser_ParseYAML(t *testing.T) {
	parser := NewParser(nil)

	f, err := parser.ParseYAML([]byte(""))
	if err != nil {
		t.Fatalf("ParseYAML(empty) error = %v", err)
	}
	if !reflect.DeepEqual(f, &File{}) {
		t.Errorf("ParseYAML(empty) = %+v, want zero File", f)
	}

	if _, err := parser.ParseYAML([]byte("bogus: 1\n")); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := parser.ParseYAML([]byte("build: [\n")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestParser_LuaAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, "cache")

	luaPath := filepath.Join(dir, "nodepack.lua")
	luaCode := `
		nodepack = {
			target = "mac-arm64-16.3.0",
			temp = "` + filepath.ToSlash(temp) + `",
			verify = "checksum",
			download = {
				timeout = "90s",
				user_agent = "ci",
				headers = { ["X-A"] = "1", ["X-B"] = "2" },
			},
		}
	`
	yamlPath := filepath.Join(dir, "nodepack.yaml")
	yamlCode := `
target: mac-arm64-16.3.0
temp: ` + filepath.ToSlash(temp) + `
verify: checksum
download:
  timeout: 90s
  user_agent: ci
  headers:
    X-A: "1"
    X-B: "2"
`
	if err := os.WriteFile(luaPath, []byte(luaCode), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(yamlCode), 0644); err != nil {
		t.Fatal(err)
	}

	parser := NewParser(nil)
	host := hostDescriptor(t)

	var builds []Build
	for _, path := range []string{luaPath, yamlPath} {
		f, err := parser.ParseFile(context.Background(), path)
		if err != nil {
			t.Fatalf("ParseFile(%s) error = %v", path, err)
		}
		b, err := f.Resolve(host)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", path, err)
		}
		builds = append(builds, b)
	}

	if !reflect.DeepEqual(builds[0], builds[1]) {
		t.Errorf("lua and yaml builds differ:\nlua:  %+v\nyaml: %+v", builds[0], builds[1])
	}
	if builds[0].Target.String() != "mac-arm64-16.3.0" {
		t.Errorf("Target = %s", builds[0].Target)
	}
	if builds[0].Verify != verify.ModeChecksum {
		t.Errorf("Verify = %s", builds[0].Verify)
	}
	if builds[0].Download.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v", builds[0].Download.Timeout)
	}
}

func TestParser_ParseFile_Errors(t *testing.T) {
	dir := t.TempDir()
	parser := NewParser(nil)

	if _, err := parser.ParseFile(context.Background(), filepath.Join(dir, "missing.lua")); err == nil {
		t.Error("expected error for missing file")
	}

	toml := filepath.Join(dir, "nodepack.toml")
	if err := os.WriteFile(toml, []byte("build = true"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := parser.ParseFile(context.Background(), toml); err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Errorf("error = %v, want unsupported format", err)
	}
}

func TestFormatError(t *testing.T) {
	err := &ParseError{Message: "Lua syntax error", Detail: "line 1: bad\nstack traceback:\n\t[G]: ?"}

	if got := FormatError(err, false); got != "Lua syntax error: line 1: bad" {
		t.Errorf("FormatError(quiet) = %q", got)
	}
	if got := FormatError(err, true); !strings.Contains(got, "stack traceback") {
		t.Errorf("FormatError(verbose) = %q, want traceback", got)
	}
	if got := FormatError(errors.New("plain"), false); got != "plain" {
		t.Errorf("FormatError(plain) = %q", got)
	}
}
