package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/platform"
)

// Parser reads configuration files, injecting host platform details into
// Lua configs.
type Parser struct {
	detector platform.Detector
	logger   Logger
}

// NewParser creates a parser. A nil detector leaves the platform table out.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: defaultLogger()}
}

// WithLogger returns a copy of p that logs to logger.
func (p *Parser) WithLogger(logger Logger) *Parser {
	cp := *p
	if logger == nil {
		logger = defaultLogger()
	}
	cp.logger = logger
	return &cp
}

// ParseFile loads path, choosing the format from its extension: .lua, or
// .yaml / .yml.
func (p *Parser) ParseFile(ctx context.Context, path string) (*File, error) {
	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	p.logger.Debug("parsing config", "path", path, "format", ext)

	switch ext {
	case ".lua":
		return p.ParseString(ctx, string(data))
	case ".yaml", ".yml":
		return p.ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .lua, .yaml or .yml)", ext)
	}
}

// ParseString evaluates a Lua config.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*File, error) {
	if len(luaCode) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", len(luaCode), MaxConfigSize),
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("config evaluation aborted: %w", ctxErr)
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractFile(L)
}

// ParseYAML decodes a YAML config. Unknown keys are rejected.
func (p *Parser) ParseYAML(data []byte) (*File, error) {
	f := &File{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		return nil, &ParseError{
			Message: "YAML syntax error",
			Detail:  err.Error(),
		}
	}

	return f, nil
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua or YAML error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// FormatError formats err for user display. In verbose mode the raw parser
// detail is kept, including any stack traceback.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return err.Error()
	}
	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
	}
	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	return fmt.Sprintf("%s: %s", parseErr.Message, detail)
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxConfigSize),
		}
	}
	return data, nil
}

// extractFile reads the global "nodepack" table.
func extractFile(L *lua.LState) (*File, error) {
	global := L.GetGlobal(luaGlobalNodepack)
	if global.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'nodepack' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}
	table := global.(*lua.LTable)

	f := &File{}
	var err error

	if f.Build, err = optBool(table, luaFieldBuild); err != nil {
		return nil, err
	}
	strFields := []struct {
		name string
		dst  *string
	}{
		{luaFieldTarget, &f.Target},
		{luaFieldSourceURL, &f.SourceURL},
		{luaFieldToken, &f.GitHubToken},
		{luaFieldTemp, &f.TempDir},
		{luaFieldVerify, &f.Verify},
		{luaFieldKeyring, &f.Keyring},
	}
	for _, sf := range strFields {
		if *sf.dst, err = optString(table, sf.name); err != nil {
			return nil, err
		}
	}

	if dl := table.RawGetString(luaFieldDownload); dl.Type() == lua.LTTable {
		if f.Download, err = extractDownload(dl.(*lua.LTable)); err != nil {
			return nil, err
		}
	} else if dl.Type() != lua.LTNil {
		return nil, fieldTypeError(luaFieldDownload, "table", dl)
	}

	return f, nil
}

func extractDownload(table *lua.LTable) (DownloadFile, error) {
	var d DownloadFile
	var err error

	if d.Proxy, err = optString(table, luaFieldProxy); err != nil {
		return d, err
	}
	if d.UserAgent, err = optString(table, luaFieldUserAgent); err != nil {
		return d, err
	}

	// timeout may be a duration string or a number of seconds
	switch v := table.RawGetString(luaFieldTimeout); v.Type() {
	case lua.LTNil:
	case lua.LTString:
		d.Timeout = v.String()
	case lua.LTNumber:
		d.Timeout = strconv.FormatFloat(float64(lua.LVAsNumber(v)), 'f', -1, 64) + "s"
	default:
		return d, fieldTypeError(luaFieldDownload+"."+luaFieldTimeout, "string or number", v)
	}

	headers := table.RawGetString(luaFieldHeaders)
	switch headers.Type() {
	case lua.LTNil:
	case lua.LTTable:
		d.Headers = make(map[string]string)
		var bad lua.LValue
		headers.(*lua.LTable).ForEach(func(key, value lua.LValue) {
			if key.Type() != lua.LTString || value.Type() != lua.LTString {
				bad = value
				return
			}
			d.Headers[key.String()] = value.String()
		})
		if bad != nil {
			return d, fieldTypeError(luaFieldDownload+"."+luaFieldHeaders, "string keys and values", bad)
		}
	default:
		return d, fieldTypeError(luaFieldDownload+"."+luaFieldHeaders, "table", headers)
	}

	return d, nil
}

func optString(table *lua.LTable, field string) (string, error) {
	v := table.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return "", nil
	case lua.LTString:
		return v.String(), nil
	default:
		return "", fieldTypeError(field, "string", v)
	}
}

func optBool(table *lua.LTable, field string) (bool, error) {
	v := table.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return false, nil
	case lua.LTBool:
		return bool(v.(lua.LBool)), nil
	default:
		return false, fieldTypeError(field, "boolean", v)
	}
}

func fieldTypeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: fmt.Sprintf("invalid value for '%s'", field),
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}
