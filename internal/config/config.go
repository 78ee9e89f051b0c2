package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/filmq/internal/catalog"
	"github.com/John-Robertt/filmq/internal/domain"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 filmq 配置文件。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = domain.ErrCodeConfigMissingPath
)

const (
	DefaultConcurrency = catalog.DefaultConcurrency
	DefaultLogLevel    = "info"
)

// FileNames 是配置文件的发现顺序：同目录下 JSON 优先。
var FileNames = []string{"filmq.json", "filmq.yaml", "filmq.yml"}

// CLIArgs 保留“是否显式指定”的信息，保证 --strict=false 这类覆盖可以实现。
type CLIArgs struct {
	Path string

	Strict    bool
	StrictSet bool

	LogLevel string
}

// FileConfig 对应 filmq.json / filmq.yaml 的解析结构。
type FileConfig struct {
	Path        string   `json:"path" yaml:"path"`
	ExcludeDirs []string `json:"exclude_dirs" yaml:"exclude_dirs"`
	Formats     []string `json:"formats" yaml:"formats"`
	Concurrency int      `json:"concurrency" yaml:"concurrency"`
	Strict      *bool    `json:"strict" yaml:"strict"`
	LogLevel    string   `json:"log_level" yaml:"log_level"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path        string
	ConfigFile  string // 实际读取的配置文件；未读取时为空
	ExcludeDirs []string
	Formats     []string
	Concurrency int
	Strict      bool
	LogLevel    string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/filmq.{json,yaml,yml}（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/filmq.{json,yaml,yml}（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - strict：CLI --strict/--strict=false > config > 默认 false
// - log_level：CLI > config > 默认 info
// - 其他字段：仅由 config 控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		fc, cfgPath, exists, err := discover(absPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath, exists)
	}

	// CLI 没给 path：必须读取 <cwd>/filmq.*，且其中必须包含 path。
	fc, cfgPath, exists, err := discover(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, FileNames[0]), Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath, true)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string, cfgRead bool) (EffectiveConfig, error) {
	strict := false
	if cli.StrictSet {
		strict = cli.Strict
	} else if fc.Strict != nil {
		strict = *fc.Strict
	}

	level := DefaultLogLevel
	if strings.TrimSpace(cli.LogLevel) != "" {
		level = cli.LogLevel
	} else if strings.TrimSpace(fc.LogLevel) != "" {
		level = fc.LogLevel
	}
	level, err := normLogLevel(level)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	formats := make([]string, 0, len(fc.Formats))
	for _, f := range fc.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "":
			continue
		case catalog.FormatNFO, catalog.FormatJSON, catalog.FormatYAML, catalog.FormatHTML, "yml", "htm":
			formats = append(formats, f)
		default:
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("formats 只能是 nfo/json/yaml/html，实际包含 %q", f)}
		}
	}
	if len(formats) == 0 {
		formats = append(formats, catalog.AllFormats...)
	}

	eff := EffectiveConfig{
		Path:        absPath,
		ExcludeDirs: append([]string(nil), fc.ExcludeDirs...),
		Formats:     formats,
		Concurrency: concurrency,
		Strict:      strict,
		LogLevel:    level,
	}
	if cfgRead {
		eff.ConfigFile = cfgPath
	}
	return eff, nil
}

func normLogLevel(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return "debug", nil
	case "info":
		return "info", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", s)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// discover 在 dir 下按 FileNames 顺序查找第一个存在的配置文件并解析。
// 返回值 exists 表示是否找到；cfgPath 为找到的文件，未找到时为首选文件名。
func discover(dir string) (fc FileConfig, cfgPath string, exists bool, err error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		fc, exists, err = readFileConfig(p)
		if err != nil {
			return FileConfig{}, p, true, err
		}
		if exists {
			return fc, p, true, nil
		}
	}
	return FileConfig{}, filepath.Join(dir, FileNames[0]), false, nil
}

// readFileConfig 读取并解析配置文件（按扩展名选择 JSON 或 YAML）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = json.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
