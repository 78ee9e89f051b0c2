// Package catalog 从目录中加载电影记录，构造查询所需的内存集合。
//
// 支持的格式：Kodi NFO（.nfo）、数据集（.json/.yaml/.yml）、schema.org 微数据页面（.html/.htm）。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/filmq/internal/domain"
)

const (
	FormatNFO  = "nfo"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatHTML = "html"
)

// AllFormats 是默认启用的格式集合（固定顺序）。
var AllFormats = []string{FormatNFO, FormatJSON, FormatYAML, FormatHTML}

const DefaultConcurrency = 4

// Options 描述一次加载。
//
// - Root 必须是目录；<Root>/cache/ 永久排除（report 默认写在这里）
// - ExcludeDirs：相对 Root 的路径（若是绝对路径，则按绝对路径处理）
// - Formats 为空表示 AllFormats
// - Strict=false：单个文件失败只记录并跳过；Strict=true：首个失败即终止
// - Registry 为零值时使用 DefaultRegistry
type Options struct {
	Root        string
	ExcludeDirs []string
	Formats     []string
	Concurrency int
	Strict      bool
	Logger      *zap.Logger
	Registry    Registry
}

// Result 中 Movies 的顺序固定：先按文件相对路径，再按文件内顺序。
type Result struct {
	Movies []*domain.Movie
	Files  []domain.FileResult
}

// Error 是加载阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
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

type sourceFile struct {
	abs     string
	rel     string
	decoder Decoder
}

type parsed struct {
	movies []domain.Movie
	err    *Error
}

// Load 扫描 Root 并解析所有支持的文件。文件解析按 Concurrency 并发执行，但输出顺序与并发无关。
func Load(ctx context.Context, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	reg := opts.Registry
	if reg.byName == nil {
		reg = DefaultRegistry()
	}
	formats, err := enabledFormats(reg, opts.Formats)
	if err != nil {
		return Result{}, &Error{Code: domain.ErrCodeConfigInvalid, Path: opts.Root, Err: err}
	}

	files, err := scan(opts.Root, opts.ExcludeDirs, reg, formats)
	if err != nil {
		return Result{}, &Error{Code: domain.ErrCodeIOFailed, Path: opts.Root, Err: err}
	}
	log.Debug("扫描完成", zap.String("root", opts.Root), zap.Int("files", len(files)))

	workers := opts.Concurrency
	if workers < 1 {
		workers = DefaultConcurrency
	}

	results := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := files[i]
			ms, perr := parseFile(f)
			results[i] = parsed{movies: ms, err: perr}
			if perr != nil && opts.Strict {
				return perr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{
		Movies: make([]*domain.Movie, 0, len(files)),
		Files:  make([]domain.FileResult, 0, len(files)),
	}
	for i, f := range files {
		r := results[i]
		fr := domain.FileResult{Path: f.rel, Format: f.decoder.Name(), Status: domain.FileStatusLoaded, Movies: len(r.movies)}
		if r.err != nil {
			fr.Status = domain.FileStatusSkipped
			fr.Movies = 0
			fr.ErrorCode = r.err.Code
			fr.ErrorMsg = r.err.Err.Error()
			log.Warn("跳过无法解析的文件", zap.String("path", f.rel), zap.String("error_code", r.err.Code), zap.Error(r.err.Err))
			res.Files = append(res.Files, fr)
			continue
		}
		for j := range r.movies {
			res.Movies = append(res.Movies, &r.movies[j])
		}
		log.Debug("已加载", zap.String("path", f.rel), zap.Int("movies", len(r.movies)))
		res.Files = append(res.Files, fr)
	}

	log.Info("加载完成", zap.Int("files", len(res.Files)), zap.Int("movies", len(res.Movies)))
	return res, nil
}

func parseFile(f sourceFile) ([]domain.Movie, *Error) {
	b, err := os.ReadFile(f.abs)
	if err != nil {
		return nil, &Error{Code: domain.ErrCodeIOFailed, Path: f.rel, Err: err}
	}
	ms, err := f.decoder.Decode(b)
	if err != nil {
		return nil, &Error{Code: domain.ErrCodeParseFailed, Path: f.rel, Err: err}
	}
	return ms, nil
}

// enabledFormats 把配置中的格式名映射为解码器名；yml/htm 是 yaml/html 的别名。
func enabledFormats(reg Registry, in []string) (map[string]bool, error) {
	if len(in) == 0 {
		in = AllFormats
	}
	out := make(map[string]bool, len(in))
	for _, f := range in {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "yml":
			f = FormatYAML
		case "htm":
			f = FormatHTML
		}
		if _, ok := reg.Get(f); !ok {
			return nil, fmt.Errorf("不支持的格式：%q", f)
		}
		out[f] = true
	}
	return out, nil
}

// IsConfigFile 判断 name 是否为 filmq 的配置文件（加载时跳过）。
func IsConfigFile(name string) bool {
	switch strings.ToLower(name) {
	case "filmq.json", "filmq.yaml", "filmq.yml":
		return true
	default:
		return false
	}
}

func scan(root string, excludeDirs []string, reg Registry, formats map[string]bool) ([]sourceFile, error) {
	root = filepath.Clean(root)
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("不是目录：%q", root)
	}
	excluded := buildExcluded(root, excludeDirs)

	files := make([]sourceFile, 0, 64)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if IsConfigFile(name) {
			return nil
		}
		dec, ok := reg.ForExt(filepath.Ext(name))
		if !ok || !formats[dec.Name()] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, sourceFile{abs: path, rel: rel, decoder: dec})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	excluded = append(excluded, filepath.Join(root, "cache"))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
