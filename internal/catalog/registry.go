package catalog

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/filmq/internal/domain"
	"github.com/John-Robertt/filmq/internal/htmlmeta"
	"github.com/John-Robertt/filmq/internal/nfo"
)

// Decoder 把“文件格式差异”限制在解码器内部；加载流程只依赖统一接口与 Movie。
//
// 约束：
// - Decode 必须是纯函数：相同输入 => 相同输出
// - 返回的电影顺序即文件内顺序
type Decoder interface {
	Name() string
	Extensions() []string // 小写、带点，例如 ".nfo"
	Decode(b []byte) ([]domain.Movie, error)
}

// Registry 是解码器的只读注册表（按 name 与扩展名索引）。
type Registry struct {
	byName map[string]Decoder
	byExt  map[string]Decoder
}

func NewRegistry(decoders ...Decoder) (Registry, error) {
	byName := make(map[string]Decoder, len(decoders))
	byExt := make(map[string]Decoder, len(decoders)*2)
	for _, d := range decoders {
		if d == nil {
			return Registry{}, fmt.Errorf("decoder 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(d.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("decoder.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 decoder：%q", name)
		}
		byName[name] = d
		for _, ext := range d.Extensions() {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if prev, ok := byExt[ext]; ok {
				return Registry{}, fmt.Errorf("扩展名 %q 同时注册给 %q 与 %q", ext, prev.Name(), name)
			}
			byExt[ext] = d
		}
	}
	return Registry{byName: byName, byExt: byExt}, nil
}

// DefaultRegistry 包含全部内置格式。
func DefaultRegistry() Registry {
	r, err := NewRegistry(nfoDecoder{}, jsonDecoder{}, yamlDecoder{}, htmlDecoder{})
	if err != nil {
		panic(err) // 内置注册表是常量配置
	}
	return r
}

func (r Registry) Get(name string) (Decoder, bool) {
	if r.byName == nil {
		return nil, false
	}
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// ForExt 按扩展名（大小写不敏感）查找解码器。
func (r Registry) ForExt(ext string) (Decoder, bool) {
	if r.byExt == nil {
		return nil, false
	}
	d, ok := r.byExt[strings.ToLower(ext)]
	return d, ok
}

type nfoDecoder struct{}

func (nfoDecoder) Name() string         { return FormatNFO }
func (nfoDecoder) Extensions() []string { return []string{".nfo"} }
func (nfoDecoder) Decode(b []byte) ([]domain.Movie, error) {
	m, err := nfo.Decode(b)
	if err != nil {
		return nil, err
	}
	return []domain.Movie{m}, nil
}

type htmlDecoder struct{}

func (htmlDecoder) Name() string         { return FormatHTML }
func (htmlDecoder) Extensions() []string { return []string{".html", ".htm"} }
func (htmlDecoder) Decode(b []byte) ([]domain.Movie, error) {
	return htmlmeta.Parse(b)
}

type jsonDecoder struct{}

func (jsonDecoder) Name() string         { return FormatJSON }
func (jsonDecoder) Extensions() []string { return []string{".json"} }
func (jsonDecoder) Decode(b []byte) ([]domain.Movie, error) {
	rs, err := decodeJSON(b)
	if err != nil {
		return nil, err
	}
	return toMovies(rs), nil
}

type yamlDecoder struct{}

func (yamlDecoder) Name() string         { return FormatYAML }
func (yamlDecoder) Extensions() []string { return []string{".yaml", ".yml"} }
func (yamlDecoder) Decode(b []byte) ([]domain.Movie, error) {
	rs, err := decodeYAML(b)
	if err != nil {
		return nil, err
	}
	return toMovies(rs), nil
}

func toMovies(rs []record) []domain.Movie {
	out := make([]domain.Movie, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.toMovie())
	}
	return out
}
