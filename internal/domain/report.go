package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	FileStatusLoaded  = "loaded"
	FileStatusSkipped = "skipped"
)

const (
	ErrCodeIOFailed          = "io_failed"
	ErrCodeParseFailed       = "parse_failed"
	ErrCodeInvalidMovie      = "invalid_movie"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// QueryReport 是对外稳定输出（report.json / stdout JSON）的结构。
// 四个查询各占一个字段；未执行的查询保持为 nil（JSON 输出 null），执行但无结果时为空数组/空对象。
type QueryReport struct {
	Path        string    `json:"path"`
	GeneratedAt time.Time `json:"generated_at"`

	Summary LoadSummary  `json:"summary"`
	Files   []FileResult `json:"files"`

	SelfPortrayingActors []string        `json:"self_portraying_actors"`
	DirectorActors       *DirectorActors `json:"director_actors"`
	DirectedAndActed     []MovieSummary  `json:"directed_and_acted"`
	YearCategories       *YearCategories `json:"year_categories"`
}

type LoadSummary struct {
	Movies  int `json:"movies"`
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// FileResult 记录一个输入文件的加载结果。
type FileResult struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Movies    int    `json:"movies"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type DirectorActors struct {
	Director string   `json:"director"`
	Actors   []string `json:"actors"`
}

type YearCategories struct {
	Year       int                       `json:"year"`
	Categories map[string][]MovieSummary `json:"categories"`
}

// MovieSummary 是 Movie 的 JSON 视图：集合字段输出为升序数组。
type MovieSummary struct {
	Title       string              `json:"title"`
	ReleaseYear int                 `json:"release_year"`
	Categories  []string            `json:"categories"`
	Directors   []string            `json:"directors"`
	Actors      []string            `json:"actors"`
	Cast        map[string][]string `json:"cast,omitempty"`
}

func Summarize(m *Movie) MovieSummary {
	s := MovieSummary{
		Title:       m.Title,
		ReleaseYear: m.ReleaseYear,
		Categories:  m.Categories.Sorted(),
		Directors:   m.Directors.Sorted(),
		Actors:      m.Actors.Sorted(),
	}
	if len(m.CastByCharacter) > 0 {
		s.Cast = make(map[string][]string, len(m.CastByCharacter))
		for ch, as := range m.CastByCharacter {
			s.Cast[ch] = as.Sorted()
		}
	}
	return s
}

func SummarizeAll(ms []*Movie) []MovieSummary {
	out := make([]MovieSummary, 0, len(ms))
	for _, m := range ms {
		out = append(out, Summarize(m))
	}
	return out
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) files 稳定排序：按 path 字典序；集合类结果排序，nil 切片/map 补成空值
// 3) summary 由 files 计算得出（Movies 由调用方填写）
//
// 注意：DirectedAndActed 与 YearCategories 内部的电影顺序是查询语义的一部分，这里不动。
func (r *QueryReport) Finalize() {
	r.GeneratedAt = r.GeneratedAt.UTC()

	if r.Files == nil {
		r.Files = []FileResult{}
	}
	sort.SliceStable(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })

	if r.SelfPortrayingActors != nil {
		sort.Strings(r.SelfPortrayingActors)
	}
	if r.DirectorActors != nil && r.DirectorActors.Actors == nil {
		r.DirectorActors.Actors = []string{}
	}
	if r.YearCategories != nil && r.YearCategories.Categories == nil {
		r.YearCategories.Categories = map[string][]MovieSummary{}
	}

	loaded, skipped := 0, 0
	for _, f := range r.Files {
		switch f.Status {
		case FileStatusLoaded:
			loaded++
		case FileStatusSkipped:
			skipped++
		}
	}
	r.Summary.Loaded = loaded
	r.Summary.Skipped = skipped
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r QueryReport) MarshalJSON() ([]byte, error) {
	type Alias QueryReport
	return json.Marshal(Alias(r))
}
