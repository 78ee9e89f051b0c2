// Package query 实现对内存电影集合的四个固定报表查询。
//
// Engine 只读持有调用方传入的切片：不复制、不修改。所有查询都是纯函数，
// 结果每次新建；同一个 Engine 可被多个 goroutine 并发调用（前提是外部不在查询期间修改数据）。
package query

import (
	"errors"
	"fmt"
	"sort"

	"github.com/John-Robertt/filmq/internal/domain"
)

var (
	// ErrNilCatalog 表示构造时没有提供电影集合（nil 切片）。空切片是合法输入。
	ErrNilCatalog = errors.New("query: 电影集合不能为 nil")
	// ErrNilMovie 表示集合中存在 nil 元素。
	ErrNilMovie = errors.New("query: 电影记录不能为 nil")
)

// InvalidMovieError 指出集合中第几个元素不合法。
type InvalidMovieError struct {
	Index int
	Err   error
}

func (e *InvalidMovieError) Error() string {
	return fmt.Sprintf("movies[%d]：%v", e.Index, e.Err)
}

func (e *InvalidMovieError) Unwrap() error { return e.Err }

type Engine struct {
	movies []*domain.Movie
}

// New 校验集合后构造 Engine；失败时不返回可用的 Engine。
func New(movies []*domain.Movie) (*Engine, error) {
	if movies == nil {
		return nil, ErrNilCatalog
	}
	for i, m := range movies {
		if m == nil {
			return nil, &InvalidMovieError{Index: i, Err: ErrNilMovie}
		}
	}
	return &Engine{movies: movies}, nil
}

// Len 返回集合中的记录数（含重复指针）。
func (e *Engine) Len() int { return len(e.movies) }

// SelfPortrayingActors 返回至少在一部电影中饰演了自己的演员：
// CastByCharacter 的某个 key 同时出现在它对应的演员集合里。
func (e *Engine) SelfPortrayingActors() domain.StringSet {
	out := domain.NewStringSet()
	for _, m := range e.movies {
		for character, actors := range m.CastByCharacter {
			if actors.Has(character) {
				out.Add(character)
			}
		}
	}
	return out
}

// ActorsInDirectorsMovies 返回在 director 执导的任一电影中出演过的演员，去重后按码点升序。
// director 未执导任何电影时返回空切片。
func (e *Engine) ActorsInDirectorsMovies(director string) []string {
	actors := domain.NewStringSet()
	for _, m := range e.movies {
		if !m.Directors.Has(director) {
			continue
		}
		for a := range m.Actors {
			actors.Add(a)
		}
	}
	return actors.Sorted()
}

// MoviesWhereADirectorAlsoActed 返回至少有一位导演同时出演的电影，按上映年份降序。
//
// 同一指针只保留首次出现；同年份的电影保持集合中的原始相对顺序（稳定排序）。
func (e *Engine) MoviesWhereADirectorAlsoActed() []*domain.Movie {
	seen := make(map[*domain.Movie]struct{}, len(e.movies))
	out := make([]*domain.Movie, 0)
	for _, m := range e.movies {
		if _, ok := seen[m]; ok {
			continue
		}
		if !directorActed(m) {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ReleaseYear > out[j].ReleaseYear })
	return out
}

func directorActed(m *domain.Movie) bool {
	for d := range m.Directors {
		if m.Actors.Has(d) {
			return true
		}
	}
	return false
}

// MoviesByYearGroupedByCategory 把 year 年上映的电影按分类分组。
//
// 一部电影有多个分类时会出现在多个分组中；分组内按集合原始顺序且无重复。
// 该年没有电影、或这些电影都没有分类时返回空 map。
func (e *Engine) MoviesByYearGroupedByCategory(year int) map[string][]*domain.Movie {
	ofYear := e.moviesOfYear(year)
	out := make(map[string][]*domain.Movie)
	if len(ofYear) == 0 {
		return out
	}

	categories := domain.NewStringSet()
	for _, m := range ofYear {
		for c := range m.Categories {
			categories.Add(c)
		}
	}

	// 按分类升序构造，保证结果与遍历顺序无关。
	for _, c := range categories.Sorted() {
		group := make([]*domain.Movie, 0, len(ofYear))
		for _, m := range ofYear {
			if m.Categories.Has(c) {
				group = append(group, m)
			}
		}
		out[c] = group
	}
	return out
}

func (e *Engine) moviesOfYear(year int) []*domain.Movie {
	seen := make(map[*domain.Movie]struct{})
	var out []*domain.Movie
	for _, m := range e.movies {
		if m.ReleaseYear != year {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
