// Package htmlmeta 从 HTML 页面的 schema.org Movie 微数据（microdata）中解析电影记录。
//
// 支持的结构（与常见影视站点的详情页一致）：
//
//	<div itemscope itemtype="https://schema.org/Movie">
//	  <h1 itemprop="name">…</h1>
//	  <meta itemprop="datePublished" content="1989-06-23">
//	  <span itemprop="genre">…</span>
//	  <div itemprop="director" itemscope itemtype="https://schema.org/Person"><span itemprop="name">…</span></div>
//	  <div itemprop="actor" itemscope itemtype="https://schema.org/PerformanceRole">
//	    <div itemprop="actor" itemscope itemtype="https://schema.org/Person"><span itemprop="name">…</span></div>
//	    <span itemprop="characterName">…</span>
//	  </div>
//	</div>
package htmlmeta

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/filmq/internal/domain"
)

// Parse 是纯函数：相同输入 => 相同输出（页面中的电影按文档顺序返回）。
// 页面里没有 Movie 微数据时返回空切片，不算错误。
func Parse(html []byte) ([]domain.Movie, error) {
	if len(bytes.TrimSpace(html)) == 0 {
		return nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Movie, 0, 1)
	doc.Find("[itemscope][itemtype]").Each(func(_ int, s *goquery.Selection) {
		if !isType(s, "Movie") {
			return
		}
		out = append(out, parseMovie(s))
	})
	return out, nil
}

func parseMovie(scope *goquery.Selection) domain.Movie {
	m := domain.Movie{
		Title:           firstValue(scope, "name"),
		Categories:      domain.NewStringSet(),
		Directors:       domain.NewStringSet(),
		Actors:          domain.NewStringSet(),
		CastByCharacter: make(map[string]domain.StringSet),
	}

	date := firstValue(scope, "datePublished")
	if date == "" {
		date = firstValue(scope, "dateCreated")
	}
	m.ReleaseYear = yearFromDate(date)

	props(scope, "genre").Each(func(_ int, s *goquery.Selection) {
		if v := value(s); v != "" {
			m.Categories.Add(v)
		}
	})
	props(scope, "director").Each(func(_ int, s *goquery.Selection) {
		if v := personName(s); v != "" {
			m.Directors.Add(v)
		}
	})
	props(scope, "actor").Each(func(_ int, s *goquery.Selection) {
		// PerformanceRole：角色名 + 内嵌的 Person。
		if isType(s, "PerformanceRole") {
			characters := make([]string, 0, 1)
			props(s, "characterName").Each(func(_ int, c *goquery.Selection) {
				if v := value(c); v != "" {
					characters = append(characters, v)
				}
			})
			props(s, "actor").Each(func(_ int, p *goquery.Selection) {
				name := personName(p)
				if name == "" {
					return
				}
				m.Actors.Add(name)
				for _, ch := range characters {
					addCast(m.CastByCharacter, ch, name)
				}
			})
			return
		}
		if v := personName(s); v != "" {
			m.Actors.Add(v)
		}
	})
	return m
}

func addCast(cast map[string]domain.StringSet, character, actor string) {
	set, ok := cast[character]
	if !ok {
		set = domain.NewStringSet()
		cast[character] = set
	}
	set.Add(actor)
}

// props 返回 scope 自身拥有的 itemprop=name 元素（不穿透嵌套的 itemscope）。
func props(scope *goquery.Selection, name string) *goquery.Selection {
	owner := scope.Get(0)
	return scope.Find("[itemprop]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if !hasToken(s.AttrOr("itemprop", ""), name) {
			return false
		}
		parent := s.Parent().Closest("[itemscope]")
		return parent.Length() > 0 && parent.Get(0) == owner
	})
}

func firstValue(scope *goquery.Selection, name string) string {
	return value(props(scope, name).First())
}

// personName：Person 子项取其 name；否则直接取文本。
func personName(s *goquery.Selection) string {
	if _, ok := s.Attr("itemscope"); ok {
		return firstValue(s, "name")
	}
	return value(s)
}

func value(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	if v, ok := s.Attr("content"); ok {
		return normSpace(v)
	}
	if v, ok := s.Attr("datetime"); ok {
		return normSpace(v)
	}
	return normSpace(s.Text())
}

func isType(s *goquery.Selection, typ string) bool {
	for _, t := range strings.Fields(s.AttrOr("itemtype", "")) {
		t = strings.TrimRight(t, "/")
		if t == typ || strings.HasSuffix(t, "schema.org/"+typ) {
			return true
		}
	}
	return false
}

func hasToken(attr, tok string) bool {
	for _, f := range strings.Fields(attr) {
		if f == tok {
			return true
		}
	}
	return false
}

func yearFromDate(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return y
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
