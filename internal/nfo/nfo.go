// Package nfo 解析 Kodi/Jellyfin/Emby 的电影 NFO（XML）。
package nfo

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/John-Robertt/filmq/internal/domain"
)

// ErrNotMovie 表示根元素不是 <movie>（例如 <tvshow>/<episodedetails>）。
var ErrNotMovie = errors.New("nfo: 根元素不是 <movie>")

type movie struct {
	XMLName xml.Name `xml:"movie"`

	Title     string `xml:"title"`
	Year      string `xml:"year"`
	Premiered string `xml:"premiered"`
	Release   string `xml:"release"`

	Genres    []string `xml:"genre"`
	Directors []string `xml:"director"`
	Actors    []actor  `xml:"actor"`
}

type actor struct {
	Name string `xml:"name"`
	Role string `xml:"role"`
}

// Decode 把一个 <movie> NFO 转成 Movie。
//
// 规则：
// - 文本统一去首尾空白；空值丢弃
// - year 缺失或非法时，回退到 premiered/release 的年份前缀；都没有则为 0
// - <actor><name> 进入 Actors；<role> 可用 "/" 分隔多个角色，每个角色都映射到该演员
func Decode(b []byte) (domain.Movie, error) {
	// 只看根元素名，避免把 <tvshow> 等静默解析成空 movie。
	root, err := rootName(b)
	if err != nil {
		return domain.Movie{}, err
	}
	if root != "movie" {
		return domain.Movie{}, fmt.Errorf("%w：<%s>", ErrNotMovie, root)
	}

	var m movie
	if err := xml.Unmarshal(b, &m); err != nil {
		return domain.Movie{}, err
	}

	out := domain.Movie{
		Title:           strings.TrimSpace(m.Title),
		ReleaseYear:     parseYear(m.Year, m.Premiered, m.Release),
		Categories:      toSet(m.Genres),
		Directors:       toSet(m.Directors),
		Actors:          domain.NewStringSet(),
		CastByCharacter: make(map[string]domain.StringSet),
	}
	for _, a := range m.Actors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		out.Actors.Add(name)
		for _, role := range splitRoles(a.Role) {
			set, ok := out.CastByCharacter[role]
			if !ok {
				set = domain.NewStringSet()
				out.CastByCharacter[role] = set
			}
			set.Add(name)
		}
	}
	return out, nil
}

func rootName(b []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("nfo: 读取根元素失败：%w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

func parseYear(year string, dates ...string) int {
	if y, err := strconv.Atoi(strings.TrimSpace(year)); err == nil && y > 0 {
		return y
	}
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if len(d) < 4 {
			continue
		}
		if y, err := strconv.Atoi(d[:4]); err == nil && y > 0 {
			return y
		}
	}
	return 0
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, "/") {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

func toSet(in []string) domain.StringSet {
	s := domain.NewStringSet()
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			s.Add(v)
		}
	}
	return s
}
