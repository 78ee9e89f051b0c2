package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/filmq/internal/domain"
)

// record 是数据集文件（JSON/YAML）中一部电影的结构。
type record struct {
	Title      string              `json:"title" yaml:"title"`
	Year       int                 `json:"year" yaml:"year"`
	Categories []string            `json:"categories" yaml:"categories"`
	Directors  []string            `json:"directors" yaml:"directors"`
	Actors     []string            `json:"actors" yaml:"actors"`
	Cast       map[string][]string `json:"cast" yaml:"cast"`
}

// datasetFile 允许两种顶层形态：{"movies": [...]} 或直接是数组。
type datasetFile struct {
	Movies []record `json:"movies" yaml:"movies"`
}

func decodeJSON(b []byte) ([]record, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("文件为空")
	}
	if b[0] == '[' {
		var rs []record
		if err := json.Unmarshal(b, &rs); err != nil {
			return nil, err
		}
		return rs, nil
	}
	var f datasetFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f.Movies, nil
}

func decodeYAML(b []byte) ([]record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("文件为空")
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var rs []record
		if err := root.Decode(&rs); err != nil {
			return nil, err
		}
		return rs, nil
	case yaml.MappingNode:
		var f datasetFile
		if err := root.Decode(&f); err != nil {
			return nil, err
		}
		return f.Movies, nil
	default:
		return nil, fmt.Errorf("顶层必须是数组或包含 movies 的对象（第 %d 行）", root.Line)
	}
}

// toMovie 把 record 规范化为 Movie：去空白、去空值；cast 中的演员同时计入 Actors。
func (r record) toMovie() domain.Movie {
	m := domain.Movie{
		Title:           strings.TrimSpace(r.Title),
		ReleaseYear:     r.Year,
		Categories:      toSet(r.Categories),
		Directors:       toSet(r.Directors),
		Actors:          toSet(r.Actors),
		CastByCharacter: make(map[string]domain.StringSet, len(r.Cast)),
	}
	for character, actors := range r.Cast {
		character = strings.TrimSpace(character)
		if character == "" {
			continue
		}
		set := toSet(actors)
		if set.Len() == 0 {
			continue
		}
		for a := range set {
			m.Actors.Add(a)
		}
		if prev, ok := m.CastByCharacter[character]; ok {
			for a := range prev {
				set.Add(a)
			}
		}
		m.CastByCharacter[character] = set
	}
	return m
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
