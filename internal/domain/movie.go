package domain

import "sort"

// StringSet 是无序、无重复的字符串集合。
// nil StringSet 可以安全地 Has/Len/Sorted（视为空集）。
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Add 写入 v；对 nil 集合调用会 panic（与普通 map 一致）。
func (s StringSet) Add(v string) { s[v] = struct{}{} }

func (s StringSet) Len() int { return len(s) }

// Sorted 返回按码点升序排列的新切片；空集返回非 nil 的空切片。
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Movie 是一条只读的电影记录。
//
// 约束：
//   - 集合字段无重复、无序；只有查询显式要求时才排序
//   - CastByCharacter：角色名 -> 在该记录涵盖的各版本中饰演此角色的演员集合
//   - 身份：查询层以 *Movie 指针作为去重依据。字段完全相同的两个指针仍是两部电影；
//     同一指针在集合中出现多次才会被合并
type Movie struct {
	Title       string
	ReleaseYear int

	Categories StringSet
	Directors  StringSet
	Actors     StringSet

	CastByCharacter map[string]StringSet
}
