package query

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/filmq/internal/domain"
)

func movie(title string, year int, categories, directors, actors []string, cast map[string][]string) *domain.Movie {
	m := &domain.Movie{
		Title:           title,
		ReleaseYear:     year,
		Categories:      domain.NewStringSet(categories...),
		Directors:       domain.NewStringSet(directors...),
		Actors:          domain.NewStringSet(actors...),
		CastByCharacter: make(map[string]domain.StringSet, len(cast)),
	}
	for ch, as := range cast {
		m.CastByCharacter[ch] = domain.NewStringSet(as...)
	}
	return m
}

func mustEngine(t *testing.T, movies ...*domain.Movie) *Engine {
	t.Helper()
	if movies == nil {
		movies = []*domain.Movie{}
	}
	e, err := New(movies)
	require.NoError(t, err)
	return e
}

func TestNew_NilCatalog(t *testing.T) {
	e, err := New(nil)
	require.ErrorIs(t, err, ErrNilCatalog)
	assert.Nil(t, e)
}

func TestNew_NilMovie(t *testing.T) {
	e, err := New([]*domain.Movie{movie("A", 2000, nil, nil, nil, nil), nil})
	require.ErrorIs(t, err, ErrNilMovie)
	assert.Nil(t, e)

	var ime *InvalidMovieError
	require.True(t, errors.As(err, &ime))
	assert.Equal(t, 1, ime.Index)
}

func TestNew_EmptyIsValid(t *testing.T) {
	e := mustEngine(t)
	assert.Equal(t, 0, e.Len())
	assert.Empty(t, e.SelfPortrayingActors())
	assert.Empty(t, e.ActorsInDirectorsMovies("Nolan"))
	assert.Empty(t, e.MoviesWhereADirectorAlsoActed())
	assert.Empty(t, e.MoviesByYearGroupedByCategory(2010))
}

func TestSelfPortrayingActors(t *testing.T) {
	a := movie("A", 2008, nil, nil, []string{"Christian Bale", "Stan Lee"}, map[string][]string{
		"Bruce Wayne": {"Christian Bale"},
		"Stan Lee":    {"Stan Lee"},
	})
	b := movie("B", 2012, nil, nil, nil, map[string][]string{
		"Stan Lee":    {"Stan Lee", "Someone Else"},
		"Bill Murray": {"Bill Murray"},
		"Zombie":      {"Bill Murray"},
	})

	got := mustEngine(t, a, b).SelfPortrayingActors()
	assert.Equal(t, []string{"Bill Murray", "Stan Lee"}, got.Sorted())
	assert.False(t, got.Has("Bruce Wayne"))
	assert.False(t, got.Has("Christian Bale"))
}

func TestSelfPortrayingActors_OnlyKeysInOwnSet(t *testing.T) {
	// 名字出现在别的角色下不算饰演自己。
	m := movie("A", 2000, nil, nil, nil, map[string][]string{
		"Alice": {"Bob"},
		"Bob":   {"Alice"},
		"Carol": nil,
	})
	e := mustEngine(t, m)
	got := e.SelfPortrayingActors()
	assert.Empty(t, got)

	for name := range e.SelfPortrayingActors() {
		found := false
		for _, mv := range e.movies {
			if mv.CastByCharacter[name].Has(name) {
				found = true
			}
		}
		assert.True(t, found, "%q 不满足自我饰演条件", name)
	}
}

func TestActorsInDirectorsMovies(t *testing.T) {
	m1 := movie("M1", 2010, nil, []string{"Nolan"}, []string{"Bale", "Caine"}, nil)
	m2 := movie("M2", 2017, nil, []string{"Nolan"}, []string{"Murphy", "Caine"}, nil)
	m3 := movie("M3", 2000, nil, []string{"Scott"}, []string{"Russell"}, nil)
	e := mustEngine(t, m1, m2, m3)

	assert.Equal(t, []string{"Bale", "Caine", "Murphy"}, e.ActorsInDirectorsMovies("Nolan"))
	assert.Equal(t, []string{"Russell"}, e.ActorsInDirectorsMovies("Scott"))

	got := e.ActorsInDirectorsMovies("Kubrick")
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestActorsInDirectorsMovies_StrictlyAscendingCodePoint(t *testing.T) {
	m1 := movie("M1", 2010, nil, []string{"D"}, []string{"b", "B", "a", "Á", "Z"}, nil)
	m2 := movie("M2", 2011, nil, []string{"D", "E"}, []string{"a", "Z", "ä"}, nil)
	got := mustEngine(t, m1, m2).ActorsInDirectorsMovies("D")

	assert.Equal(t, []string{"B", "Z", "a", "b", "Á", "ä"}, got)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
}

func TestMoviesWhereADirectorAlsoActed(t *testing.T) {
	m1 := movie("Unforgiven", 1992, nil, []string{"Eastwood"}, []string{"Eastwood", "Freeman"}, nil)
	m2 := movie("Saving Private Ryan", 1998, nil, []string{"Spielberg"}, []string{"Hanks"}, nil)

	got := mustEngine(t, m1, m2).MoviesWhereADirectorAlsoActed()
	require.Len(t, got, 1)
	assert.Same(t, m1, got[0])
}

func TestMoviesWhereADirectorAlsoActed_SameMovieOnly(t *testing.T) {
	// 导演在另一部电影里出演不算。
	m1 := movie("A", 2000, nil, []string{"X"}, []string{"Y"}, nil)
	m2 := movie("B", 2001, nil, []string{"Y"}, []string{"X"}, nil)
	assert.Empty(t, mustEngine(t, m1, m2).MoviesWhereADirectorAlsoActed())
}

func TestMoviesWhereADirectorAlsoActed_DescendingStableDedup(t *testing.T) {
	a := movie("A", 2000, nil, []string{"D"}, []string{"D"}, nil)
	b := movie("B", 2010, nil, []string{"D", "E"}, []string{"E"}, nil)
	c := movie("C", 2000, nil, []string{"F"}, []string{"F"}, nil)
	d := movie("D", 2010, nil, []string{"G"}, []string{"G"}, nil)
	twin := movie("A", 2000, nil, []string{"D"}, []string{"D"}, nil) // 字段相同但是另一部电影

	e := mustEngine(t, a, b, c, a, d, twin, b)
	got := e.MoviesWhereADirectorAlsoActed()

	require.Len(t, got, 5)
	assert.Same(t, b, got[0])
	assert.Same(t, d, got[1])
	assert.Same(t, a, got[2])
	assert.Same(t, c, got[3])
	assert.Same(t, twin, got[4])

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].ReleaseYear, got[i].ReleaseYear)
	}
	// 重复调用顺序一致。
	for i := 0; i < 10; i++ {
		assert.Equal(t, got, e.MoviesWhereADirectorAlsoActed())
	}
}

func TestMoviesByYearGroupedByCategory(t *testing.T) {
	m1 := movie("M1", 2010, []string{"Action", "Thriller"}, nil, nil, nil)
	m2 := movie("M2", 2010, []string{"Action"}, nil, nil, nil)
	m3 := movie("M3", 2011, []string{"Drama"}, nil, nil, nil)
	e := mustEngine(t, m1, m2, m3)

	got := e.MoviesByYearGroupedByCategory(2010)
	want := map[string][]*domain.Movie{
		"Action":   {m1, m2},
		"Thriller": {m1},
	}
	assert.Equal(t, want, got)
}

func TestMoviesByYearGroupedByCategory_EmptyCases(t *testing.T) {
	noCat := movie("N", 1999, nil, nil, nil, nil)
	e := mustEngine(t, noCat, movie("M", 2001, []string{"Drama"}, nil, nil, nil))

	got := e.MoviesByYearGroupedByCategory(1999)
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = e.MoviesByYearGroupedByCategory(1850)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMoviesByYearGroupedByCategory_KeysAndSubsets(t *testing.T) {
	var movies []*domain.Movie
	for i := 0; i < 30; i++ {
		cats := []string{fmt.Sprintf("c%d", i%4)}
		if i%3 == 0 {
			cats = append(cats, "extra")
		}
		movies = append(movies, movie(fmt.Sprintf("m%d", i), 2000+i%3, cats, nil, nil, nil))
	}
	// 同一指针重复出现不应导致分组内重复。
	movies = append(movies, movies[0], movies[3])
	e := mustEngine(t, movies...)

	for year := 2000; year <= 2002; year++ {
		got := e.MoviesByYearGroupedByCategory(year)

		wantKeys := domain.NewStringSet()
		for _, m := range movies {
			if m.ReleaseYear == year {
				for c := range m.Categories {
					wantKeys.Add(c)
				}
			}
		}
		gotKeys := make([]string, 0, len(got))
		for k := range got {
			gotKeys = append(gotKeys, k)
		}
		sort.Strings(gotKeys)
		assert.Equal(t, wantKeys.Sorted(), gotKeys, "year=%d", year)

		for c, group := range got {
			seen := make(map[*domain.Movie]bool)
			for _, m := range group {
				assert.Equal(t, year, m.ReleaseYear)
				assert.True(t, m.Categories.Has(c))
				assert.False(t, seen[m], "分组 %q 内出现重复电影 %q", c, m.Title)
				seen[m] = true
			}
		}
	}
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	m1 := movie("B", 2001, []string{"x"}, []string{"D"}, []string{"D"}, nil)
	m2 := movie("A", 2005, []string{"y"}, []string{"D"}, []string{"D"}, nil)
	in := []*domain.Movie{m1, m2}
	e := mustEngine(t, in...)

	got := e.MoviesWhereADirectorAlsoActed()
	require.Len(t, got, 2)
	assert.Same(t, m2, got[0])
	// 排序只作用于新切片。
	assert.Same(t, m1, in[0])
	assert.Same(t, m2, in[1])
}

func TestEngine_IdempotentAndConcurrent(t *testing.T) {
	var movies []*domain.Movie
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("p%d", i%7)
		movies = append(movies, movie(
			fmt.Sprintf("m%d", i),
			1990+i%5,
			[]string{fmt.Sprintf("c%d", i%3)},
			[]string{name},
			[]string{name, fmt.Sprintf("p%d", (i+1)%7)},
			map[string][]string{name: {name}},
		))
	}
	e := mustEngine(t, movies...)

	self := e.SelfPortrayingActors()
	actors := e.ActorsInDirectorsMovies("p3")
	acted := e.MoviesWhereADirectorAlsoActed()
	byYear := e.MoviesByYearGroupedByCategory(1992)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			if !assert.Equal(t, self, e.SelfPortrayingActors()) ||
				!assert.Equal(t, actors, e.ActorsInDirectorsMovies("p3")) ||
				!assert.Equal(t, acted, e.MoviesWhereADirectorAlsoActed()) ||
				!assert.Equal(t, byYear, e.MoviesByYearGroupedByCategory(1992)) {
				return errors.New("并发调用结果不一致")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
