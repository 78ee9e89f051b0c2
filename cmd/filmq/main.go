package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/filmq/internal/catalog"
	"github.com/John-Robertt/filmq/internal/config"
	"github.com/John-Robertt/filmq/internal/domain"
	"github.com/John-Robertt/filmq/internal/infra/fsx"
	"github.com/John-Robertt/filmq/internal/infra/logx"
	"github.com/John-Robertt/filmq/internal/query"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// usageError 表示参数错误（退出码 2）。
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	// nil 会让 cobra 回退到 os.Args。
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var ue *usageError
		if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
			fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
			fmt.Fprint(stderr, root.UsageString())
			return 2
		}
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return 0
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	strict   bool
	logLevel string
	jsonOut  bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "filmq",
		Short:         "对电影库执行固定报表查询",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return &usageError{err: err} })

	pf := root.PersistentFlags()
	pf.BoolVar(&a.strict, "strict", false, "任一文件解析失败即终止（默认跳过并记录）；支持 --strict=false 覆盖配置")
	pf.StringVar(&a.logLevel, "log-level", "", "日志级别：debug|info|warn|error（日志输出到 stderr）")
	pf.BoolVar(&a.jsonOut, "json", false, "强制输出 JSON（stdout 非 TTY 时默认即为 JSON）")

	root.AddCommand(
		a.selfCmd(),
		a.directorActorsCmd(),
		a.directedAndActedCmd(),
		a.byYearCmd(),
		a.reportCmd(),
	)
	return root
}

func (a *app) selfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self [path]",
		Short: "饰演过自己的演员",
		Args:  rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd, optArg(args, 0))
			if err != nil {
				return err
			}
			s.report.SelfPortrayingActors = s.engine.SelfPortrayingActors().Sorted()
			return a.emit(s, func(w io.Writer) {
				printLines(w, s.report.SelfPortrayingActors)
			})
		},
	}
}

func (a *app) directorActorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "director-actors <director> [path]",
		Short: "在指定导演的电影中出演过的演员（字母序）",
		Args:  rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			director := strings.TrimSpace(args[0])
			if director == "" {
				return usagef("director 不能为空")
			}
			s, err := a.open(cmd, optArg(args, 1))
			if err != nil {
				return err
			}
			s.report.DirectorActors = &domain.DirectorActors{
				Director: director,
				Actors:   s.engine.ActorsInDirectorsMovies(director),
			}
			return a.emit(s, func(w io.Writer) {
				printLines(w, s.report.DirectorActors.Actors)
			})
		},
	}
}

func (a *app) directedAndActedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directed-and-acted [path]",
		Short: "导演同时出演的电影（最新在前）",
		Args:  rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd, optArg(args, 0))
			if err != nil {
				return err
			}
			s.report.DirectedAndActed = domain.SummarizeAll(s.engine.MoviesWhereADirectorAlsoActed())
			return a.emit(s, func(w io.Writer) {
				printMovies(w, "", s.report.DirectedAndActed)
			})
		},
	}
}

func (a *app) byYearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "by-year <year> [path]",
		Short: "指定年份上映的电影，按分类分组",
		Args:  rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			s, err := a.open(cmd, optArg(args, 1))
			if err != nil {
				return err
			}
			s.report.YearCategories = yearCategories(s.engine, year)
			return a.emit(s, func(w io.Writer) {
				printYear(w, s.report.YearCategories)
			})
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	var (
		director string
		year     string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "report [path]",
		Short: "一次输出全部报表（可写入文件）",
		Args:  rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				y    int
				hasY bool
			)
			if cmd.Flags().Changed("year") {
				v, err := parseYear(year)
				if err != nil {
					return err
				}
				y, hasY = v, true
			}
			director = strings.TrimSpace(director)

			s, err := a.open(cmd, optArg(args, 0))
			if err != nil {
				return err
			}
			rr := &s.report
			rr.SelfPortrayingActors = s.engine.SelfPortrayingActors().Sorted()
			rr.DirectedAndActed = domain.SummarizeAll(s.engine.MoviesWhereADirectorAlsoActed())
			if director != "" {
				rr.DirectorActors = &domain.DirectorActors{Director: director, Actors: s.engine.ActorsInDirectorsMovies(director)}
			}
			if hasY {
				rr.YearCategories = yearCategories(s.engine, y)
			}

			if out != "" {
				if err := writeReportFile(s, out); err != nil {
					return fmt.Errorf("写入报表失败：%w", err)
				}
			}
			return a.emit(s, func(w io.Writer) {
				fmt.Fprintln(w, "# 饰演自己的演员")
				printLines(w, rr.SelfPortrayingActors)
				if rr.DirectorActors != nil {
					fmt.Fprintf(w, "# %s 的合作演员\n", rr.DirectorActors.Director)
					printLines(w, rr.DirectorActors.Actors)
				}
				fmt.Fprintln(w, "# 导演同时出演的电影")
				printMovies(w, "", rr.DirectedAndActed)
				if rr.YearCategories != nil {
					fmt.Fprintf(w, "# %d 年按分类\n", rr.YearCategories.Year)
					printYear(w, rr.YearCategories)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&director, "director", "", "查询该导演的合作演员")
	f.StringVar(&year, "year", "", "按分类分组该年份上映的电影")
	f.StringVar(&out, "out", "", "把报表 JSON 原子写入该文件（相对路径以电影库目录为基准）")
	return cmd
}

// session 是一次命令执行的上下文：已加载的集合、引擎与待输出的报表。
type session struct {
	eff    config.EffectiveConfig
	log    *zap.Logger
	engine *query.Engine
	report domain.QueryReport
}

func (a *app) open(cmd *cobra.Command, path string) (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("读取当前目录失败：%w", err)
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:      path,
		Strict:    a.strict,
		StrictSet: cmd.Flags().Changed("strict"),
		LogLevel:  a.logLevel,
	})
	if err != nil {
		return nil, err
	}

	log, err := logx.New(eff.LogLevel, a.stderr)
	if err != nil {
		return nil, err
	}
	log.Debug("配置（生效）",
		zap.String("path", eff.Path),
		zap.String("config_file", eff.ConfigFile),
		zap.Strings("formats", eff.Formats),
		zap.Int("concurrency", eff.Concurrency),
		zap.Bool("strict", eff.Strict),
	)

	res, err := catalog.Load(cmd.Context(), catalog.Options{
		Root:        eff.Path,
		ExcludeDirs: eff.ExcludeDirs,
		Formats:     eff.Formats,
		Concurrency: eff.Concurrency,
		Strict:      eff.Strict,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	engine, err := query.New(res.Movies)
	if err != nil {
		return nil, err
	}

	return &session{
		eff:    eff,
		log:    log,
		engine: engine,
		report: domain.QueryReport{
			Path:        eff.Path,
			GeneratedAt: time.Now(),
			Summary:     domain.LoadSummary{Movies: engine.Len()},
			Files:       res.Files,
		},
	}, nil
}

// emit 输出报表。
// stdout 非 TTY（或 --json）：stdout 必须且仅输出一个 QueryReport JSON；摘要走 stderr。
func (a *app) emit(s *session, text func(io.Writer)) error {
	s.report.Finalize()
	defer func() { _ = s.log.Sync() }()

	if a.jsonOut || !isTTY(a.stdout) {
		if err := json.NewEncoder(a.stdout).Encode(s.report); err != nil {
			return err
		}
	} else {
		text(a.stdout)
	}
	sum := s.report.Summary
	fmt.Fprintf(a.stderr, "完成：movies=%d loaded=%d skipped=%d\n", sum.Movies, sum.Loaded, sum.Skipped)
	return nil
}

func writeReportFile(s *session, out string) error {
	if !filepath.IsAbs(out) {
		out = filepath.Join(s.eff.Path, out)
	}
	rr := s.report
	rr.Finalize()
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomic(out, b); err != nil {
		return err
	}
	s.log.Info("报表已写入", zap.String("out", out))
	return nil
}

func yearCategories(e *query.Engine, year int) *domain.YearCategories {
	groups := e.MoviesByYearGroupedByCategory(year)
	yc := &domain.YearCategories{Year: year, Categories: make(map[string][]domain.MovieSummary, len(groups))}
	for c, ms := range groups {
		yc.Categories[c] = domain.SummarizeAll(ms)
	}
	return yc
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, usagef("year 必须是整数，实际是 %q", s)
	}
	return y, nil
}

func rangeArgs(lo, hi int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < lo || len(args) > hi {
			return usagef("需要 %d 到 %d 个参数，实际 %d 个", lo, hi, len(args))
		}
		return nil
	}
}

func optArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func printMovies(w io.Writer, indent string, ms []domain.MovieSummary) {
	for _, m := range ms {
		fmt.Fprintf(w, "%s%d\t%s\n", indent, m.ReleaseYear, m.Title)
	}
}

func printYear(w io.Writer, yc *domain.YearCategories) {
	cats := make([]string, 0, len(yc.Categories))
	for c := range yc.Categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(w, "%s:\n", c)
		printMovies(w, "  ", yc.Categories[c])
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
