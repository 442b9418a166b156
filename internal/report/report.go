// Package report renders backtest and optimizer results as Markdown.
package report

import (
	"embed"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/christophzehentbauerz/trade/internal/backtest"
	"github.com/christophzehentbauerz/trade/internal/optimize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*
var templateFS embed.FS

var partials = []string{"templates/strategy.md.tmpl", "templates/summary.md.tmpl", "templates/trades.md.tmpl"}

// Renderer holds parsed report templates for one locale
type Renderer struct {
	backtest *template.Template
	optimize *template.Template
}

// New parses the embedded templates. Numbers are formatted for tag.
func New(tag language.Tag) (*Renderer, error) {
	funcs := funcMap(message.NewPrinter(tag))

	parse := func(page string) (*template.Template, error) {
		files := append([]string{"templates/" + page}, partials...)
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS, files...)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		return tmpl, nil
	}

	bt, err := parse("backtest.md.tmpl")
	if err != nil {
		return nil, err
	}
	opt, err := parse("optimize.md.tmpl")
	if err != nil {
		return nil, err
	}
	return &Renderer{backtest: bt, optimize: opt}, nil
}

// Backtest writes the report of a single run
func (r *Renderer) Backtest(w io.Writer, title string, res *backtest.Result) error {
	if res == nil {
		return fmt.Errorf("report: no result")
	}
	return r.backtest.Execute(w, struct {
		Title  string
		Result *backtest.Result
	}{title, res})
}

// Optimization writes the ranked grid and the best configuration, with its
// full trade list when includeTrades is set
func (r *Renderer) Optimization(w io.Writer, title string, rep *optimize.Report, includeTrades bool) error {
	if rep == nil {
		return fmt.Errorf("report: no optimization report")
	}
	return r.optimize.Execute(w, struct {
		Title         string
		Report        *optimize.Report
		IncludeTrades bool
	}{title, rep, includeTrades})
}

func funcMap(p *message.Printer) template.FuncMap {
	num := func(v float64, decimals int) string {
		return p.Sprintf(fmt.Sprintf("%%.%df", decimals), v)
	}
	return template.FuncMap{
		"num": num,
		"int": func(v any) string {
			switch n := v.(type) {
			case int:
				return p.Sprintf("%d", n)
			case int64:
				return p.Sprintf("%d", n)
			default:
				return fmt.Sprint(v)
			}
		},
		"pct": func(v float64) string {
			return num(v, 2) + "%"
		},
		"signed": func(v float64) string {
			if v > 0 {
				return "+" + num(v, 2) + "%"
			}
			return num(v, 2) + "%"
		},
		"ratio": func(v float64) string {
			if v >= math.MaxFloat64 {
				return "∞"
			}
			return num(v, 2)
		},
		"score": func(v float64) string {
			switch {
			case v >= math.MaxFloat64:
				return "∞"
			case v <= -math.MaxFloat64:
				return "-∞"
			}
			return num(v, 3)
		},
		"mul": func(a, b float64) float64 { return a * b },
		"inc": func(i int) int { return i + 1 },
		"list": func(vs []float64) string {
			parts := make([]string, len(vs))
			for i, v := range vs {
				parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			return strings.Join(parts, ", ")
		},
		"date":  func(t time.Time) string { return t.UTC().Format("2006-01-02") },
		"stamp": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
		"dur":   formatDuration,
	}
}

// formatDuration renders holding times as days and hours
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return d.Round(time.Second).String()
	}
	days := int(d / (24 * time.Hour))
	hours := int((d % (24 * time.Hour)) / time.Hour)
	switch {
	case days == 0:
		return fmt.Sprintf("%dh", hours)
	case hours == 0:
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
