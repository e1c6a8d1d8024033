// Copyright 2024 SDG Kit Authors

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdgkit/sdgkit/meta"
	"github.com/sdgkit/sdgkit/sdg"
	"github.com/sdgkit/sdgkit/sdmx"
	"github.com/sdgkit/sdgkit/table"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

// dimsFlag collects repeated -dim KEY=VALUE arguments.
type dimsFlag map[string]string

func (d dimsFlag) String() string {
	var parts []string
	for k, v := range d {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (d dimsFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return errors.Reason("expected KEY=VALUE, got '%s'", s)
	}
	d[k] = v
	return nil
}

type Flags struct {
	CacheDir   string // default: ~/.sdgkit
	Indicators string // comma-separated indicator codes
	Dataflow   string // optional explicit dataflow
	Countries  string // comma-separated ISO3 codes
	StartYear  int
	EndYear    int
	Dims       dimsFlag
	Format     string // long, wide or wide_by_indicator
	CSV        bool   // dump CSV format; default: text
	Latest     bool   // keep only the latest value per series
	Summary    bool   // print per-indicator/year value summaries
	Search     string // search the indicator catalog instead of fetching
	LogLevel   logging.Level
}

func parseFlags(args []string) (*Flags, error) {
	flags := Flags{Dims: dimsFlag{}}
	fs := flag.NewFlagSet("sdg-fetch", flag.ExitOnError)
	fs.StringVar(&flags.CacheDir, "cache",
		filepath.Join(os.Getenv("HOME"), ".sdgkit"),
		"path to the metadata cache")
	fs.StringVar(&flags.Indicators, "indicator", "",
		"comma-separated indicator codes, e.g. CME_MRY0T4")
	fs.StringVar(&flags.Dataflow, "dataflow", "",
		"explicit dataflow, skipping resolution")
	fs.StringVar(&flags.Countries, "countries", "",
		"comma-separated ISO3 codes; default: all")
	fs.IntVar(&flags.StartYear, "start", 0, "first year, inclusive")
	fs.IntVar(&flags.EndYear, "end", 0, "last year, inclusive")
	fs.Var(flags.Dims, "dim",
		"dimension filter as KEY=VALUE, repeatable; VALUE=ALL keeps all codes")
	fs.StringVar(&flags.Format, "format", "long",
		"output shape: long, wide or wide_by_indicator")
	fs.BoolVar(&flags.CSV, "csv", false, "print table in CSV format; default: text")
	fs.BoolVar(&flags.Latest, "latest", false,
		"keep only the most recent value per series")
	fs.BoolVar(&flags.Summary, "summary", false,
		"print per-indicator/year value summaries instead of rows")
	fs.StringVar(&flags.Search, "search", "",
		"search the indicator catalog instead of fetching data")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if (flags.Indicators == "") == (flags.Search == "") {
		return nil, errors.Reason("expected exactly one of -indicator or -search")
	}
	if _, err := sdg.ParseFormat(flags.Format); err != nil {
		return nil, err
	}
	return &flags, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func searchTable(ctx context.Context, store *meta.Store, query string) *table.Table {
	tbl := table.NewTable("code", "name", "dataflows")
	for _, ind := range store.Search(ctx, query) {
		tbl.AddRow(table.Strings{
			ind.Code, ind.Name, strings.Join(ind.Dataflows, " "),
		})
	}
	return tbl
}

func dataTable(ctx context.Context, s *sdg.Session, flags *Flags) (*table.Table, error) {
	rows, err := s.Fetch(ctx, sdg.Request{
		Indicators: splitList(flags.Indicators),
		Dataflow:   flags.Dataflow,
		Countries:  splitList(flags.Countries),
		StartYear:  flags.StartYear,
		EndYear:    flags.EndYear,
		Dims:       flags.Dims,
	})
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch data")
	}
	if flags.Latest {
		rows = sdg.Latest(rows)
	}
	if flags.Summary {
		return sdg.SummaryTable(sdg.Summarize(rows)), nil
	}
	format, err := sdg.ParseFormat(flags.Format)
	if err != nil {
		return nil, err
	}
	return sdg.Render(rows, format)
}

func run(ctx context.Context, flags *Flags, w io.Writer) error {
	store := meta.NewStore(flags.CacheDir)
	var tbl *table.Table
	if flags.Search != "" {
		tbl = searchTable(ctx, store, flags.Search)
		if len(tbl.Rows) == 0 {
			fmt.Fprintf(w, "no indicators match '%s'\n", flags.Search)
			return nil
		}
	} else {
		ctx = sdmx.UseClient(ctx, sdmx.Config{})
		var err error
		if tbl, err = dataTable(ctx, sdg.NewSession(store), flags); err != nil {
			return err
		}
	}
	if flags.CSV {
		if err := tbl.WriteCSV(w, table.Params{}); err != nil {
			return errors.Annotate(err, "failed to print CSV")
		}
		return nil
	}
	if err := tbl.WriteText(w, table.Params{}); err != nil {
		return errors.Annotate(err, "failed to print text")
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := run(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
