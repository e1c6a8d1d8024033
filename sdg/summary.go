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

package sdg

import (
	"fmt"
	"sort"

	"github.com/sdgkit/sdgkit/table"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// YearSummary holds the per-year distribution of an indicator's values over
// country rows. Aggregate rows are excluded so that regional totals do not
// skew the statistics.
type YearSummary struct {
	Indicator string
	Year      float64
	N         int
	Mean      float64
	Median    float64
	Min       float64
	Max       float64
}

// CSV implements table.Row.
func (s YearSummary) CSV() []string {
	f := func(v float64) string { return fmt.Sprintf("%.3f", v) }
	return []string{
		s.Indicator,
		fmt.Sprintf("%g", s.Year),
		fmt.Sprintf("%d", s.N),
		f(s.Mean), f(s.Median), f(s.Min), f(s.Max),
	}
}

// SummaryHeader is the column header of a summary table.
func SummaryHeader() []string {
	return []string{"indicator", "year", "n", "mean", "median", "min", "max"}
}

// Summarize computes per-indicator, per-year summaries over the country rows
// of a normalized row set, sorted by indicator then year.
func Summarize(rows []Row) []YearSummary {
	type key struct {
		indicator string
		year      float64
	}
	values := map[key][]float64{}
	for i := range rows {
		r := &rows[i]
		if r.GeoType != GeoCountry || !r.HasValue || !r.HasPeriod {
			continue
		}
		k := key{indicator: r.Indicator, year: r.Period}
		values[k] = append(values[k], r.Value)
	}
	keys := maps.Keys(values)
	slices.SortFunc(keys, func(a, b key) bool {
		if a.indicator != b.indicator {
			return a.indicator < b.indicator
		}
		return a.year < b.year
	})
	res := make([]YearSummary, 0, len(keys))
	for _, k := range keys {
		vs := values[k]
		sort.Float64s(vs)
		res = append(res, YearSummary{
			Indicator: k.indicator,
			Year:      k.year,
			N:         len(vs),
			Mean:      stat.Mean(vs, nil),
			Median:    stat.Quantile(0.5, stat.Empirical, vs, nil),
			Min:       vs[0],
			Max:       vs[len(vs)-1],
		})
	}
	return res
}

// SummaryTable renders summaries as a printable table.
func SummaryTable(summaries []YearSummary) *table.Table {
	tbl := table.NewTable(SummaryHeader()...)
	for _, s := range summaries {
		tbl.AddRow(s)
	}
	return tbl
}
