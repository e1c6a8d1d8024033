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
	"strconv"
	"strings"

	"github.com/sdgkit/sdgkit/table"
	"github.com/stockparfait/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Format selects the tabular shape of the output.
type Format string

const (
	FormatLong            Format = "long"
	FormatWide            Format = "wide"              // one column per year
	FormatWideByIndicator Format = "wide_by_indicator" // one column per indicator
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatLong, FormatWide, FormatWideByIndicator:
		return f, nil
	}
	return "", errors.Reason(
		"unknown format '%s': expected long, wide or wide_by_indicator", s)
}

// seriesKey identifies one series within a row set: everything except the
// period and value.
func seriesKey(r *Row, withIndicator bool) string {
	parts := []string{r.ISO3}
	if withIndicator {
		parts = append(parts, r.Indicator)
	}
	dims := maps.Keys(r.Dims)
	slices.Sort(dims)
	for _, d := range dims {
		parts = append(parts, d+"="+r.Dims[d])
	}
	return strings.Join(parts, "|")
}

// Latest keeps, per series, only the most recent row that has a value.
// Rows without any valued period for their series are dropped. Input order
// of the surviving series is preserved.
func Latest(rows []Row) []Row {
	best := map[string]int{} // series key -> index into rows
	var order []string
	for i := range rows {
		if !rows[i].HasValue || !rows[i].HasPeriod {
			continue
		}
		k := seriesKey(&rows[i], true)
		j, ok := best[k]
		if !ok {
			best[k] = i
			order = append(order, k)
			continue
		}
		if rows[i].Period > rows[j].Period {
			best[k] = i
		}
	}
	res := make([]Row, 0, len(order))
	for _, k := range order {
		res = append(res, rows[best[k]])
	}
	return res
}

func formatYear(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// Wide renders rows with one column per period: indicator, iso3,
// country_name, dimensions, then years ascending.
func Wide(rows []Row) *table.Table {
	return pivot(rows, func(r *Row) string { return formatYear(r.Period) }, true)
}

// WideByIndicator renders rows with one column per indicator: iso3,
// country_name, period, dimensions, then indicator codes sorted.
func WideByIndicator(rows []Row) *table.Table {
	return pivot(rows, func(r *Row) string { return r.Indicator }, false)
}

// pivot produces a wide table keyed by series, with one value column per
// distinct pivot key.
func pivot(rows []Row, key func(*Row) string, withIndicator bool) *table.Table {
	dimSet := map[string]bool{}
	pivotSet := map[string]bool{}
	for i := range rows {
		for d := range rows[i].Dims {
			dimSet[d] = true
		}
		if rows[i].HasValue {
			pivotSet[key(&rows[i])] = true
		}
	}
	dims := maps.Keys(dimSet)
	slices.Sort(dims)
	pivots := maps.Keys(pivotSet)
	slices.Sort(pivots)

	header := []string{"iso3", "country_name"}
	if withIndicator {
		header = append([]string{"indicator"}, header...)
	} else {
		header = append(header, "period")
	}
	header = append(header, dims...)
	header = append(header, pivots...)

	type series struct {
		label  []string
		values map[string]string
	}
	bySeries := map[string]*series{}
	var order []string
	for i := range rows {
		r := &rows[i]
		k := seriesKey(r, withIndicator)
		if !withIndicator {
			k += "|" + formatPeriod(r)
		}
		sr, ok := bySeries[k]
		if !ok {
			label := []string{r.ISO3, r.CountryName}
			if withIndicator {
				label = append([]string{r.Indicator}, label...)
			} else {
				label = append(label, formatPeriod(r))
			}
			for _, d := range dims {
				label = append(label, r.Dims[d])
			}
			sr = &series{label: label, values: map[string]string{}}
			bySeries[k] = sr
			order = append(order, k)
		}
		if r.HasValue {
			sr.values[key(r)] = formatValue(r)
		}
	}

	tbl := table.NewTable(header...)
	for _, k := range order {
		sr := bySeries[k]
		rec := append([]string{}, sr.label...)
		for _, p := range pivots {
			rec = append(rec, sr.values[p])
		}
		tbl.AddRow(table.Strings(rec))
	}
	return tbl
}

// Render produces the requested tabular shape from normalized rows.
func Render(rows []Row, format Format) (*table.Table, error) {
	switch format {
	case "", FormatLong:
		return Table(rows), nil
	case FormatWide:
		return Wide(rows), nil
	case FormatWideByIndicator:
		return WideByIndicator(rows), nil
	}
	return nil, errors.Reason("unknown format '%s'", format)
}
