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
	"context"
	"strconv"
	"strings"

	"github.com/sdgkit/sdgkit/meta"
	"github.com/sdgkit/sdgkit/sdmx"
	"github.com/sdgkit/sdgkit/table"
	"github.com/stockparfait/logging"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// GeoType classifies a row's reporting entity.
type GeoType string

const (
	GeoCountry   GeoType = "country"
	GeoAggregate GeoType = "aggregate"
)

// Row is the canonical observation row produced by normalization.
type Row struct {
	Indicator   string
	ISO3        string
	CountryName string
	Period      float64 // decimal year; see HasPeriod
	HasPeriod   bool
	Value       float64
	HasValue    bool
	GeoType     GeoType
	Dims        map[string]string // disaggregation columns, lowercase keys
	Attrs       map[string]string // unit, obs_status and passthrough columns
}

// Dim returns the row's value for a disaggregation dimension (lowercase key).
func (r *Row) Dim(name string) string { return r.Dims[name] }

// canonicalColumns maps known raw SDMX-CSV column names to their canonical
// names. Unknown columns pass through unchanged. Canonical names map to
// themselves so that normalizing an already-normalized table is a no-op.
var canonicalColumns = map[string]string{
	"REF_AREA":        "iso3",
	"Geographic area": "country_name",
	"INDICATOR":       "indicator",
	"TIME_PERIOD":     "period",
	"OBS_VALUE":       "value",
	"SEX":             "sex",
	"AGE":             "age",
	"RESIDENCE":       "residence",
	"WEALTH_QUINTILE": "wealth_quintile",
	"SERVICE_TYPE":    "service_type",
	"UNIT_MEASURE":    "unit",
	"UNIT_MULTIPLIER": "unit_multiplier",
	"OBS_STATUS":      "obs_status",
	"DATA_SOURCE":     "data_source",
	"DATAFLOW":        "dataflow",
}

// knownDims are the disaggregation columns recognized when no indicator
// metadata is available to name them.
var knownDims = map[string]bool{
	"sex":             true,
	"age":             true,
	"residence":       true,
	"wealth_quintile": true,
	"service_type":    true,
}

func canonicalName(raw string) string {
	if c, ok := canonicalColumns[raw]; ok {
		return c
	}
	return raw
}

// DecimalYear converts a raw time-period string to a decimal year: "YYYY" to
// YYYY.0, "YYYY-MM" to YYYY + MM/12, anything else is parsed as a number
// directly. The second value is false when the period cannot be interpreted;
// conversion never fails.
func DecimalYear(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if len(s) == 7 && s[4] == '-' {
		year, err1 := strconv.Atoi(s[:4])
		month, err2 := strconv.Atoi(s[5:])
		if err1 == nil && err2 == nil && month >= 1 && month <= 12 {
			return float64(year) + float64(month)/12.0, true
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatPeriod(r *Row) string {
	if !r.HasPeriod {
		return ""
	}
	return strconv.FormatFloat(r.Period, 'f', -1, 64)
}

func formatValue(r *Row) string {
	if !r.HasValue {
		return ""
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// NormalizeOptions parameterize normalization; the zero value normalizes
// without indicator metadata or caller filters.
type NormalizeOptions struct {
	Indicator  *meta.Indicator   // disaggregation metadata, may be nil
	Flow       string            // dataflow the rows came from, for effective totals
	DimFilters map[string]string // caller overrides by dimension ID; "ALL" removes the default
}

// FilterAll removes the default totals filter for a dimension.
const FilterAll = "ALL"

// Normalize converts a raw tabular response into canonical rows: renames
// known columns, converts periods to decimal years, classifies geo_type,
// applies the per-dimension totals defaults and enriches empty country names.
// It is a total function over its input and performs no I/O; normalizing an
// already-normalized table is a no-op.
func (s *Session) Normalize(ctx context.Context, header []string, recs [][]string, opts NormalizeOptions) []Row {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = canonicalName(h)
	}
	rows := make([]Row, 0, len(recs))
	anyName := false
	for _, rec := range recs {
		row := Row{Dims: map[string]string{}, Attrs: map[string]string{}}
		for i, cell := range rec {
			if i >= len(cols) {
				break
			}
			switch c := cols[i]; c {
			case "iso3":
				row.ISO3 = cell
			case "country_name":
				row.CountryName = cell
			case "indicator":
				row.Indicator = cell
			case "period":
				row.Period, row.HasPeriod = DecimalYear(cell)
			case "value":
				row.Value, row.HasValue = parseValue(cell)
			case "geo_type":
				// Recomputed below.
			default:
				if key := strings.ToLower(c); s.isDimColumn(key, opts.Indicator) {
					row.Dims[key] = cell
				} else {
					row.Attrs[c] = cell
				}
			}
		}
		if row.ISO3 != "" && s.Store.IsAggregate(ctx, row.ISO3) {
			row.GeoType = GeoAggregate
		} else {
			row.GeoType = GeoCountry
		}
		if row.CountryName != "" {
			anyName = true
		}
		rows = append(rows, row)
	}
	rows = s.applyDimFilters(ctx, rows, opts)
	if !anyName && s.Names != nil {
		for i := range rows {
			rows[i].CountryName = s.Names.Name(rows[i].ISO3)
		}
	}
	return rows
}

func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// isDimColumn decides whether a column is a disaggregation dimension; col is
// the lowercased column name. With indicator metadata the indicator's
// disaggregation list is authoritative; otherwise a fixed set of well-known
// dimensions is used.
func (s *Session) isDimColumn(col string, ind *meta.Indicator) bool {
	if ind != nil {
		for _, d := range ind.Disaggregations {
			if strings.ToLower(d) == col {
				return true
			}
		}
		// Metadata may lag the schema; still recognize well-known dimensions.
	}
	return knownDims[col]
}

// applyDimFilters applies the "filter to totals unless otherwise requested"
// policy per dimension. A requested value absent from the data drops the
// filter with a warning rather than emptying the result.
func (s *Session) applyDimFilters(ctx context.Context, rows []Row, opts NormalizeOptions) []Row {
	if opts.Indicator == nil {
		return rows
	}
	for _, dimID := range opts.Indicator.Disaggregations {
		col := strings.ToLower(dimID)
		want := ""
		if v, ok := opts.DimFilters[dimID]; ok {
			if v == FilterAll {
				continue
			}
			want = v
		} else if opts.Indicator.HasTotals(dimID) {
			want = s.Store.EffectiveTotal(ctx, opts.Flow, dimID)
			if want == "" {
				want = sdmx.TotalCode
			}
		}
		if want == "" {
			continue
		}
		present := false
		seen := false
		for i := range rows {
			v, ok := rows[i].Dims[col]
			if !ok {
				continue
			}
			seen = true
			if v == want {
				present = true
				break
			}
		}
		if !seen {
			continue // dimension not in the data at all
		}
		if !present {
			logging.Warningf(ctx,
				"requested %s=%s is not present in the returned data; leaving %s unfiltered",
				dimID, want, dimID)
			continue
		}
		filtered := rows[:0]
		for _, r := range rows {
			// A blank dimension value means the dimension was not reported for
			// the row; such rows are kept.
			if v, ok := r.Dims[col]; !ok || v == "" || v == want {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	return rows
}

// fixedColumns is the canonical column order preceding the dimension and
// attribute columns.
var fixedColumns = []string{
	"indicator", "iso3", "country_name", "period", "value", "geo_type",
}

// Records renders normalized rows back into a header and string records,
// with dimension and attribute columns in sorted order after the fixed
// canonical columns. Normalize(Records(rows)) reproduces rows.
func Records(rows []Row) ([]string, [][]string) {
	dimSet := map[string]bool{}
	attrSet := map[string]bool{}
	for _, r := range rows {
		for k := range r.Dims {
			dimSet[k] = true
		}
		for k := range r.Attrs {
			attrSet[k] = true
		}
	}
	dims := maps.Keys(dimSet)
	slices.Sort(dims)
	attrs := maps.Keys(attrSet)
	slices.Sort(attrs)

	header := append(append([]string{}, fixedColumns...), dims...)
	header = append(header, attrs...)
	recs := make([][]string, len(rows))
	for i, r := range rows {
		rec := []string{
			r.Indicator, r.ISO3, r.CountryName, formatPeriod(&r), formatValue(&r),
			string(r.GeoType),
		}
		for _, d := range dims {
			rec = append(rec, r.Dims[d])
		}
		for _, a := range attrs {
			rec = append(rec, r.Attrs[a])
		}
		recs[i] = rec
	}
	return header, recs
}

// Table renders normalized rows as a printable table.
func Table(rows []Row) *table.Table {
	header, recs := Records(rows)
	tbl := table.NewTable(header...)
	for _, rec := range recs {
		tbl.AddRow(table.Strings(rec))
	}
	return tbl
}
