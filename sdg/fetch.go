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
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/sdgkit/sdgkit/meta"
	"github.com/sdgkit/sdgkit/sdmx"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
	"golang.org/x/exp/slices"
)

// Session owns the shared read-mostly state of a sequence of fetches: the
// metadata store, the schema cache and the country-name lookup. Construct one
// per application and thread it through explicitly; there are no package
// globals. Independent indicator fetches on one session may run concurrently.
type Session struct {
	Store   *meta.Store
	Schemas *sdmx.SchemaCache
	Names   CountryNames

	// fetchData executes one data query; replaced in tests.
	fetchData func(ctx context.Context, q *sdmx.DataQuery) (*sdmx.Result, error)
}

// NewSession creates a session over the given metadata store.
func NewSession(store *meta.Store) *Session {
	return &Session{
		Store:   store,
		Schemas: sdmx.NewSchemaCache(),
		Names:   BuiltinCountryNames(),
		fetchData: func(ctx context.Context, q *sdmx.DataQuery) (*sdmx.Result, error) {
			return q.Fetch(ctx)
		},
	}
}

// Request describes one fetch: which indicator(s), and optional constraints.
type Request struct {
	Indicators []string
	Dataflow   string            // optional explicit dataflow
	Countries  []string          // optional ISO3 filter
	StartYear  int               // optional, 4-digit
	EndYear    int               // optional, 4-digit
	Dims       map[string]string // per-dimension overrides; "ALL" removes the totals default
}

var flowRefRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// check rejects malformed input before any network call, with a specific
// message per defect.
func (r *Request) check() error {
	if len(r.Indicators) == 0 {
		return errors.Reason("at least one indicator code is required")
	}
	for _, code := range r.Indicators {
		if strings.TrimSpace(code) == "" {
			return errors.Reason("indicator code is empty or blank")
		}
	}
	for _, y := range []int{r.StartYear, r.EndYear} {
		if y != 0 && (y < 1000 || y > 9999) {
			return errors.Reason("year %d is not a 4-digit year", y)
		}
	}
	if r.StartYear != 0 && r.EndYear != 0 && r.StartYear > r.EndYear {
		return errors.Reason("start year %d is after end year %d", r.StartYear, r.EndYear)
	}
	if r.Dataflow != "" && !flowRefRe.MatchString(r.Dataflow) {
		return errors.Reason("invalid dataflow reference: '%s'", r.Dataflow)
	}
	for _, c := range r.Countries {
		if strings.TrimSpace(c) == "" {
			return errors.Reason("country code is empty or blank")
		}
	}
	return nil
}

// NotFoundError reports that an indicator was not found in any of the
// attempted dataflows. This is the terminal outcome of an exhausted candidate
// walk; an empty table is never silently substituted for it.
type NotFoundError struct {
	Indicator string
	Attempted []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf(
		"indicator '%s' was not found in any attempted dataflow [%s]; "+
			"check the code with Store.Search or browse the indicator catalog",
		e.Indicator, strings.Join(e.Attempted, ", "))
}

// schema returns the dataflow schema, preferring the in-memory cache, then
// the on-disk snapshot, then the structure endpoint. A nil schema degrades
// the query to country and indicator constraints only.
func (s *Session) schema(ctx context.Context, flow string) *sdmx.DataflowSchema {
	if sc := s.Schemas.Cached(flow); sc != nil {
		return sc
	}
	if doc := s.Store.SchemaDoc(ctx, flow); doc != nil {
		sc := schemaFromDoc(doc)
		s.Schemas.Add(sc)
		return sc
	}
	sc, err := s.Schemas.Schema(ctx, flow)
	if err != nil {
		logging.Warningf(ctx,
			"no schema available for %s, querying without dimension defaults: %s",
			flow, err.Error())
		return nil
	}
	return sc
}

// schemaFromDoc rebuilds an sdmx schema from its on-disk snapshot.
func schemaFromDoc(doc *meta.SchemaDoc) *sdmx.DataflowSchema {
	sc := &sdmx.DataflowSchema{
		ID:             doc.ID,
		Name:           doc.Name,
		Version:        doc.Version,
		TimeDimension:  doc.TimeDimension,
		PrimaryMeasure: doc.PrimaryMeasure,
		Attributes:     append([]string{}, doc.Attributes...),
	}
	for _, d := range doc.Dimensions {
		dim := sdmx.Dimension{
			ID:       d.ID,
			Position: d.Position,
			Codelist: d.Codelist,
		}
		for _, v := range d.Values {
			dim.Codes = append(dim.Codes, sdmx.Code{ID: v})
		}
		dim.HasTotal = dim.HasCode(sdmx.TotalCode)
		sc.Dimensions = append(sc.Dimensions, dim)
	}
	return sc
}

// SchemaToDoc renders a schema into its on-disk snapshot shape.
func SchemaToDoc(sc *sdmx.DataflowSchema) *meta.SchemaDoc {
	doc := &meta.SchemaDoc{
		ID:             sc.ID,
		Name:           sc.Name,
		Version:        sc.Version,
		TimeDimension:  sc.TimeDimension,
		PrimaryMeasure: sc.PrimaryMeasure,
		Attributes:     append([]string{}, sc.Attributes...),
	}
	for _, d := range sc.Dimensions {
		sd := meta.SchemaDimension{
			ID:           d.ID,
			Position:     d.Position,
			Codelist:     d.Codelist,
			Values:       d.CodeIDs(),
			IsExhaustive: d.Codes != nil,
		}
		if ids := d.CodeIDs(); len(ids) > 0 {
			sd.ValuesMin = ids[0]
			sd.ValuesMax = ids[len(ids)-1]
		}
		doc.Dimensions = append(doc.Dimensions, sd)
	}
	return doc
}

// dimHasTotals decides whether the totals default applies to a dimension
// when fetching several indicators in one query. Any indicator marking the
// dimension as having totals makes it a candidate; any indicator that
// disaggregates over the dimension without totals vetoes the default, since
// constraining the key would drop all of its rows.
func dimHasTotals(inds []*meta.Indicator, dimID string) bool {
	candidate := false
	for _, ind := range inds {
		if ind == nil {
			continue
		}
		if ind.HasTotals(dimID) {
			candidate = true
			continue
		}
		if slices.Contains(ind.Disaggregations, dimID) {
			return false
		}
	}
	return candidate
}

// buildQuery assembles the data query for one candidate dataflow: countries,
// indicator codes, year bounds, and one key value per schema dimension. Each
// dimension defaults to its (effective) total code when the indicators'
// metadata marks it as having totals; callers may override any default or
// request FilterAll to leave the dimension unconstrained.
func (s *Session) buildQuery(ctx context.Context, flow string, codes []string,
	req Request, inds []*meta.Indicator, sc *sdmx.DataflowSchema,
	forced map[string]string) *sdmx.DataQuery {

	q := sdmx.NewDataQuery(flow, codes...)
	if len(req.Countries) > 0 {
		q = q.Countries(req.Countries...)
	}
	if req.StartYear != 0 {
		q = q.StartPeriod(req.StartYear)
	}
	if req.EndYear != 0 {
		q = q.EndPeriod(req.EndYear)
	}
	if sc == nil {
		return q
	}
	var values []string
	for _, dimID := range sc.KeyDimensions() {
		v := ""
		switch {
		case forced[dimID] != "":
			v = forced[dimID]
		case req.Dims[dimID] == FilterAll:
			v = ""
		case req.Dims[dimID] != "":
			v = req.Dims[dimID]
		case dimHasTotals(inds, dimID):
			if v = s.Store.EffectiveTotal(ctx, flow, dimID); v == "" {
				v = sdmx.TotalCode
			}
		}
		if v != "" {
			if d := sc.Dimension(dimID); d != nil && d.Codes != nil && !d.HasCode(v) {
				logging.Warningf(ctx,
					"%s has no code %s for dimension %s; leaving it unconstrained",
					flow, v, dimID)
				v = ""
			}
		}
		values = append(values, v)
	}
	return q.Dims(values...)
}

// walk tries each candidate dataflow in order. The first OK result stops the
// walk, even with zero rows: the dataflow claims authority over the
// indicator, and "found the dataflow" and "found matching rows" are distinct
// signals. NotFound advances to the next candidate; exhausting all candidates
// is a NotFoundError naming every dataflow attempted.
func (s *Session) walk(ctx context.Context, codes []string, req Request) ([]Row, error) {
	joined := strings.Join(codes, "+")
	res := s.Resolve(ctx, codes[0], req.Dataflow)
	inds := make([]*meta.Indicator, len(codes))
	for i, code := range codes {
		inds[i] = s.Store.Indicator(ctx, code)
	}
	var attempted []string
	for _, flow := range res.Candidates {
		sc := s.schema(ctx, flow)
		q := s.buildQuery(ctx, flow, codes, req, inds, sc, res.ForcedDims)
		r, err := s.fetchData(ctx, q)
		if err != nil {
			return nil, errors.Annotate(err, "failed to fetch %s from %s", joined, flow)
		}
		attempted = append(attempted, flow)
		if r.Status == sdmx.StatusNotFound {
			logging.Infof(ctx, "%s is not in %s, trying the next candidate", joined, flow)
			continue
		}
		logging.Infof(ctx, "%s found in %s: %d rows", joined, flow, len(r.Rows))
		return s.normalizeAll(ctx, codes, inds, flow, req, r), nil
	}
	return nil, &NotFoundError{Indicator: joined, Attempted: attempted}
}

// normalizeAll normalizes one result, applying each indicator's own metadata
// to its own rows. With several indicators the rows are grouped by the
// indicator column and concatenated in request order, any unrequested codes
// last in sorted order.
func (s *Session) normalizeAll(ctx context.Context, codes []string,
	inds []*meta.Indicator, flow string, req Request, r *sdmx.Result) []Row {

	opts := func(ind *meta.Indicator) NormalizeOptions {
		return NormalizeOptions{Indicator: ind, Flow: flow, DimFilters: req.Dims}
	}
	if len(codes) == 1 {
		return s.Normalize(ctx, r.Header, r.Rows, opts(inds[0]))
	}
	indCol := -1
	for i, h := range r.Header {
		if canonicalName(h) == "indicator" {
			indCol = i
			break
		}
	}
	if indCol < 0 {
		logging.Warningf(ctx,
			"%s has no indicator column; normalizing without indicator metadata", flow)
		return s.Normalize(ctx, r.Header, r.Rows, opts(nil))
	}
	groups := map[string][][]string{}
	for _, rec := range r.Rows {
		code := ""
		if indCol < len(rec) {
			code = rec[indCol]
		}
		groups[code] = append(groups[code], rec)
	}
	byCode := map[string]*meta.Indicator{}
	for i, code := range codes {
		byCode[code] = inds[i]
	}
	order := append([]string{}, codes...)
	var extra []string
	for code := range groups {
		if _, ok := byCode[code]; !ok {
			extra = append(extra, code)
		}
	}
	slices.Sort(extra)
	order = append(order, extra...)
	var rows []Row
	for _, code := range order {
		recs := groups[code]
		if len(recs) == 0 {
			continue
		}
		rows = append(rows, s.Normalize(ctx, r.Header, recs, opts(byCode[code]))...)
	}
	return rows
}

// Fetch resolves and downloads the requested indicator(s) and returns
// normalized observation rows. With an explicit dataflow all indicators are
// fetched in one query; otherwise each indicator is resolved and fetched
// independently (in parallel) and the results are concatenated in request
// order.
func (s *Session) Fetch(ctx context.Context, req Request) ([]Row, error) {
	if err := req.check(); err != nil {
		return nil, errors.Annotate(err, "invalid request")
	}
	if req.Dataflow != "" || len(req.Indicators) == 1 {
		return s.walk(ctx, req.Indicators, req)
	}
	type result struct {
		idx  int
		rows []Row
		err  error
	}
	f := func(idx int) result {
		rows, err := s.walk(ctx, []string{req.Indicators[idx]}, req)
		return result{idx: idx, rows: rows, err: err}
	}
	indices := make([]int, len(req.Indicators))
	for i := range indices {
		indices[i] = i
	}
	pm := iterator.ParallelMap(ctx, 2*runtime.NumCPU(), iterator.FromSlice(indices), f)
	defer pm.Close()

	perIndicator := make([][]Row, len(req.Indicators))
	var firstErr error
	iterator.Reduce[result, int](pm, 0, func(r result, n int) int {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			return n
		}
		perIndicator[r.idx] = r.rows
		return n + 1
	})
	if firstErr != nil {
		return nil, firstErr
	}
	var rows []Row
	for _, rs := range perIndicator {
		rows = append(rows, rs...)
	}
	return rows, nil
}
