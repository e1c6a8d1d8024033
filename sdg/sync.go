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
	"sort"
	"time"

	"github.com/sdgkit/sdgkit/meta"
	"github.com/sdgkit/sdgkit/sdmx"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Version of the client, stamped into the metadata watermark.
const Version = "0.1.0"

// Syncer rebuilds the on-disk metadata set from the warehouse structure API.
// The regions and overrides tables are curated by hand and are rewritten
// verbatim from the store's current view; everything else is regenerated.
type Syncer struct {
	Store *meta.Store

	// Agency and Source are stamped into the metadata watermark.
	Agency string
	Source string

	now         func() time.Time
	fetchFlows  func(ctx context.Context) ([]sdmx.DataflowRef, error)
	fetchSchema func(ctx context.Context, flow string) (*sdmx.DataflowSchema, error)
}

// NewSyncer creates a metadata syncer writing into the store's directory.
func NewSyncer(store *meta.Store) *Syncer {
	return &Syncer{
		Store:       store,
		now:         time.Now,
		fetchFlows:  sdmx.FetchDataflows,
		fetchSchema: sdmx.FetchDataflowSchema,
	}
}

// indicatorDim is the dimension carrying indicator codes in the series key.
const indicatorDim = "INDICATOR"

// Sync re-downloads the dataflow list and per-dataflow schemas, rebuilds the
// indicator catalog and fallback sequences, rewrites the metadata files,
// snapshots them into a dated vintage and appends to the sync history. Flows
// may list specific dataflow IDs; empty means all of the agency's dataflows.
//
// A failure to fetch one dataflow's schema is recorded in the summary and
// skipped; only a failure to list dataflows, or to write the results, aborts
// the sync.
func (y *Syncer) Sync(ctx context.Context, flows []string) (*meta.VintageSummary, error) {
	syncedAt := y.now().UTC()
	sum := &meta.VintageSummary{
		VintageDate: syncedAt.Format("2006-01-02"),
		SyncedAt:    syncedAt,
	}
	if len(flows) == 0 {
		refs, err := y.fetchFlows(ctx)
		if err != nil {
			return nil, errors.Annotate(err, "failed to list dataflows")
		}
		for _, r := range refs {
			flows = append(flows, r.ID)
		}
	}
	logging.Infof(ctx, "syncing metadata for %d dataflows", len(flows))

	schemas := make(map[string]*sdmx.DataflowSchema)
	for _, flow := range flows {
		sc, err := y.fetchSchema(ctx, flow)
		if err != nil {
			msg := fmt.Sprintf("skipped %s: %s", flow, err.Error())
			logging.Warningf(ctx, "%s", msg)
			sum.Errors = append(sum.Errors, msg)
			continue
		}
		schemas[flow] = sc
		if err := meta.WriteSchemaDoc(y.Store.Dir(), SchemaToDoc(sc)); err != nil {
			return nil, errors.Annotate(err, "failed to write schema of %s", flow)
		}
	}
	sum.Dataflows = len(schemas)

	indicators := buildCatalog(schemas)
	sum.Indicators = len(indicators)
	watermark := meta.Watermark{
		Platform:    "go",
		Version:     Version,
		SyncedAt:    syncedAt,
		Source:      y.Source,
		Agency:      y.Agency,
		ContentType: "indicators",
	}
	if err := meta.WriteIndicators(y.Store.Dir(), &meta.IndicatorsDoc{
		Metadata:   watermark,
		Indicators: indicators,
	}); err != nil {
		return nil, errors.Annotate(err, "failed to write indicator catalog")
	}

	fallbacks := buildFallbacks(ctx, y.Store, indicators)
	if err := meta.WriteFallbacks(y.Store.Dir(), &meta.FallbacksDoc{
		FallbackSequences: fallbacks,
	}); err != nil {
		return nil, errors.Annotate(err, "failed to write fallback sequences")
	}

	regions := y.Store.Regions(ctx)
	sum.Regions = len(regions)
	if err := meta.WriteRegions(y.Store.Dir(), &meta.RegionsDoc{
		Regions: regions,
	}); err != nil {
		return nil, errors.Annotate(err, "failed to write regions")
	}

	if err := meta.WriteVintage(y.Store.Dir(), *sum); err != nil {
		return nil, errors.Annotate(err, "failed to write vintage snapshot")
	}
	if err := meta.AppendSyncHistory(y.Store.Dir(), *sum); err != nil {
		return nil, errors.Annotate(err, "failed to append sync history")
	}
	y.Store.Clear() // the next read picks up the fresh files
	logging.Infof(ctx, "synced %d indicators across %d dataflows",
		sum.Indicators, sum.Dataflows)
	return sum, nil
}

// buildCatalog derives the indicator catalog from the INDICATOR codelists of
// the downloaded schemas. Each indicator lists the dataflows that carry it,
// most specific first: dataflows carrying fewer indicators are assumed more
// specific, and the catch-all global dataflow always sorts last.
func buildCatalog(schemas map[string]*sdmx.DataflowSchema) map[string]meta.Indicator {
	sizes := make(map[string]int) // flow -> number of indicator codes
	for flow, sc := range schemas {
		if d := sc.Dimension(indicatorDim); d != nil {
			sizes[flow] = len(d.Codes)
		}
	}
	indicators := make(map[string]meta.Indicator)
	for flow, sc := range schemas {
		d := sc.Dimension(indicatorDim)
		if d == nil {
			continue
		}
		for _, c := range d.Codes {
			ind, ok := indicators[c.ID]
			if !ok {
				ind = meta.Indicator{Code: c.ID, Name: c.Name}
			}
			if ind.Name == "" {
				ind.Name = c.Name
			}
			ind.Dataflows = append(ind.Dataflows, flow)
			indicators[c.ID] = ind
		}
	}
	for code, ind := range indicators {
		sortFlows(ind.Dataflows, sizes)
		// Disaggregations come from the indicator's most specific dataflow.
		sc := schemas[ind.Dataflows[0]]
		for _, dim := range sc.KeyDimensions() {
			ind.Disaggregations = append(ind.Disaggregations, dim)
			if d := sc.Dimension(dim); d != nil && d.HasTotal {
				ind.DisaggregationsWithTotals =
					append(ind.DisaggregationsWithTotals, dim)
			}
		}
		indicators[code] = ind
	}
	return indicators
}

// sortFlows orders candidate dataflows most specific first: smaller
// indicator count first, the global catch-all last, ties broken by name for
// determinism.
func sortFlows(flows []string, sizes map[string]int) {
	sort.SliceStable(flows, func(i, j int) bool {
		gi := flows[i] == meta.GlobalDataflow
		gj := flows[j] == meta.GlobalDataflow
		if gi != gj {
			return gj
		}
		if sizes[flows[i]] != sizes[flows[j]] {
			return sizes[flows[i]] < sizes[flows[j]]
		}
		return flows[i] < flows[j]
	})
}

// buildFallbacks derives per-prefix fallback sequences from the regenerated
// catalog: for each indicator-code prefix, the dataflows carrying indicators
// of that prefix ordered by how many they carry, with the global catch-all
// appended last. Hand-curated entries already in the store win over derived
// ones; the DEFAULT entry is always present.
func buildFallbacks(ctx context.Context, store *meta.Store,
	indicators map[string]meta.Indicator) map[string][]string {

	counts := make(map[string]map[string]int) // prefix -> flow -> indicators
	for code, ind := range indicators {
		prefix := meta.Prefix(code)
		if counts[prefix] == nil {
			counts[prefix] = make(map[string]int)
		}
		for _, flow := range ind.Dataflows {
			counts[prefix][flow]++
		}
	}
	fallbacks := make(map[string][]string)
	for prefix, byFlow := range counts {
		if seq := store.FallbackSequence(ctx, prefix); seq != nil {
			fallbacks[prefix] = seq
			continue
		}
		flows := maps.Keys(byFlow)
		slices.SortFunc(flows, func(a, b string) bool {
			ga, gb := a == meta.GlobalDataflow, b == meta.GlobalDataflow
			if ga != gb {
				return gb
			}
			if byFlow[a] != byFlow[b] {
				return byFlow[a] > byFlow[b]
			}
			return a < b
		})
		if !slices.Contains(flows, meta.GlobalDataflow) {
			flows = append(flows, meta.GlobalDataflow)
		}
		fallbacks[prefix] = flows
	}
	fallbacks[meta.DefaultKey] = store.DefaultSequence(ctx)
	return fallbacks
}
