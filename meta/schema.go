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

package meta

import (
	"strings"
	"time"
)

// File names of the metadata set inside a metadata directory. The shapes of
// these files are a strict cross-client contract: the parallel R, Python and
// Stata clients load the same files, and any change here must be mirrored
// there.
const (
	IndicatorsFile   = "indicators.yaml"
	FallbacksFile    = "fallback_sequences.yaml"
	RegionsFile      = "regions.yaml"
	OverridesFile    = "overrides.yaml"
	SyncHistoryFile  = "sync_history.yaml"
	SchemaFilePrefix = "dataflow-" // dataflow-<ID>.yaml
)

// Watermark is the _metadata block at the top of generated metadata files.
type Watermark struct {
	Platform    string    `yaml:"platform"`
	Version     string    `yaml:"version"`
	SyncedAt    time.Time `yaml:"synced_at"`
	Source      string    `yaml:"source"`
	Agency      string    `yaml:"agency"`
	ContentType string    `yaml:"content_type"`
}

// Indicator metadata: which dataflows carry the indicator and how it is
// disaggregated. Immutable once loaded; keyed by code, case-sensitive.
type Indicator struct {
	Code                      string   `yaml:"code"`
	Name                      string   `yaml:"name"`
	Dataflows                 []string `yaml:"dataflows"`
	Tier                      int      `yaml:"tier,omitempty"`
	Disaggregations           []string `yaml:"disaggregations,omitempty"`
	DisaggregationsWithTotals []string `yaml:"disaggregations_with_totals,omitempty"`
}

// HasTotals checks whether the dimension's value set includes a total
// sentinel for this indicator.
func (ind *Indicator) HasTotals(dim string) bool {
	for _, d := range ind.DisaggregationsWithTotals {
		if d == dim {
			return true
		}
	}
	return false
}

// Prefix is the leading token of an indicator code split on '_', e.g. "CME"
// for "CME_MRY0T4". Fallback sequences are keyed by prefix.
func Prefix(code string) string {
	if i := strings.Index(code, "_"); i >= 0 {
		return code[:i]
	}
	return code
}

// IndicatorsDoc is the on-disk shape of the indicator catalog.
type IndicatorsDoc struct {
	Metadata   Watermark            `yaml:"_metadata"`
	Indicators map[string]Indicator `yaml:"indicators"`
}

// FallbacksDoc is the on-disk shape of the dataflow fallback sequences,
// keyed by indicator-code prefix plus one DEFAULT entry.
type FallbacksDoc struct {
	FallbackSequences map[string][]string `yaml:"fallback_sequences"`
}

// DefaultKey is the catch-all entry of the fallback-sequences table.
const DefaultKey = "DEFAULT"

// RegionsDoc is the on-disk shape of the aggregate code set: ISO3-like codes
// that denote regions, income groups or other aggregates, with display names.
type RegionsDoc struct {
	Regions map[string]string `yaml:"regions"`
}

// Override forces a specific dataflow, and optionally fixed dimension values,
// for an indicator-code family. Overrides are data, not logic: adding a new
// special case is an edit to the overrides file.
type Override struct {
	Pattern  string            `yaml:"pattern"` // exact code, or prefix ending in '*'
	Dataflow string            `yaml:"dataflow"`
	Dims     map[string]string `yaml:"dims,omitempty"`
}

// Matches checks the indicator code against the override pattern.
func (o *Override) Matches(code string) bool {
	if strings.HasSuffix(o.Pattern, "*") {
		return strings.HasPrefix(code, strings.TrimSuffix(o.Pattern, "*"))
	}
	return code == o.Pattern
}

// OverridesDoc is the on-disk shape of the special-case tables: indicator
// overrides, and per-dataflow effective-total codes for dimensions that have
// no literal total code in that dataflow.
type OverridesDoc struct {
	Overrides       []Override                   `yaml:"overrides"`
	EffectiveTotals map[string]map[string]string `yaml:"effective_totals,omitempty"`
}

// SchemaDimension is one dimension entry of a dataflow schema file.
type SchemaDimension struct {
	ID           string   `yaml:"id"`
	Position     int      `yaml:"position"`
	Codelist     string   `yaml:"codelist,omitempty"`
	Values       []string `yaml:"values,omitempty"`
	ValuesMin    string   `yaml:"values_min,omitempty"`
	ValuesMax    string   `yaml:"values_max,omitempty"`
	IsExhaustive bool     `yaml:"is_exhaustive"`
}

// SchemaDoc is the on-disk shape of one dataflow schema file
// (dataflow-<ID>.yaml).
type SchemaDoc struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Version        string            `yaml:"version"`
	Dimensions     []SchemaDimension `yaml:"dimensions"`
	TimeDimension  string            `yaml:"time_dimension"`
	PrimaryMeasure string            `yaml:"primary_measure"`
	Attributes     []string          `yaml:"attributes,omitempty"`
}

// VintageSummary records one metadata sync attempt.
type VintageSummary struct {
	VintageDate string    `yaml:"vintage_date"` // YYYY-MM-DD
	SyncedAt    time.Time `yaml:"synced_at"`
	Indicators  int       `yaml:"indicators"`
	Dataflows   int       `yaml:"dataflows"`
	Regions     int       `yaml:"regions"`
	Errors      []string  `yaml:"errors,omitempty"`
}

// SyncHistoryDoc is the on-disk shape of the rolling sync log, newest first,
// capped at MaxSyncHistory entries.
type SyncHistoryDoc struct {
	Vintages []VintageSummary `yaml:"vintages"`
}

// MaxSyncHistory is the cap on the sync-history log.
const MaxSyncHistory = 50
