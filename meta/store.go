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
	"context"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var bundled embed.FS

// DefaultMaxAge is the metadata age beyond which the store logs a staleness
// warning.
const DefaultMaxAge = 30 * 24 * time.Hour

// Store is a read-only accessor over the cached metadata set. It loads each
// metadata kind lazily, falling back from the on-disk file to the bundled
// copy to a hardcoded minimal table, so the system stays usable (with reduced
// fallback intelligence) even with no metadata files present.
//
// Safe for concurrent readers. Clear is a write; callers that clear while
// fetches are in flight must serialize around the whole store.
type Store struct {
	dir    string
	maxAge time.Duration

	mu         sync.Mutex
	indicators map[string]Indicator
	watermark  *Watermark
	fallbacks  map[string][]string
	regions    map[string]string
	overrides  []Override
	effTotals  map[string]map[string]string
}

// NewStore creates a store over the given metadata directory. The directory
// may be a vintage snapshot (see VintageDir) for reproducible historical
// queries.
func NewStore(dir string) *Store {
	return &Store{dir: dir, maxAge: DefaultMaxAge}
}

// SetMaxAge overrides the staleness threshold.
func (s *Store) SetMaxAge(d time.Duration) { s.maxAge = d }

// Dir returns the metadata directory the store reads from.
func (s *Store) Dir() string { return s.dir }

// Clear drops all loaded state. The next access reloads from disk.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indicators = nil
	s.watermark = nil
	s.fallbacks = nil
	s.regions = nil
	s.overrides = nil
	s.effTotals = nil
}

func readYAMLFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Annotate(err, "failed to read '%s'", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.Annotate(err, "failed to parse '%s'", path)
	}
	return nil
}

// loadKind reads one metadata file from the store directory, falling back to
// the bundled copy. It returns an error only when both sources fail; the
// caller then substitutes the hardcoded minimal default.
func (s *Store) loadKind(ctx context.Context, name string, v any) error {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		if err := readYAMLFile(path, v); err == nil {
			return nil
		} else {
			logging.Warningf(ctx, "metadata file unusable, trying bundled copy: %s",
				err.Error())
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		logging.Warningf(ctx, "cannot check '%s', trying bundled copy: %s",
			path, err.Error())
	}
	data, err := bundled.ReadFile("defaults/" + name)
	if err != nil {
		return errors.Reason("no usable source for '%s'", name)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.Annotate(err, "failed to parse bundled '%s'", name)
	}
	logging.Warningf(ctx, "using bundled copy of '%s'", name)
	return nil
}

func (s *Store) loadIndicatorsLocked(ctx context.Context) {
	if s.indicators != nil {
		return
	}
	var doc IndicatorsDoc
	if err := s.loadKind(ctx, IndicatorsFile, &doc); err != nil {
		logging.Warningf(ctx,
			"no indicator catalog available, resolution degrades to fallback sequences: %s",
			err.Error())
		s.indicators = map[string]Indicator{}
		return
	}
	s.indicators = doc.Indicators
	if s.indicators == nil {
		s.indicators = map[string]Indicator{}
	}
	s.watermark = &doc.Metadata
	if age := time.Since(doc.Metadata.SyncedAt); age > s.maxAge && !doc.Metadata.SyncedAt.IsZero() {
		logging.Warningf(ctx,
			"indicator catalog is %d days old (threshold %d); run a metadata sync",
			int(age.Hours()/24), int(s.maxAge.Hours()/24))
	}
}

func (s *Store) loadFallbacksLocked(ctx context.Context) {
	if s.fallbacks != nil {
		return
	}
	var doc FallbacksDoc
	if err := s.loadKind(ctx, FallbacksFile, &doc); err != nil {
		logging.Warningf(ctx, "no fallback sequences available, using minimal default: %s",
			err.Error())
		doc.FallbackSequences = nil
	}
	s.fallbacks = doc.FallbackSequences
	if s.fallbacks == nil {
		s.fallbacks = map[string][]string{}
	}
	if _, ok := s.fallbacks[DefaultKey]; !ok {
		s.fallbacks[DefaultKey] = []string{GlobalDataflow}
	}
}

func (s *Store) loadRegionsLocked(ctx context.Context) {
	if s.regions != nil {
		return
	}
	var doc RegionsDoc
	if err := s.loadKind(ctx, RegionsFile, &doc); err != nil {
		logging.Warningf(ctx, "no regions file available, using minimal default: %s",
			err.Error())
		doc.Regions = map[string]string{"WORLD": "World"}
	}
	s.regions = doc.Regions
	if s.regions == nil {
		s.regions = map[string]string{}
	}
}

func (s *Store) loadOverridesLocked(ctx context.Context) {
	if s.overrides != nil {
		return
	}
	var doc OverridesDoc
	if err := s.loadKind(ctx, OverridesFile, &doc); err != nil {
		logging.Warningf(ctx, "no overrides file available: %s", err.Error())
	}
	s.overrides = doc.Overrides
	if s.overrides == nil {
		s.overrides = []Override{}
	}
	s.effTotals = doc.EffectiveTotals
	if s.effTotals == nil {
		s.effTotals = map[string]map[string]string{}
	}
}

// GlobalDataflow is the generic catch-all dataflow that carries a copy of
// most indicators. It terminates every fallback sequence.
const GlobalDataflow = "GLOBAL_DATAFLOW"

// Indicator returns the catalog entry for the code, or nil when the code is
// not in the catalog.
func (s *Store) Indicator(ctx context.Context, code string) *Indicator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadIndicatorsLocked(ctx)
	ind, ok := s.indicators[code]
	if !ok {
		return nil
	}
	return &ind
}

// Indicators returns the full catalog sorted by code.
func (s *Store) Indicators(ctx context.Context) []Indicator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadIndicatorsLocked(ctx)
	codes := maps.Keys(s.indicators)
	slices.Sort(codes)
	res := make([]Indicator, len(codes))
	for i, c := range codes {
		res[i] = s.indicators[c]
	}
	return res
}

// Search returns catalog entries whose code or name contains the query,
// case-insensitively, sorted by code.
func (s *Store) Search(ctx context.Context, query string) []Indicator {
	q := strings.ToLower(query)
	var res []Indicator
	for _, ind := range s.Indicators(ctx) {
		if strings.Contains(strings.ToLower(ind.Code), q) ||
			strings.Contains(strings.ToLower(ind.Name), q) {
			res = append(res, ind)
		}
	}
	return res
}

// Watermark returns the _metadata block of the indicator catalog, or nil when
// the catalog came from a fallback source without one.
func (s *Store) Watermark(ctx context.Context) *Watermark {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadIndicatorsLocked(ctx)
	return s.watermark
}

// FallbackSequence returns the ordered dataflow candidates for the prefix, or
// nil when the prefix has no entry.
func (s *Store) FallbackSequence(ctx context.Context, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadFallbacksLocked(ctx)
	seq, ok := s.fallbacks[prefix]
	if !ok {
		return nil
	}
	return append([]string{}, seq...)
}

// DefaultSequence returns the DEFAULT fallback entry, never empty.
func (s *Store) DefaultSequence(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadFallbacksLocked(ctx)
	return append([]string{}, s.fallbacks[DefaultKey]...)
}

// IsAggregate classifies an ISO3-like code: true for regions, income groups
// and other reporting aggregates, false for countries.
func (s *Store) IsAggregate(ctx context.Context, iso3 string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadRegionsLocked(ctx)
	_, ok := s.regions[iso3]
	return ok
}

// Regions returns the aggregate code set with display names.
func (s *Store) Regions(ctx context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadRegionsLocked(ctx)
	res := make(map[string]string, len(s.regions))
	for k, v := range s.regions {
		res[k] = v
	}
	return res
}

// Override returns the first special-case entry matching the indicator code,
// or nil.
func (s *Store) Override(ctx context.Context, code string) *Override {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadOverridesLocked(ctx)
	for i := range s.overrides {
		if s.overrides[i].Matches(code) {
			return &s.overrides[i]
		}
	}
	return nil
}

// EffectiveTotal returns the code that acts as the total for the dimension in
// the given dataflow, or "" when the dataflow has no such override.
func (s *Store) EffectiveTotal(ctx context.Context, flow, dim string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadOverridesLocked(ctx)
	return s.effTotals[flow][dim]
}

// SchemaDoc loads the on-disk schema snapshot of a dataflow, or nil when the
// directory has none. Schema snapshots are optional; the schema cache fetches
// from the structure endpoint on a miss.
func (s *Store) SchemaDoc(ctx context.Context, flow string) *SchemaDoc {
	path := filepath.Join(s.dir, SchemaFilePrefix+flow+".yaml")
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warningf(ctx, "cannot check schema snapshot '%s': %s",
				path, err.Error())
		}
		return nil
	}
	var doc SchemaDoc
	if err := readYAMLFile(path, &doc); err != nil {
		logging.Warningf(ctx, "ignoring unusable schema snapshot: %s", err.Error())
		return nil
	}
	return &doc
}
