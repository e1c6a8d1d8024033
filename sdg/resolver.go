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

	"github.com/sdgkit/sdgkit/meta"
)

// Resolution is an ordered, deduplicated list of candidate dataflows for one
// indicator, plus any dimension values forced by a special-case override.
type Resolution struct {
	Candidates []string
	ForcedDims map[string]string
}

// appendUnique appends the values to dst, skipping any value already present,
// preserving first-occurrence order.
func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

// Resolve maps an indicator code to the ordered list of dataflows to try. The
// list is never empty and is a pure function of the code, the explicit
// dataflow and the current metadata store contents.
//
// Priority: table-driven override, explicit dataflow, direct catalog hit,
// prefix fallback sequence, generic catch-all. The override and explicit
// cases keep the prefix fallbacks appended (minus duplicates) in case the
// first guess turns out not to contain the indicator.
func (s *Session) Resolve(ctx context.Context, code, explicit string) Resolution {
	prefixSeq := s.Store.FallbackSequence(ctx, meta.Prefix(code))

	if o := s.Store.Override(ctx, code); o != nil {
		forced := make(map[string]string, len(o.Dims))
		for k, v := range o.Dims {
			forced[k] = v
		}
		return Resolution{
			Candidates: appendUnique([]string{o.Dataflow}, prefixSeq...),
			ForcedDims: forced,
		}
	}
	if explicit != "" {
		return Resolution{Candidates: appendUnique([]string{explicit}, prefixSeq...)}
	}
	if ind := s.Store.Indicator(ctx, code); ind != nil && len(ind.Dataflows) > 0 {
		// The catalog list is already ordered with the catch-all last; that is
		// enforced at metadata-build time, not here.
		return Resolution{Candidates: appendUnique(nil, ind.Dataflows...)}
	}
	if len(prefixSeq) > 0 {
		return Resolution{Candidates: appendUnique(nil, prefixSeq...)}
	}
	return Resolution{Candidates: s.Store.DefaultSequence(ctx)}
}
