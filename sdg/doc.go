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

// Package sdg is the high-level client for SDG indicator data: resolve an
// indicator code to its dataflow, download the observations, and normalize
// them into analysis-ready rows.
//
// The central difficulty of the warehouse is that indicator codes do not name
// the dataflow that carries them. Resolution answers that with an ordered
// candidate list (explicit dataflow, override table, indicator catalog,
// prefix fallback sequence, DEFAULT), and the fetcher walks the candidates:
// a NotFound from the data endpoint advances to the next candidate, the
// first OK stops the walk even with zero matching rows, and exhausting all
// candidates surfaces a NotFoundError naming every dataflow attempted.
//
// Normalization renames warehouse columns to canonical names, converts
// periods to decimal years (2020-06 -> 2020.5), classifies geographies into
// countries and aggregates, and by default keeps only rows representing
// dimension totals. All metadata driving these steps lives in the meta
// package; schemas come from the sdmx package, cached per process.
//
// A typical use:
//
//	store := meta.NewStore(cacheDir)
//	s := sdg.NewSession(store)
//	ctx = sdmx.UseClient(ctx, sdmx.Config{})
//	rows, err := s.Fetch(ctx, sdg.Request{
//		Indicators: []string{"CME_MRY0T4"},
//		Countries:  []string{"KEN", "BRA"},
//		StartYear:  2015,
//	})
package sdg
