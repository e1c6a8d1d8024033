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

// Package sdmx implements a generic client for SDMX REST endpoints.
//
// The data endpoint serves observations as SDMX-CSV, filtered by a series key
// of the form COUNTRY.INDICATOR.DIM1.DIM2... where an empty key part leaves
// that dimension unconstrained. Responses are capped at a fixed page size;
// DataQuery.Fetch pages through the result set transparently and concatenates
// the pages in request order.
//
// A 404 from the data endpoint means "this dataflow does not contain the
// requested series key". That is an expected outcome when probing candidate
// dataflows, so Fetch reports it as StatusNotFound rather than an error.
// Transient failures are retried with exponential backoff and become hard
// errors only after the retry budget is exhausted.
//
// The structure endpoint describes each dataflow's dimensions, codelists,
// time dimension and attributes. SchemaCache memoizes those structures for
// the lifetime of the process.
//
// Indicator-aware logic, such as resolving which dataflow contains a given
// indicator, lives in the sdg package.
package sdmx
