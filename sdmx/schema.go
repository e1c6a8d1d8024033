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

package sdmx

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
)

// TotalCode is the conventional sentinel meaning "aggregated across all
// categories of this dimension".
const TotalCode = "_T"

// Code is a single entry of a codelist.
type Code struct {
	ID   string
	Name string
}

// Dimension of a dataflow: a categorical axis of disaggregation.
type Dimension struct {
	ID       string
	Position int
	Codelist string // codelist ID, empty if not enumerated
	Codes    []Code // nil if not enumerated
	HasTotal bool   // the codelist contains the TotalCode sentinel
}

// CodeIDs returns the IDs of the dimension's codes.
func (d *Dimension) CodeIDs() []string {
	if d.Codes == nil {
		return nil
	}
	ids := make([]string, len(d.Codes))
	for i, c := range d.Codes {
		ids[i] = c.ID
	}
	return ids
}

// HasCode checks whether the dimension's codelist contains the given code.
func (d *Dimension) HasCode(id string) bool {
	for _, c := range d.Codes {
		if c.ID == id {
			return true
		}
	}
	return false
}

// DataflowSchema is the dimensional structure of one dataflow. Built once on
// first access and never mutated afterward.
type DataflowSchema struct {
	ID             string
	Name           string
	Version        string
	Dimensions     []Dimension // ordered by position; excludes the time dimension
	TimeDimension  string
	PrimaryMeasure string
	Attributes     []string
}

// Dimension returns the dimension with the given ID, or nil.
func (s *DataflowSchema) Dimension(id string) *Dimension {
	for i := range s.Dimensions {
		if s.Dimensions[i].ID == id {
			return &s.Dimensions[i]
		}
	}
	return nil
}

// KeyDimensions returns the dimension IDs that follow the country and
// indicator in the series key, in key order.
func (s *DataflowSchema) KeyDimensions() []string {
	var ids []string
	for _, d := range s.Dimensions {
		switch d.ID {
		case "REF_AREA", "INDICATOR":
			continue
		}
		ids = append(ids, d.ID)
	}
	return ids
}

// Wire structs for the SDMX-JSON structure message. Only the parts this
// package consumes are declared; the decoder ignores the rest.

type wireComponent struct {
	ID                  string `json:"id"`
	Position            int    `json:"position"`
	LocalRepresentation struct {
		Enumeration string `json:"enumeration"`
	} `json:"localRepresentation"`
}

type wireStructure struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	Components struct {
		DimensionList struct {
			Dimensions     []wireComponent `json:"dimensions"`
			TimeDimensions []wireComponent `json:"timeDimensions"`
		} `json:"dimensionList"`
		AttributeList struct {
			Attributes []wireComponent `json:"attributes"`
		} `json:"attributeList"`
		MeasureList struct {
			PrimaryMeasure *wireComponent `json:"primaryMeasure"`
		} `json:"measureList"`
	} `json:"dataStructureComponents"`
}

type wireCodelist struct {
	ID    string `json:"id"`
	Codes []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"codes"`
}

type wireDataflow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type structureDocument struct {
	Data struct {
		Dataflows      []wireDataflow  `json:"dataflows"`
		DataStructures []wireStructure `json:"dataStructures"`
		Codelists      []wireCodelist  `json:"codelists"`
	} `json:"data"`
}

// codelistID extracts the codelist ID from an SDMX URN such as
// "urn:sdmx:org.sdmx.infomodel.codelist.Codelist=UNICEF:CL_SEX(1.0)".
func codelistID(urn string) string {
	i := strings.LastIndex(urn, ":")
	if i < 0 {
		return ""
	}
	id := urn[i+1:]
	if j := strings.Index(id, "("); j >= 0 {
		id = id[:j]
	}
	return id
}

// DataflowRef identifies one dataflow of the agency.
type DataflowRef struct {
	ID      string
	Name    string
	Version string
}

// FetchDataflows lists all dataflows published by the client's agency.
func FetchDataflows(ctx context.Context) ([]DataflowRef, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	uri := client.config.BaseURL + "/dataflow/" + client.config.Agency + "/all/latest"
	var doc structureDocument
	query := structureQuery("none")
	if err := fetch.FetchJSON(ctx, uri, &doc, query, nil); err != nil {
		return nil, errors.Annotate(err, "failed to fetch dataflow list")
	}
	refs := make([]DataflowRef, len(doc.Data.Dataflows))
	for i, df := range doc.Data.Dataflows {
		refs[i] = DataflowRef{ID: df.ID, Name: df.Name, Version: df.Version}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func structureQuery(references string) url.Values {
	v := make(url.Values)
	v["format"] = []string{"sdmx-json"}
	v["references"] = []string{references}
	return v
}

// FetchDataflowSchema downloads the structure of one dataflow, resolving its
// dimension codelists.
func FetchDataflowSchema(ctx context.Context, flow string) (*DataflowSchema, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	uri := client.config.BaseURL + "/dataflow/" + client.config.Agency + "/" +
		flow + "/" + client.config.Version
	var doc structureDocument
	if err := fetch.FetchJSON(ctx, uri, &doc, structureQuery("all"), nil); err != nil {
		return nil, errors.Annotate(err, "failed to fetch structure of '%s'", flow)
	}
	if len(doc.Data.DataStructures) == 0 {
		return nil, errors.Reason("structure of '%s' contains no data structures", flow)
	}
	ws := doc.Data.DataStructures[0]
	codelists := make(map[string][]Code)
	for _, cl := range doc.Data.Codelists {
		codes := make([]Code, len(cl.Codes))
		for i, c := range cl.Codes {
			codes[i] = Code{ID: c.ID, Name: c.Name}
		}
		codelists[cl.ID] = codes
	}
	name := ws.Name
	version := ws.Version
	if len(doc.Data.Dataflows) > 0 {
		name = doc.Data.Dataflows[0].Name
		version = doc.Data.Dataflows[0].Version
	}
	schema := &DataflowSchema{
		ID:      flow,
		Name:    name,
		Version: version,
	}
	dims := append([]wireComponent{}, ws.Components.DimensionList.Dimensions...)
	sort.Slice(dims, func(i, j int) bool { return dims[i].Position < dims[j].Position })
	for _, wd := range dims {
		d := Dimension{
			ID:       wd.ID,
			Position: wd.Position,
			Codelist: codelistID(wd.LocalRepresentation.Enumeration),
		}
		if codes, ok := codelists[d.Codelist]; ok {
			d.Codes = codes
			d.HasTotal = d.HasCode(TotalCode)
		}
		schema.Dimensions = append(schema.Dimensions, d)
	}
	if len(ws.Components.DimensionList.TimeDimensions) > 0 {
		schema.TimeDimension = ws.Components.DimensionList.TimeDimensions[0].ID
	}
	if pm := ws.Components.MeasureList.PrimaryMeasure; pm != nil {
		schema.PrimaryMeasure = pm.ID
	}
	for _, a := range ws.Components.AttributeList.Attributes {
		schema.Attributes = append(schema.Attributes, a.ID)
	}
	return schema, nil
}

// SchemaCache is a process-lifetime cache of dataflow schemas, populated
// lazily from the structure endpoint. Safe for concurrent use.
type SchemaCache struct {
	mu      sync.Mutex
	schemas map[string]*DataflowSchema
}

// NewSchemaCache creates an empty cache.
func NewSchemaCache() *SchemaCache {
	return &SchemaCache{schemas: make(map[string]*DataflowSchema)}
}

// Schema returns the cached schema for the dataflow, fetching and caching it
// on a miss.
func (c *SchemaCache) Schema(ctx context.Context, flow string) (*DataflowSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.schemas[flow]; ok {
		return s, nil
	}
	s, err := FetchDataflowSchema(ctx, flow)
	if err != nil {
		return nil, errors.Annotate(err, "failed to populate schema cache for '%s'", flow)
	}
	logging.Debugf(ctx, "cached schema of %s with %d dimensions",
		flow, len(s.Dimensions))
	c.schemas[flow] = s
	return s, nil
}

// Add preloads a schema, e.g. from an on-disk metadata snapshot.
func (c *SchemaCache) Add(s *DataflowSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[s.ID] = s
}

// Cached returns the schema if it is already in the cache, without fetching.
func (c *SchemaCache) Cached(flow string) *DataflowSchema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schemas[flow]
}

// Clear drops all cached schemas. The next access repopulates the cache.
func (c *SchemaCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas = make(map[string]*DataflowSchema)
}
