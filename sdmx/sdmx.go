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
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

type contextKey int

const (
	clientContextKey contextKey = iota
)

// URL is the default base URL of the SDMX REST endpoint. It may be overwritten
// in tests before creating a new client.
var URL = "https://sdmx.data.unicef.org/ws/public/sdmxapi/rest"

// Config holds the client parameters. The zero value of any field selects its
// default.
type Config struct {
	BaseURL    string        // default: the package-level URL
	Agency     string        // default: "UNICEF"
	Version    string        // dataflow version; default: "1.0"
	PageSize   int           // rows per page; default: 100,000
	Retries    int           // retries after a failed attempt; default: 3, negative = none
	RetryDelay time.Duration // base backoff delay, doubles per attempt; default: 500ms
	Timeout    time.Duration // per-call timeout; default: 60s
	HTTPClient *http.Client  // default: http.DefaultClient
}

// DefaultPageSize is the largest page the data endpoint serves in one response.
const DefaultPageSize = 100_000

// Client for querying SDMX data and structure endpoints.
type Client struct {
	config Config
	sleep  func(time.Duration) // backoff; replaced in tests
}

// newClient creates a new client, filling in the config defaults.
func newClient(c Config) *Client {
	if c.BaseURL == "" {
		c.BaseURL = URL
	}
	if c.Agency == "" {
		c.Agency = "UNICEF"
	}
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return &Client{config: c, sleep: time.Sleep}
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a new client from the config and injects it into the
// context.
func UseClient(ctx context.Context, c Config) context.Context {
	return context.WithValue(ctx, clientContextKey, newClient(c))
}

// BaseURL of the endpoint the client talks to.
func (c *Client) BaseURL() string { return c.config.BaseURL }

// Agency of the dataflows the client queries.
func (c *Client) Agency() string { return c.config.Agency }

// FlowRef formats the full dataflow reference "AGENCY,FLOW,VERSION".
func (c *Client) FlowRef(flow string) string {
	return c.config.Agency + "," + flow + "," + c.config.Version
}

// Status is the tagged outcome of a data fetch. A dataflow that does not
// contain the requested series key responds with a 404, which is an expected
// outcome ("try the next candidate"), not an error.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
)

// Result of a paged data fetch: the CSV header and all rows of all pages,
// concatenated in request order.
type Result struct {
	Status Status
	Header []string
	Rows   [][]string
	Pages  int
}

// DataQuery is a builder for a data endpoint query. Builder methods create a
// deep copy of the query, leaving the original intact.
type DataQuery struct {
	flow        string
	indicators  []string
	countries   []string
	dimValues   []string // series key values after country and indicator, "" = unconstrained
	startPeriod string
	endPeriod   string
}

// NewDataQuery creates a query for the given dataflow and indicator code(s).
func NewDataQuery(flow string, indicators ...string) *DataQuery {
	return &DataQuery{flow: flow, indicators: indicators}
}

// Copy creates a deep copy of the query.
func (q *DataQuery) Copy() *DataQuery {
	q2 := DataQuery{
		flow:        q.flow,
		startPeriod: q.startPeriod,
		endPeriod:   q.endPeriod,
	}
	q2.indicators = append([]string{}, q.indicators...)
	q2.countries = append([]string{}, q.countries...)
	q2.dimValues = append([]string{}, q.dimValues...)
	return &q2
}

// Flow returns the dataflow ID the query targets.
func (q *DataQuery) Flow() string { return q.flow }

// Countries constrains the query to the given ISO3 codes.
func (q *DataQuery) Countries(iso3 ...string) *DataQuery {
	q2 := q.Copy()
	q2.countries = append([]string{}, iso3...)
	return q2
}

// Dims sets the series key values for the dimensions following the country and
// indicator, in the dataflow's dimension order. An empty string leaves the
// dimension unconstrained.
func (q *DataQuery) Dims(values ...string) *DataQuery {
	q2 := q.Copy()
	q2.dimValues = append([]string{}, values...)
	return q2
}

// StartPeriod constrains observations to periods >= year.
func (q *DataQuery) StartPeriod(year int) *DataQuery {
	q2 := q.Copy()
	q2.startPeriod = fmt.Sprintf("%d", year)
	return q2
}

// EndPeriod constrains observations to periods <= year.
func (q *DataQuery) EndPeriod(year int) *DataQuery {
	q2 := q.Copy()
	q2.endPeriod = fmt.Sprintf("%d", year)
	return q2
}

// Key returns the series key part of the URL path:
// COUNTRY+COUNTRY.INDICATOR+INDICATOR.DIM1.DIM2...
func (q *DataQuery) Key() string {
	parts := []string{
		strings.Join(q.countries, "+"),
		strings.Join(q.indicators, "+"),
	}
	parts = append(parts, q.dimValues...)
	return strings.Join(parts, ".")
}

// Path returns the URL path of the query relative to the base URL.
func (q *DataQuery) Path(c *Client) string {
	return "/data/" + c.FlowRef(q.flow) + "/" + q.Key()
}

// Values returns the URL query values for one page starting at startIndex.
func (q *DataQuery) Values(startIndex, count int) url.Values {
	v := make(url.Values)
	v["format"] = []string{"csv"}
	v["labels"] = []string{"id"}
	if q.startPeriod != "" {
		v["startPeriod"] = []string{q.startPeriod}
	}
	if q.endPeriod != "" {
		v["endPeriod"] = []string{q.endPeriod}
	}
	if startIndex > 0 {
		v["startIndex"] = []string{fmt.Sprintf("%d", startIndex)}
	}
	v["count"] = []string{fmt.Sprintf("%d", count)}
	return v
}

// notFound is the internal sentinel for a 404-class response.
var notFound = fmt.Errorf("series key not found")

// getRetry issues a GET request, retrying transient failures with exponential
// backoff. A 404-class response is returned as the notFound sentinel
// immediately, without retrying. Exhausting the retry budget is a hard error.
func (c *Client) getRetry(ctx context.Context, uri string, query url.Values) ([]byte, error) {
	var lastErr error
	delay := c.config.RetryDelay
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if attempt > 0 {
			c.sleep(delay)
			delay *= 2
		}
		body, err := c.getOnce(ctx, uri, query)
		if err == nil || errors.Is(err, notFound) {
			return body, err
		}
		logging.Warningf(ctx, "attempt %d of %d failed: %s",
			attempt+1, c.config.Retries+1, err.Error())
		lastErr = err
	}
	return nil, errors.Annotate(lastErr, "no more retries after %d failed attempts",
		c.config.Retries+1)
}

func (c *Client) getOnce(ctx context.Context, uri string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Annotate(err, "failed to create request for '%s'", uri)
	}
	req.URL.RawQuery = query.Encode()
	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Annotate(err, "request failed for '%s'", uri)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusNoContent:
		return nil, notFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.Reason("GET '%s' returned status %d", uri, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read response body of '%s'", uri)
	}
	return body, nil
}

// parseCSVPage parses one page of SDMX-CSV data into a header and rows. An
// empty body is a valid page with zero rows.
func parseCSVPage(body []byte) ([]string, [][]string, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil, nil
	}
	r := csv.NewReader(strings.NewReader(string(body)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.Annotate(err, "failed to parse CSV page")
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// Fetch executes the query using the Client from the context, paging through
// the result set until a short or empty page, and concatenates all pages. A
// dataflow that does not contain the series key yields StatusNotFound; that
// outcome never raises an error.
func (q *DataQuery) Fetch(ctx context.Context) (*Result, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("DataQuery.Fetch: no client in context")
	}
	uri := client.config.BaseURL + q.Path(client)
	pageSize := client.config.PageSize
	res := &Result{}
	for startIndex := 0; ; startIndex += pageSize {
		body, err := client.getRetry(ctx, uri, q.Values(startIndex, pageSize))
		if errors.Is(err, notFound) {
			if res.Pages == 0 {
				res.Status = StatusNotFound
				return res, nil
			}
			break // the server may 404 past the last page
		}
		if err != nil {
			return nil, errors.Annotate(err, "failed to fetch page %d of %s",
				res.Pages+1, q.flow)
		}
		header, rows, err := parseCSVPage(body)
		if err != nil {
			return nil, errors.Annotate(err, "failed to parse page %d of %s",
				res.Pages+1, q.flow)
		}
		res.Pages++
		logging.Infof(ctx, "%s: fetched page %d with %d rows",
			q.flow, res.Pages, len(rows))
		if res.Header == nil {
			res.Header = header
		}
		res.Rows = append(res.Rows, rows...)
		if len(rows) < pageSize {
			break
		}
	}
	return res, nil
}
