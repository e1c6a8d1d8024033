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
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/sdgkit/sdgkit/meta"
	"github.com/sdgkit/sdgkit/sdmx"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	. "github.com/smartystreets/goconvey/convey"
)

func testSchema(flow string, indicators ...string) *sdmx.DataflowSchema {
	codes := make([]sdmx.Code, len(indicators))
	for i, code := range indicators {
		codes[i] = sdmx.Code{ID: code, Name: "Name of " + code}
	}
	return &sdmx.DataflowSchema{
		ID:      flow,
		Name:    "Flow " + flow,
		Version: "1.0",
		Dimensions: []sdmx.Dimension{
			{ID: "REF_AREA", Position: 0, Codelist: "CL_REF_AREA"},
			{ID: "INDICATOR", Position: 1, Codelist: "CL_INDICATOR", Codes: codes},
			{ID: "SEX", Position: 2, Codelist: "CL_SEX", Codes: []sdmx.Code{
				{ID: "_T"}, {ID: "F"}, {ID: "M"},
			}, HasTotal: true},
		},
		TimeDimension:  "TIME_PERIOD",
		PrimaryMeasure: "OBS_VALUE",
	}
}

func TestSync(t *testing.T) {
	t.Parallel()
	ctx := logging.Use(context.Background(), logging.DefaultGoLogger(logging.Info))

	tmpdir, tmpdirErr := ioutil.TempDir("", "testsync")
	defer os.RemoveAll(tmpdir)

	Convey("Test setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("Sync rebuilds the metadata set", t, func() {
		schemas := map[string]*sdmx.DataflowSchema{
			"CME":             testSchema("CME", "CME_MRY0T4", "CME_MRM0"),
			"NUTRITION":       testSchema("NUTRITION", "NT_ANT_HAZ_NE2", "HT_SH_XYZ"),
			"GLOBAL_DATAFLOW": testSchema("GLOBAL_DATAFLOW", "CME_MRY0T4", "CME_MRM0", "NT_ANT_HAZ_NE2", "HT_SH_XYZ"),
		}
		// Each Convey leaf re-runs this block; a fresh directory per run
		// keeps the vintage and history assertions exact.
		dir, err := ioutil.TempDir(tmpdir, "sync")
		So(err, ShouldBeNil)
		store := meta.NewStore(dir)
		syncer := NewSyncer(store)
		syncer.Agency = "UNICEF"
		syncer.Source = "https://example.org/rest"
		syncer.now = func() time.Time {
			return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		}
		syncer.fetchFlows = func(ctx context.Context) ([]sdmx.DataflowRef, error) {
			return []sdmx.DataflowRef{
				{ID: "BROKEN"}, {ID: "CME"}, {ID: "GLOBAL_DATAFLOW"}, {ID: "NUTRITION"},
			}, nil
		}
		syncer.fetchSchema = func(ctx context.Context, flow string) (*sdmx.DataflowSchema, error) {
			sc, ok := schemas[flow]
			if !ok {
				return nil, errors.Reason("no structure for '%s'", flow)
			}
			return sc, nil
		}

		sum, err := syncer.Sync(ctx, nil)
		So(err, ShouldBeNil)
		So(sum.VintageDate, ShouldEqual, "2024-06-01")
		So(sum.Dataflows, ShouldEqual, 3)
		So(sum.Indicators, ShouldEqual, 4)
		So(len(sum.Errors), ShouldEqual, 1)

		Convey("the catalog orders dataflows most specific first", func() {
			ind := store.Indicator(ctx, "CME_MRY0T4")
			So(ind, ShouldNotBeNil)
			So(ind.Name, ShouldEqual, "Name of CME_MRY0T4")
			So(ind.Dataflows, ShouldResemble, []string{"CME", "GLOBAL_DATAFLOW"})
			So(ind.Disaggregations, ShouldResemble, []string{"SEX"})
			So(ind.DisaggregationsWithTotals, ShouldResemble, []string{"SEX"})

			nt := store.Indicator(ctx, "NT_ANT_HAZ_NE2")
			So(nt.Dataflows, ShouldResemble, []string{"NUTRITION", "GLOBAL_DATAFLOW"})
		})

		Convey("the watermark is stamped", func() {
			w := store.Watermark(ctx)
			So(w, ShouldNotBeNil)
			So(w.Platform, ShouldEqual, "go")
			So(w.Version, ShouldEqual, Version)
			So(w.Agency, ShouldEqual, "UNICEF")
			So(w.SyncedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
				ShouldBeTrue)
		})

		Convey("curated fallback sequences win, new prefixes are derived", func() {
			// CME is in the curated (bundled) table.
			So(store.FallbackSequence(ctx, "CME"), ShouldResemble,
				[]string{"CME", "GLOBAL_DATAFLOW"})
			// HT is new; derived from the catalog, catch-all last.
			So(store.FallbackSequence(ctx, "HT"), ShouldResemble,
				[]string{"NUTRITION", "GLOBAL_DATAFLOW"})
			So(store.DefaultSequence(ctx), ShouldResemble, []string{"GLOBAL_DATAFLOW"})
		})

		Convey("schema snapshots serve later sessions from disk", func() {
			doc := store.SchemaDoc(ctx, "CME")
			So(doc, ShouldNotBeNil)
			So(doc.TimeDimension, ShouldEqual, "TIME_PERIOD")
			So(len(doc.Dimensions), ShouldEqual, 3)
			So(doc.Dimensions[2].Values, ShouldResemble, []string{"_T", "F", "M"})
		})

		Convey("a vintage snapshot and sync history are written", func() {
			dates, err := meta.Vintages(dir)
			So(err, ShouldBeNil)
			So(dates, ShouldResemble, []string{"2024-06-01"})

			history, err := meta.ReadSyncHistory(dir)
			So(err, ShouldBeNil)
			So(len(history), ShouldEqual, 1)
			So(history[0].VintageDate, ShouldEqual, "2024-06-01")

			vstore := meta.NewStore(meta.VintageDir(dir, "2024-06-01"))
			So(vstore.Indicator(ctx, "CME_MRY0T4"), ShouldNotBeNil)
		})
	})
}
