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

package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/sdgkit/sdgkit/meta"
	"github.com/sdgkit/sdgkit/table"
	"github.com/stockparfait/logging"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(t *testing.T) {
	t.Parallel()

	tmpdir, tmpdirErr := os.MkdirTemp("", "test_fetch_app")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("parseFlags", t, func() {
		Convey("a full fetch invocation", func() {
			flags, err := parseFlags([]string{
				"-cache", "path/to/cache",
				"-indicator", "CME_MRY0T4,NT_ANT_HAZ_NE2",
				"-countries", "KEN, BRA",
				"-start", "2015", "-end", "2020",
				"-dim", "SEX=F", "-dim", "WEALTH_QUINTILE=ALL",
				"-format", "wide", "-csv", "-latest",
				"-log-level", "warning",
			})
			So(err, ShouldBeNil)
			So(flags.CacheDir, ShouldEqual, "path/to/cache")
			So(splitList(flags.Indicators), ShouldResemble,
				[]string{"CME_MRY0T4", "NT_ANT_HAZ_NE2"})
			So(splitList(flags.Countries), ShouldResemble, []string{"KEN", "BRA"})
			So(flags.StartYear, ShouldEqual, 2015)
			So(flags.EndYear, ShouldEqual, 2020)
			So(flags.Dims, ShouldResemble,
				dimsFlag{"SEX": "F", "WEALTH_QUINTILE": "ALL"})
			So(flags.Format, ShouldEqual, "wide")
			So(flags.CSV, ShouldBeTrue)
			So(flags.Latest, ShouldBeTrue)
			So(flags.LogLevel, ShouldEqual, logging.Warning)
		})

		Convey("search mode", func() {
			flags, err := parseFlags([]string{"-search", "mortality"})
			So(err, ShouldBeNil)
			So(flags.Search, ShouldEqual, "mortality")
		})

		Convey("indicator and search are mutually exclusive", func() {
			_, err := parseFlags([]string{})
			So(err, ShouldNotBeNil)
			_, err = parseFlags([]string{
				"-indicator", "CME_MRY0T4", "-search", "mortality"})
			So(err, ShouldNotBeNil)
		})

		Convey("bad -dim and -format are rejected", func() {
			_, err := parseFlags([]string{
				"-indicator", "CME_MRY0T4", "-format", "sideways"})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("search prints matching catalog entries", t, func() {
		ctx := logging.Use(context.Background(),
			logging.DefaultGoLogger(logging.Info))
		store := meta.NewStore(tmpdir) // bundled metadata

		var buf bytes.Buffer
		tbl := searchTable(ctx, store, "under-five")
		So(tbl.WriteCSV(&buf, table.Params{}), ShouldBeNil)
		So("\n"+buf.String(), ShouldEqual, `
code,name,dataflows
CME_MRY0T4,Under-five mortality rate,CME GLOBAL_DATAFLOW
`)
	})
}
