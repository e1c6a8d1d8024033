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
	"testing"

	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSummary(t *testing.T) {
	t.Parallel()

	Convey("Summarize", t, func() {
		world := obsRow("CME_MRY0T4", "WORLD", 2020, 500.0)
		world.GeoType = GeoAggregate
		noValue := obsRow("CME_MRY0T4", "MLI", 2020, 0)
		noValue.HasValue = false
		rows := []Row{
			obsRow("CME_MRY0T4", "KEN", 2020, 10.0),
			obsRow("CME_MRY0T4", "BRA", 2020, 30.0),
			obsRow("CME_MRY0T4", "IND", 2020, 20.0),
			obsRow("CME_MRY0T4", "KEN", 2019, 12.0),
			obsRow("NT_ANT_HAZ_NE2", "KEN", 2020, 26.2),
			world,   // aggregates are excluded
			noValue, // rows without values are excluded
		}

		sums := Summarize(rows)
		So(len(sums), ShouldEqual, 3)

		// Sorted by indicator, then year.
		So(sums[0].Indicator, ShouldEqual, "CME_MRY0T4")
		So(sums[0].Year, ShouldEqual, 2019)
		So(sums[0].N, ShouldEqual, 1)

		So(sums[1].Year, ShouldEqual, 2020)
		So(sums[1].N, ShouldEqual, 3)
		So(testutil.Round(sums[1].Mean, 4), ShouldEqual, 20.0)
		So(sums[1].Median, ShouldEqual, 20.0)
		So(sums[1].Min, ShouldEqual, 10.0)
		So(sums[1].Max, ShouldEqual, 30.0)

		So(sums[2].Indicator, ShouldEqual, "NT_ANT_HAZ_NE2")

		Convey("SummaryTable renders one row per summary", func() {
			tbl := SummaryTable(sums)
			So(tbl.Header, ShouldResemble, SummaryHeader())
			So(len(tbl.Rows), ShouldEqual, 3)
			So(tbl.Rows[1].CSV(), ShouldResemble, []string{
				"CME_MRY0T4", "2020", "3", "20.000", "20.000", "10.000", "30.000",
			})
		})
	})

	Convey("Summarize of no valued country rows is empty", t, func() {
		world := obsRow("CME_MRY0T4", "WORLD", 2020, 500.0)
		world.GeoType = GeoAggregate
		So(len(Summarize([]Row{world})), ShouldEqual, 0)
	})
}
