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

	"github.com/sdgkit/sdgkit/meta"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	ctx := logging.Use(context.Background(), logging.DefaultGoLogger(logging.Info))

	tmpdir, tmpdirErr := ioutil.TempDir("", "testnormalize")
	defer os.RemoveAll(tmpdir)

	Convey("Test setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	s := NewSession(meta.NewStore(tmpdir))

	Convey("DecimalYear", t, func() {
		year := func(s string) float64 {
			v, ok := DecimalYear(s)
			So(ok, ShouldBeTrue)
			return testutil.Round(v, 8)
		}
		So(year("2020"), ShouldEqual, 2020.0)
		So(year("2020-01"), ShouldEqual, testutil.Round(2020.0+1.0/12.0, 8))
		So(year("2020-06"), ShouldEqual, 2020.5)
		So(year("2020-11"), ShouldEqual, testutil.Round(2020.0+11.0/12.0, 8))
		So(year("2020.5"), ShouldEqual, 2020.5)

		_, ok := DecimalYear("")
		So(ok, ShouldBeFalse)
		_, ok = DecimalYear("not-a-year")
		So(ok, ShouldBeFalse)
		_, ok = DecimalYear("2020-13")
		So(ok, ShouldBeFalse)
	})

	Convey("Normalize", t, func() {
		header := []string{
			"REF_AREA", "Geographic area", "INDICATOR", "SEX",
			"TIME_PERIOD", "OBS_VALUE", "UNIT_MEASURE",
		}

		Convey("renames, parses and classifies", func() {
			recs := [][]string{
				{"KEN", "Kenya", "CME_MRY0T4", "_T", "2020-06", "41.2", "D_PER_1000"},
				{"WORLD", "World", "CME_MRY0T4", "_T", "2020", "", "D_PER_1000"},
				{"WB_LI", "Low income", "CME_MRY0T4", "_T", "2020", "65.3", "D_PER_1000"},
			}
			rows := s.Normalize(ctx, header, recs, NormalizeOptions{})
			So(len(rows), ShouldEqual, 3)

			So(rows[0].ISO3, ShouldEqual, "KEN")
			So(rows[0].CountryName, ShouldEqual, "Kenya")
			So(rows[0].GeoType, ShouldEqual, GeoCountry)
			So(rows[0].HasPeriod, ShouldBeTrue)
			So(testutil.RoundFixed(rows[0].Period, 4), ShouldEqual, 2020.5)
			So(rows[0].Value, ShouldEqual, 41.2)
			So(rows[0].Dim("sex"), ShouldEqual, "_T")
			So(rows[0].Attrs["unit"], ShouldEqual, "D_PER_1000")

			So(rows[1].GeoType, ShouldEqual, GeoAggregate)
			So(rows[1].HasValue, ShouldBeFalse)
			So(rows[2].GeoType, ShouldEqual, GeoAggregate)
		})

		Convey("country names are filled in when the data has none", func() {
			rows := s.Normalize(ctx,
				[]string{"REF_AREA", "INDICATOR", "TIME_PERIOD", "OBS_VALUE"},
				[][]string{{"BRA", "CME_MRY0T4", "2019", "14.1"}},
				NormalizeOptions{})
			So(rows[0].CountryName, ShouldEqual, "Brazil")
		})

		ind := &meta.Indicator{
			Code:                      "NT_ANT_HAZ_NE2",
			Dataflows:                 []string{"NUTRITION"},
			Disaggregations:           []string{"SEX", "WEALTH_QUINTILE"},
			DisaggregationsWithTotals: []string{"SEX"},
		}
		disaggHeader := []string{
			"REF_AREA", "INDICATOR", "SEX", "WEALTH_QUINTILE",
			"TIME_PERIOD", "OBS_VALUE",
		}
		disaggRecs := [][]string{
			{"KEN", "NT_ANT_HAZ_NE2", "_T", "", "2020", "26.2"},
			{"KEN", "NT_ANT_HAZ_NE2", "F", "", "2020", "25.1"},
			{"KEN", "NT_ANT_HAZ_NE2", "M", "", "2020", "27.3"},
			{"KEN", "NT_ANT_HAZ_NE2", "_T", "Q1", "2020", "35.9"},
		}

		Convey("dimensions with totals default to the total rows", func() {
			rows := s.Normalize(ctx, disaggHeader, disaggRecs,
				NormalizeOptions{Indicator: ind, Flow: "NUTRITION"})
			So(len(rows), ShouldEqual, 2)
			So(rows[0].Dim("sex"), ShouldEqual, "_T")
			// WEALTH_QUINTILE has no totals; both its values survive.
			So(rows[1].Dim("wealth_quintile"), ShouldEqual, "Q1")
		})

		Convey("a caller override replaces the default", func() {
			rows := s.Normalize(ctx, disaggHeader, disaggRecs, NormalizeOptions{
				Indicator:  ind,
				Flow:       "NUTRITION",
				DimFilters: map[string]string{"SEX": "F"},
			})
			So(len(rows), ShouldEqual, 1)
			So(rows[0].Dim("sex"), ShouldEqual, "F")
		})

		Convey("ALL removes the default filter", func() {
			rows := s.Normalize(ctx, disaggHeader, disaggRecs, NormalizeOptions{
				Indicator:  ind,
				Flow:       "NUTRITION",
				DimFilters: map[string]string{"SEX": FilterAll},
			})
			So(len(rows), ShouldEqual, 4)
		})

		Convey("a requested value absent from the data drops the filter", func() {
			rows := s.Normalize(ctx, disaggHeader, disaggRecs, NormalizeOptions{
				Indicator:  ind,
				Flow:       "NUTRITION",
				DimFilters: map[string]string{"SEX": "NO_SUCH"},
			})
			// Never an empty result purely because of a missing value.
			So(len(rows), ShouldEqual, 4)
		})

		Convey("effective totals replace the literal total code", func() {
			ptInd := &meta.Indicator{
				Code:                      "PT_CHLD_1-14_PS-PSY-V_CGVR",
				Disaggregations:           []string{"AGE"},
				DisaggregationsWithTotals: []string{"AGE"},
			}
			ptHeader := []string{"REF_AREA", "INDICATOR", "AGE", "TIME_PERIOD", "OBS_VALUE"}
			ptRecs := [][]string{
				{"KEN", "PT_CHLD", "Y0T17", "2020", "81"},
				{"KEN", "PT_CHLD", "Y2T4", "2020", "78"},
			}
			rows := s.Normalize(ctx, ptHeader, ptRecs,
				NormalizeOptions{Indicator: ptInd, Flow: "PT"})
			So(len(rows), ShouldEqual, 1)
			So(rows[0].Dim("age"), ShouldEqual, "Y0T17")
		})

		Convey("metadata-named dimensions outside the well-known set", func() {
			edInd := &meta.Indicator{
				Code:                      "ECD_CHLD_LMPSL",
				Disaggregations:           []string{"MATERNAL_EDU_LVL"},
				DisaggregationsWithTotals: []string{"MATERNAL_EDU_LVL"},
			}
			edHeader := []string{
				"REF_AREA", "INDICATOR", "MATERNAL_EDU_LVL", "TIME_PERIOD", "OBS_VALUE",
			}
			edRecs := [][]string{
				{"KEN", "ECD_CHLD_LMPSL", "_T", "2020", "61"},
				{"KEN", "ECD_CHLD_LMPSL", "ED_LOW", "2020", "48"},
			}

			Convey("the totals default applies", func() {
				rows := s.Normalize(ctx, edHeader, edRecs,
					NormalizeOptions{Indicator: edInd, Flow: "ECD"})
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Dim("maternal_edu_lvl"), ShouldEqual, "_T")
			})

			Convey("caller filters apply too", func() {
				rows := s.Normalize(ctx, edHeader, edRecs, NormalizeOptions{
					Indicator:  edInd,
					Flow:       "ECD",
					DimFilters: map[string]string{"MATERNAL_EDU_LVL": "ED_LOW"},
				})
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Dim("maternal_edu_lvl"), ShouldEqual, "ED_LOW")
			})
		})

		Convey("normalization is idempotent", func() {
			recs := [][]string{
				{"KEN", "Kenya", "CME_MRY0T4", "_T", "2020-06", "41.2", "D_PER_1000"},
				{"WORLD", "World", "CME_MRY0T4", "F", "2019", "43", "D_PER_1000"},
			}
			rows := s.Normalize(ctx, header, recs, NormalizeOptions{})
			header2, recs2 := Records(rows)
			rows2 := s.Normalize(ctx, header2, recs2, NormalizeOptions{})
			So(rows2, ShouldResemble, rows)
		})
	})
}
