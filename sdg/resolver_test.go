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

	. "github.com/smartystreets/goconvey/convey"
)

func TestResolver(t *testing.T) {
	t.Parallel()
	ctx := logging.Use(context.Background(), logging.DefaultGoLogger(logging.Info))

	tmpdir, tmpdirErr := ioutil.TempDir("", "testresolver")
	defer os.RemoveAll(tmpdir)

	Convey("Test setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	// An empty metadata directory falls back to the bundled metadata.
	s := NewSession(meta.NewStore(tmpdir))

	Convey("Resolve prioritizes correctly", t, func() {
		Convey("direct catalog hit uses the catalog order as-is", func() {
			res := s.Resolve(ctx, "CME_MRY0T4", "")
			So(res.Candidates, ShouldResemble, []string{"CME", "GLOBAL_DATAFLOW"})
			So(len(res.ForcedDims), ShouldEqual, 0)
		})

		Convey("unknown code with a known prefix uses the fallback sequence", func() {
			res := s.Resolve(ctx, "PT_F_15-49_FGM", "")
			So(res.Candidates, ShouldResemble,
				[]string{"PT", "PT_CM", "PT_FGM", "GLOBAL_DATAFLOW"})
		})

		Convey("explicit dataflow goes first, fallbacks still appended", func() {
			res := s.Resolve(ctx, "CME_MRY0T4", "NUTRITION")
			So(res.Candidates, ShouldResemble,
				[]string{"NUTRITION", "CME", "GLOBAL_DATAFLOW"})
		})

		Convey("explicit dataflow already in the fallbacks is not duplicated", func() {
			res := s.Resolve(ctx, "PT_F_15-49_FGM", "PT_CM")
			So(res.Candidates, ShouldResemble,
				[]string{"PT_CM", "PT", "PT_FGM", "GLOBAL_DATAFLOW"})
		})

		Convey("override wins over everything and forces dimensions", func() {
			res := s.Resolve(ctx, "WS_PPL_W-SM", "NUTRITION")
			So(res.Candidates[0], ShouldEqual, "WASH_HOUSEHOLDS")
			So(res.ForcedDims, ShouldResemble,
				map[string]string{"SERVICE_TYPE": "DRINKINGWATER"})
		})

		Convey("unknown prefix falls through to the catch-all", func() {
			res := s.Resolve(ctx, "XX_NO_SUCH", "")
			So(res.Candidates, ShouldResemble, []string{"GLOBAL_DATAFLOW"})
		})

		Convey("resolution is deterministic", func() {
			first := s.Resolve(ctx, "WS_SCH_W-B", "")
			for i := 0; i < 5; i++ {
				So(s.Resolve(ctx, "WS_SCH_W-B", ""), ShouldResemble, first)
			}
		})
	})
}
