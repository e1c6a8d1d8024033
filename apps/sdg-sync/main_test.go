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
	"os"
	"path/filepath"
	"testing"

	"github.com/stockparfait/logging"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(t *testing.T) {
	t.Parallel()

	tmpdir, tmpdirErr := os.MkdirTemp("", "test_sync_app")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("parseFlags", t, func() {
		flags, err := parseFlags([]string{
			"-cache", "path/to/cache", "-log-level", "debug"})
		So(err, ShouldBeNil)
		So(flags.CacheDir, ShouldEqual, "path/to/cache")
		So(flags.LogLevel, ShouldEqual, logging.Debug)
	})

	Convey("parseConfig", t, func() {
		Convey("a missing config file means defaults", func() {
			c, err := parseConfig(filepath.Join(tmpdir, "none"))
			So(err, ShouldBeNil)
			So(c, ShouldResemble, &Config{})
		})

		Convey("a config file is decoded", func() {
			dir := filepath.Join(tmpdir, "cfg")
			So(os.MkdirAll(dir, 0755), ShouldBeNil)
			config := `base_url = "https://example.org/rest"
agency = "UNICEF"
flows = ["CME", "NUTRITION"]
`
			So(os.WriteFile(filepath.Join(dir, "config.toml"),
				[]byte(config), 0644), ShouldBeNil)

			c, err := parseConfig(dir)
			So(err, ShouldBeNil)
			So(c, ShouldResemble, &Config{
				BaseURL: "https://example.org/rest",
				Agency:  "UNICEF",
				Flows:   []string{"CME", "NUTRITION"},
			})
		})

		Convey("a malformed config file is an error", func() {
			dir := filepath.Join(tmpdir, "bad")
			So(os.MkdirAll(dir, 0755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "config.toml"),
				[]byte("not toml ["), 0644), ShouldBeNil)
			_, err := parseConfig(dir)
			So(err, ShouldNotBeNil)
		})
	})
}
