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

package meta

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stockparfait/errors"
)

const vintagesDir = "vintages"

// VintageDir returns the snapshot directory for a vintage date (YYYY-MM-DD)
// under the metadata directory. A Store created over it reads the snapshot's
// metadata instead of the live set.
func VintageDir(dir, date string) string {
	return filepath.Join(dir, vintagesDir, date)
}

// Vintages lists the snapshot dates available under the metadata directory,
// newest first.
func Vintages(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, vintagesDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Annotate(err, "failed to list vintages in '%s'", dir)
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			dates = append(dates, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// vintageFiles are the metadata files copied into each snapshot.
func vintageFiles(dir string) ([]string, error) {
	names := []string{IndicatorsFile, FallbacksFile, RegionsFile, OverridesFile}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotate(err, "failed to list metadata dir '%s'", dir)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), SchemaFilePrefix) &&
			strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// WriteVintage copies the current metadata files into a dated immutable
// snapshot directory and writes the summary record next to them. Missing
// optional files are skipped.
func WriteVintage(dir string, sum VintageSummary) error {
	vdir := VintageDir(dir, sum.VintageDate)
	if err := os.MkdirAll(vdir, 0755); err != nil {
		return errors.Annotate(err, "failed to create vintage dir '%s'", vdir)
	}
	names, err := vintageFiles(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return errors.Annotate(err, "failed to read '%s' for vintage", name)
		}
		if err := os.WriteFile(filepath.Join(vdir, name), data, 0644); err != nil {
			return errors.Annotate(err, "failed to copy '%s' into vintage", name)
		}
	}
	return writeYAMLFile(filepath.Join(vdir, "summary.yaml"), &sum)
}

// ReadSyncHistory returns the rolling sync log, newest first. A missing file
// is an empty history.
func ReadSyncHistory(dir string) ([]VintageSummary, error) {
	path := filepath.Join(dir, SyncHistoryFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Annotate(err, "cannot check sync history '%s'", path)
	}
	var doc SyncHistoryDoc
	if err := readYAMLFile(path, &doc); err != nil {
		return nil, err
	}
	return doc.Vintages, nil
}

// AppendSyncHistory prepends the summary to the sync log, capping the log at
// MaxSyncHistory entries.
func AppendSyncHistory(dir string, sum VintageSummary) error {
	history, err := ReadSyncHistory(dir)
	if err != nil {
		return errors.Annotate(err, "failed to read sync history")
	}
	history = append([]VintageSummary{sum}, history...)
	if len(history) > MaxSyncHistory {
		history = history[:MaxSyncHistory]
	}
	return writeYAMLFile(filepath.Join(dir, SyncHistoryFile),
		&SyncHistoryDoc{Vintages: history})
}
