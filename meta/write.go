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

	"github.com/stockparfait/errors"
	"gopkg.in/yaml.v3"
)

func writeYAMLFile(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Annotate(err, "failed to serialize '%s'", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Annotate(err, "failed to create directory for '%s'", path)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Annotate(err, "failed to write '%s'", path)
	}
	return nil
}

// WriteIndicators writes the indicator catalog into the metadata directory.
func WriteIndicators(dir string, doc *IndicatorsDoc) error {
	return writeYAMLFile(filepath.Join(dir, IndicatorsFile), doc)
}

// WriteFallbacks writes the fallback-sequences table.
func WriteFallbacks(dir string, doc *FallbacksDoc) error {
	return writeYAMLFile(filepath.Join(dir, FallbacksFile), doc)
}

// WriteRegions writes the aggregate code set.
func WriteRegions(dir string, doc *RegionsDoc) error {
	return writeYAMLFile(filepath.Join(dir, RegionsFile), doc)
}

// WriteOverrides writes the special-case tables.
func WriteOverrides(dir string, doc *OverridesDoc) error {
	return writeYAMLFile(filepath.Join(dir, OverridesFile), doc)
}

// WriteSchemaDoc writes one dataflow schema snapshot.
func WriteSchemaDoc(dir string, doc *SchemaDoc) error {
	return writeYAMLFile(filepath.Join(dir, SchemaFilePrefix+doc.ID+".yaml"), doc)
}
