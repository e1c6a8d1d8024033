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
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/sdgkit/sdgkit/meta"
	"github.com/sdgkit/sdgkit/sdg"
	"github.com/sdgkit/sdgkit/sdmx"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	toml "github.com/pelletier/go-toml/v2"
)

type Flags struct {
	CacheDir string // default: ~/.sdgkit
	LogLevel logging.Level
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("sdg-sync", flag.ExitOnError)
	fs.StringVar(&flags.CacheDir, "cache",
		filepath.Join(os.Getenv("HOME"), ".sdgkit"),
		"path to the metadata cache")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")

	err := fs.Parse(args)
	return &flags, err
}

// Config is the optional config.toml in the cache dir. All fields default to
// the public UNICEF warehouse.
type Config struct {
	BaseURL string   `toml:"base_url"`
	Agency  string   `toml:"agency"`
	Flows   []string `toml:"flows"` // specific dataflows; empty = all
}

func parseConfig(dir string) (*Config, error) {
	filePath := filepath.Join(dir, "config.toml")
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	var c Config
	if err := d.Decode(&c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	return &c, nil
}

func sync(ctx context.Context, flags *Flags) error {
	config, err := parseConfig(flags.CacheDir)
	if err != nil {
		return errors.Annotate(err, "failed to parse config")
	}

	sdmxConfig := sdmx.Config{BaseURL: config.BaseURL, Agency: config.Agency}
	ctx = sdmx.UseClient(ctx, sdmxConfig)
	client := sdmx.GetClient(ctx)

	syncer := sdg.NewSyncer(meta.NewStore(flags.CacheDir))
	syncer.Agency = client.Agency()
	syncer.Source = client.BaseURL()
	sum, err := syncer.Sync(ctx, config.Flows)
	if err != nil {
		return errors.Annotate(err, "failed to sync metadata")
	}
	logging.Infof(ctx, "wrote vintage %s: %d indicators, %d dataflows, %d errors",
		sum.VintageDate, sum.Indicators, sum.Dataflows, len(sum.Errors))
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := sync(ctx, flags); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
