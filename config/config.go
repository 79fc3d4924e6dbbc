// Package config loads the YAML files describing a benchmark sweep.
//
// A configuration directory holds:
//
//	run.yaml                 algorithms, datasets, topk, memory metric, output
//	algo/<name>_build.yaml   algo.build: list of build parameter sets
//	algo/<name>_search.yaml  algo.query: list of query parameter sets
//	data/<name>.yaml         data: dataset settings with a list of scales
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/patrikhermansson/dynbench/dataset"
	"gopkg.in/yaml.v3"
)

// Run is the top level of a sweep.
type Run struct {
	Algo    []string          `yaml:"algo"`
	Data    []string          `yaml:"data"`
	TopK    int               `yaml:"topk"`
	MemType core.MemoryMetric `yaml:"mem_type"`
	Output  string            `yaml:"output"`
}

// Algo is the merged build and search configuration of one algorithm.
type Algo struct {
	Name  string        `yaml:"name"`
	Build []core.Params `yaml:"build"`
	Query []core.Params `yaml:"query"`
}

// Data is a dataset configuration swept over Scales.
type Data struct {
	dataset.Settings `yaml:",inline"`
	Scales           []int `yaml:"scale"`
}

// At returns the settings for one scale of the sweep.
func (d *Data) At(scale int) dataset.Settings {
	s := d.Settings
	s.Scale = scale
	return s
}

// Defaults returns the run settings used for keys run.yaml leaves out.
func Defaults() *Run {
	return &Run{
		TopK:    100,
		MemType: core.MemPsuRSS,
		Output:  "output",
	}
}

// Dir is a configuration directory.
type Dir string

// Run loads run.yaml over the defaults.
func (d Dir) Run() (*Run, error) {
	cfg := Defaults()
	if err := load(filepath.Join(string(d), "run.yaml"), cfg); err != nil {
		return nil, err
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("run.yaml: topk must be positive, got %d", cfg.TopK)
	}
	if !cfg.MemType.Known() {
		return nil, fmt.Errorf("run.yaml: unknown mem_type %q", cfg.MemType)
	}
	return cfg, nil
}

// Algo loads algo/<name>_build.yaml and algo/<name>_search.yaml. A missing
// file is reported with an error wrapping os.ErrNotExist.
func (d Dir) Algo(name string) (*Algo, error) {
	var build, search struct {
		Algo Algo `yaml:"algo"`
	}
	if err := load(filepath.Join(string(d), "algo", name+"_build.yaml"), &build); err != nil {
		return nil, err
	}
	if err := load(filepath.Join(string(d), "algo", name+"_search.yaml"), &search); err != nil {
		return nil, err
	}
	a := build.Algo
	if a.Name == "" {
		a.Name = name
	}
	a.Query = search.Algo.Query
	if len(a.Build) == 0 {
		a.Build = []core.Params{{}}
	}
	if len(a.Query) == 0 {
		a.Query = []core.Params{{}}
	}
	return &a, nil
}

// Data loads data/<name>.yaml. A missing file is reported with an error
// wrapping os.ErrNotExist.
func (d Dir) Data(name string) (*Data, error) {
	var file struct {
		Data Data `yaml:"data"`
	}
	path := filepath.Join(string(d), "data", name+".yaml")
	if err := load(path, &file); err != nil {
		return nil, err
	}
	if file.Data.Name == "" {
		return nil, fmt.Errorf("%s: data.name is required", path)
	}
	if len(file.Data.Scales) == 0 {
		return nil, fmt.Errorf("%s: data.scale lists no scales", path)
	}
	return &file.Data, nil
}

func load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
