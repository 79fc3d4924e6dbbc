// Package algo maps algorithm names used in configuration files to index
// constructors.
package algo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/patrikhermansson/dynbench/hnsw"
	"github.com/patrikhermansson/dynbench/linear"
	"github.com/patrikhermansson/dynbench/pqivf"
	"github.com/patrikhermansson/dynbench/rpt"
)

// ErrUnknown is returned for names that are not registered.
var ErrUnknown = errors.New("unknown algorithm")

// Constructor returns a fresh, uninitialized index.
type Constructor func() core.Algorithm

var registry = map[string]Constructor{
	"linear": func() core.Algorithm { return linear.New() },
	"hnsw":   func() core.Algorithm { return hnsw.New() },
	"ivfpq":  func() core.Algorithm { return pqivf.New() },
	"ivfpq4": func() core.Algorithm { return pqivf.New4Bit() },
	"rpt":    func() core.Algorithm { return rpt.NewTree() },
	"annoy":  func() core.Algorithm { return rpt.New() },
}

// New constructs the algorithm registered under name.
func New(name string) (core.Algorithm, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknown, name, Names())
	}
	return ctor(), nil
}

// Names lists the registered algorithms in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
