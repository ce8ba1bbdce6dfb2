package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/raterudder/hanbridge/pkg/types"
)

// Endpoint names used in snapshots.
const (
	EndpointRealtime = "realtime"
	EndpointConfig   = "config"
)

// Endpoint describes one polled device endpoint.
type Endpoint struct {
	// Name is the snapshot key the payload is stored under.
	Name string
	// Path is the device-relative HTTP path.
	Path string
	// Mandatory endpoints fail the whole cycle when they fail.
	Mandatory bool
	// Root, when set, is unwrapped from the payload before it is stored. If
	// the root does not resolve to an object the payload is stored as is, so
	// the same layout works for firmware that serves the object flat.
	Root []Step
}

// Unwrap applies the endpoint's Root to p.
func (e Endpoint) Unwrap(p types.Payload) types.Payload {
	if len(e.Root) == 0 {
		return p
	}
	v, ok := Walk(p, e.Root)
	if !ok {
		return p
	}
	if obj, ok := asObject(v); ok {
		return types.Payload(obj)
	}
	return p
}

// Layout is the set of endpoints a firmware variant exposes.
type Layout struct {
	Name      string
	Endpoints []Endpoint
	// InfoPath is the device info endpoint fetched once at startup. Empty
	// means the firmware has none.
	InfoPath string
}

// Validate ensures the layout has unique endpoint names, paths for every
// endpoint and exactly one mandatory endpoint.
func (l Layout) Validate() error {
	if len(l.Endpoints) == 0 {
		return errors.New("layout has no endpoints")
	}
	seen := make(map[string]bool, len(l.Endpoints))
	var mandatory int
	for _, e := range l.Endpoints {
		if e.Name == "" {
			return errors.New("endpoint name is required")
		}
		if !strings.HasPrefix(e.Path, "/") {
			return fmt.Errorf("endpoint %s: path must start with /: %q", e.Name, e.Path)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate endpoint: %s", e.Name)
		}
		seen[e.Name] = true
		if e.Mandatory {
			mandatory++
		}
	}
	if mandatory != 1 {
		return fmt.Errorf("layout %s must have exactly one mandatory endpoint, has %d", l.Name, mandatory)
	}
	return nil
}

// Mandatory returns the layout's mandatory endpoint.
func (l Layout) Mandatory() (Endpoint, bool) {
	for _, e := range l.Endpoints {
		if e.Mandatory {
			return e, true
		}
	}
	return Endpoint{}, false
}

var layouts = map[string]Layout{
	// separate meter, configuration and device info endpoints
	"meter": {
		Name: "meter",
		Endpoints: []Endpoint{
			{Name: EndpointRealtime, Path: "/meter", Mandatory: true},
			{Name: EndpointConfig, Path: "/configuration"},
		},
		InfoPath: "/han",
	},
	// single /han endpoint, readings optionally nested under "realtime"
	"han": {
		Name: "han",
		Endpoints: []Endpoint{
			{Name: EndpointRealtime, Path: "/han", Mandatory: true, Root: []Step{Key("realtime")}},
		},
	},
}

// DefaultLayout is used when no layout is configured.
const DefaultLayout = "meter"

// LookupLayout returns the named built-in layout.
func LookupLayout(name string) (Layout, error) {
	l, ok := layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout: %s (available: %s)", name, strings.Join(LayoutNames(), ", "))
	}
	l.Endpoints = slices.Clone(l.Endpoints)
	return l, nil
}

// LayoutNames returns the built-in layout names sorted.
func LayoutNames() []string {
	names := make([]string, 0, len(layouts))
	for n := range layouts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
