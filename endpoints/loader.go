package endpoints

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

/* Loader reads the endpoints registered at boot from endpoints.yaml
 * Entries are keyed by id, a duplicate id is a load error
 */

// Config represents the structure of endpoints.yaml
type Config struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

type Loader struct {
	endpoints map[string]*Endpoint
}

// NewLoader creates an empty endpoint loader
func NewLoader() *Loader {
	return &Loader{
		endpoints: make(map[string]*Endpoint),
	}
}

// Load reads and validates the endpoints file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading endpoints file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing endpoints YAML: %w", err)
	}

	loaded := make(map[string]*Endpoint, len(config.Endpoints))
	for i := range config.Endpoints {
		ep := config.Endpoints[i]
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("validating endpoint: %w", err)
		}
		if _, dup := loaded[ep.ID]; dup {
			return fmt.Errorf("validating endpoint: duplicate id %s", ep.ID)
		}
		loaded[ep.ID] = &ep
	}

	for id, ep := range loaded {
		l.endpoints[id] = ep
	}
	return nil
}

// Get retrieves an endpoint by its id
func (l *Loader) Get(id string) (*Endpoint, error) {
	ep, exists := l.endpoints[id]
	if !exists {
		return nil, fmt.Errorf("endpoint not found: %s", id)
	}
	return ep, nil
}

// List returns all loaded endpoints ordered by id
func (l *Loader) List() []*Endpoint {
	out := make([]*Endpoint, 0, len(l.endpoints))
	for _, ep := range l.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Loader) Exists(id string) bool {
	_, exists := l.endpoints[id]
	return exists
}
