package structure

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meenmo/fxstruct/resolver"
)

type definitionsFile struct {
	Definitions []map[string]any `yaml:"definitions"`
}

// LoadDefinitions registers the definition rows of a YAML file in one call. The file is
// either a list of rows or a mapping with a "definitions" list.
func (r *Registry) LoadDefinitions(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadDefinitions: %w", err)
	}
	rows, err := ParseDefinitions(b)
	if err != nil {
		return nil, fmt.Errorf("LoadDefinitions: %s: %w", path, err)
	}
	versions, err := r.Register(rows...)
	if err != nil {
		return nil, fmt.Errorf("LoadDefinitions: %s: %w", path, err)
	}
	return versions, nil
}

// ParseDefinitions decodes YAML definition rows into one batch per row.
func ParseDefinitions(b []byte) ([]resolver.Batch, error) {
	var list []map[string]any
	if err := yaml.Unmarshal(b, &list); err != nil {
		var f definitionsFile
		if err2 := yaml.Unmarshal(b, &f); err2 != nil {
			return nil, fmt.Errorf("ParseDefinitions: %w", err2)
		}
		list = f.Definitions
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("ParseDefinitions: no definitions")
	}
	out := make([]resolver.Batch, len(list))
	for i, row := range list {
		out[i] = resolver.Batch{resolver.KV(row)}
	}
	return out, nil
}
