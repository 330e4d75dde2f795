package network

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultStylesRaw []byte

// Rule maps one selector to renderer style properties.
type Rule struct {
	Selector string            `yaml:"selector"`
	Style    map[string]string `yaml:"style"`
}

// StyleTable is an ordered list of rules; later rules win.
type StyleTable []Rule

var errEmptySelector = errors.New("style rule has no selector")

// LoadStyles parses a YAML style table.
func LoadStyles(r io.Reader) (StyleTable, error) {
	var t StyleTable
	if err := yaml.NewDecoder(r).Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return StyleTable{}, nil
		}
		return nil, fmt.Errorf("styles: parse yaml: %w", err)
	}
	for i, rule := range t {
		if rule.Selector == "" {
			return nil, fmt.Errorf("styles: rule %d: %w", i, errEmptySelector)
		}
	}
	return t, nil
}

var (
	defaultOnce   sync.Once
	defaultStyles StyleTable
	defaultErr    error
)

// DefaultStyles returns a copy of the embedded style table.
func DefaultStyles() (StyleTable, error) {
	defaultOnce.Do(func() {
		defaultStyles, defaultErr = parseStyles(defaultStylesRaw)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultStyles.Clone(), nil
}

func parseStyles(raw []byte) (StyleTable, error) {
	var t StyleTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("styles: parse yaml: %w", err)
	}
	return t, nil
}

// Clone returns a deep copy.
func (t StyleTable) Clone() StyleTable {
	out := make(StyleTable, len(t))
	for i, r := range t {
		out[i] = Rule{Selector: r.Selector, Style: maps.Clone(r.Style)}
	}
	return out
}

// Lookup returns the style of the last rule with the given selector.
func (t StyleTable) Lookup(selector string) (map[string]string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Selector == selector {
			return t[i].Style, true
		}
	}
	return nil, false
}
