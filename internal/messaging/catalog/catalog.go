// Package catalog looks up reply templates by dotted key and fills their
// {placeholder} variables.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Fallback is returned for keys that are missing from the catalog.
const Fallback = "Sorry, something went wrong. Please try again."

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Catalog is an immutable set of templates.
type Catalog struct {
	templates map[string]string
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default is invalid: %v", err))
	}
	return c
}

// Load reads a YAML catalog from path and layers it over the default, so an
// override file only needs the keys it changes.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	base := Default()
	for k, v := range override.templates {
		base.templates[k] = v
	}
	return base, nil
}

// Parse builds a catalog from nested YAML maps of strings.
func Parse(data []byte) (*Catalog, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c := &Catalog{templates: map[string]string{}}
	if err := flatten("", root, c.templates); err != nil {
		return nil, err
	}
	return c, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("catalog: key %s: unsupported value %T", key, v)
		}
	}
	return nil
}

// Get returns the template at key with vars substituted. Unknown keys yield
// Fallback; unknown placeholders are left as written.
func (c *Catalog) Get(key string, vars map[string]string) string {
	tmpl, ok := c.templates[key]
	if !ok {
		return Fallback
	}
	if len(vars) == 0 {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := strings.Trim(m, "{}")
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Has reports whether key exists.
func (c *Catalog) Has(key string) bool {
	_, ok := c.templates[key]
	return ok
}

// Keys lists every template key in order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.templates))
	for k := range c.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
