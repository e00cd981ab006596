package measure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog is the measure-definition set loaded from a directory of JSON
// files, one measure per file, measure id taken from the file basename.
// Malformed definitions are kept aside rather than failing the load: a bad
// measure aborts only itself.
type Catalog struct {
	defs    []*Definition
	byID    map[string]*Definition
	skipped []string
	invalid []*ConfigurationError
}

// LoadCatalog reads every .json file under dir. It returns an error only
// when the directory itself cannot be read; per-measure problems are
// recorded on the catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read measures directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	c := &Catalog{byID: make(map[string]*Definition, len(names))}
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			c.invalid = append(c.invalid, &ConfigurationError{MeasureID: id, Reason: err.Error()})
			continue
		}

		var def Definition
		if err := json.Unmarshal(content, &def); err != nil {
			c.invalid = append(c.invalid, &ConfigurationError{MeasureID: id, Reason: "malformed JSON: " + err.Error()})
			continue
		}
		def.ID = id

		if err := def.Validate(); err != nil {
			cfgErr, ok := err.(*ConfigurationError)
			if !ok {
				cfgErr = &ConfigurationError{MeasureID: id, Reason: err.Error()}
			}
			c.invalid = append(c.invalid, cfgErr)
			continue
		}

		if def.Skip {
			c.skipped = append(c.skipped, id)
			continue
		}

		c.defs = append(c.defs, &def)
		c.byID[id] = &def
	}

	return c, nil
}

// Definitions returns every valid, non-skipped definition in catalog order.
func (c *Catalog) Definitions() []*Definition { return c.defs }

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*Definition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// Skipped lists ids of definitions marked skip.
func (c *Catalog) Skipped() []string { return c.skipped }

// Invalid lists the configuration errors found during loading.
func (c *Catalog) Invalid() []*ConfigurationError { return c.invalid }

// Select resolves a comma-separated id list against the catalog, or the full
// catalog when the list is empty. Asking for an unknown or invalid id is an
// error so a typo does not silently compute nothing.
func (c *Catalog) Select(ids []string) ([]*Definition, error) {
	if len(ids) == 0 {
		return c.defs, nil
	}
	var out []*Definition
	for _, id := range ids {
		def, ok := c.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown measure %q", id)
		}
		out = append(out, def)
	}
	return out, nil
}
