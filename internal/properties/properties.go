// Package properties parses and serializes the flat key=value settings
// format a GOL's properties blob carries (spec §4.2 "settings blob";
// SPEC_FULL.md §4.11, supplemented from
// original_source/include/clarisma/util/PropertiesParser.h). Each line is
// "key=value"; blank lines and lines starting with '#' are ignored.
package properties

import (
	"sort"
	"strings"

	"github.com/clarisma/geodesk-go/internal/gderr"
)

// Properties is an ordered, flat string-keyed settings map.
type Properties struct {
	values map[string]string
}

// New creates an empty Properties set.
func New() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Get returns the value for key, or ("", false) if unset.
func (p *Properties) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Set installs key=value, overwriting any prior value.
func (p *Properties) Set(key, value string) {
	p.values[key] = value
}

// Keys returns every key in sorted order.
func (p *Properties) Keys() []string {
	out := make([]string, 0, len(p.values))
	for k := range p.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Serialize encodes p as sorted "key=value\n" lines, for writing to a
// properties blob.
func (p *Properties) Serialize() []byte {
	var b strings.Builder
	for _, k := range p.Keys() {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.values[k])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Parse decodes a properties blob's payload.
func Parse(data []byte) (*Properties, error) {
	p := New()
	lines := strings.Split(string(data), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, gderr.New(gderr.Corrupt, "malformed properties line").
				WithDetail("line", i).WithDetail("text", line)
		}
		p.values[line[:idx]] = line[idx+1:]
	}
	return p, nil
}
