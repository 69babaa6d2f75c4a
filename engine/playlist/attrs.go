package playlist

import (
	"regexp"
	"strings"
)

// Attribute keys read from metadata lines.
const (
	AttrCountry = "tvg-country"
	AttrGroup   = "group-title"
)

// attrRE matches quoted key="value" pairs on a metadata line.
var attrRE = regexp.MustCompile(`(?:^|[\s:])([\w-]+)="([^"]*)"`)

// Attrs holds the quoted attributes of one metadata line.
type Attrs map[string]string

// ParseAttrs extracts every key="value" pair from meta. When a key repeats,
// the first occurrence wins.
func ParseAttrs(meta string) Attrs {
	a := make(Attrs)
	for _, m := range attrRE.FindAllStringSubmatch(meta, -1) {
		key := strings.ToLower(m[1])
		if _, ok := a[key]; !ok {
			a[key] = m[2]
		}
	}
	return a
}

// Get returns the value for key and whether it was present.
func (a Attrs) Get(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}

// Country returns the tvg-country value.
func (a Attrs) Country() (string, bool) { return a.Get(AttrCountry) }

// Group returns the group-title (category) value.
func (a Attrs) Group() (string, bool) { return a.Get(AttrGroup) }
