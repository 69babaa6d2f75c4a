package playlist

import (
	"regexp"
	"strings"
)

// GeoMarker tags entries that looked region-restricted when probed.
const GeoMarker = "[GEO]"

// groupRE matches group-title in any letter case, like ParseAttrs.
var groupRE = regexp.MustCompile(`(?i)(?:^|[\s:])group-title="([^"]*)"`)

// TagGeo marks a metadata line as geo-blocked.
//
// An existing group-title gets " [GEO]" appended inside its value. Without
// one, group-title="[GEO]" is inserted right after the duration field.
// Lines whose group-title already carries the marker are returned unchanged.
func TagGeo(meta string) string {
	if loc := groupRE.FindStringSubmatchIndex(meta); loc != nil {
		val := meta[loc[2]:loc[3]]
		if strings.Contains(val, GeoMarker) {
			return meta
		}
		tagged := GeoMarker
		if strings.TrimSpace(val) != "" {
			tagged = val + " " + GeoMarker
		}
		return meta[:loc[2]] + tagged + meta[loc[3]:]
	}

	end := durationEnd(meta)
	return meta[:end] + ` ` + AttrGroup + `="` + GeoMarker + `"` + meta[end:]
}

// durationEnd returns the offset just past the "#EXTINF:<duration>" field.
func durationEnd(meta string) int {
	start := 0
	if strings.HasPrefix(meta, InfoPrefix) {
		start = len(InfoPrefix)
		if start < len(meta) && meta[start] == ':' {
			start++
		}
	}
	if i := strings.IndexAny(meta[start:], " ,"); i >= 0 {
		return start + i
	}
	return len(meta)
}
