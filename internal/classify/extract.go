package classify

import (
	"regexp"
	"strings"
)

// firstGroup returns the trimmed first capture group of re in s.
func firstGroup(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Power supervisor bodies are "Label : value" lines.
var (
	powerMessagePattern   = regexp.MustCompile(`(?im)^[ \t]*message[ \t]*:[ \t]*(.+)$`)
	powerEventPattern     = regexp.MustCompile(`(?im)^[ \t]*[eé]v[eé]nement[ \t]*:[ \t]*(.+)$`)
	powerTimestampPattern = regexp.MustCompile(`(?im)^[ \t]*(?:date|horodatage|heure)[ \t]*:[ \t]*(.+)$`)
)

// PowerFields are the values read from a power supervisor body.
// A field that is not present is the empty string.
type PowerFields struct {
	Message   string
	Event     string
	Timestamp string
}

// ExtractPowerFields reads the message, event and timestamp lines.
func ExtractPowerFields(body string) PowerFields {
	var f PowerFields
	f.Message, _ = firstGroup(powerMessagePattern, body)
	f.Event, _ = firstGroup(powerEventPattern, body)
	f.Timestamp, _ = firstGroup(powerTimestampPattern, body)
	return f
}

// IsAdministrative reports whether the body carries the administrative
// notice marker.
func IsAdministrative(body, marker string) bool {
	return marker != "" && strings.Contains(body, marker)
}
