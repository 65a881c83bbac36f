// Package report renders drained spikes and run summaries on stdout in one
// of four formats. A Reporter is a spike.Sink: the buffer hands it events
// during each drain and calls Flush when the drain is done.
package report

import (
	"fmt"
	"strings"
)

// Format selects the output layout.
type Format int

const (
	Freeform Format = iota
	CSV
	XML
	JSON
)

var formatNames = [...]string{
	Freeform: "freeform",
	CSV:      "csv",
	XML:      "xml",
	JSON:     "json",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// Formats lists the accepted format names.
func Formats() []string {
	return formatNames[:]
}

// ParseFormat accepts any unambiguous, case-insensitive prefix of a format
// name.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return 0, fmt.Errorf("value for format required; use one of %s", strings.Join(Formats(), ", "))
	}
	low := strings.ToLower(s)
	found := -1
	for i, name := range formatNames {
		if strings.HasPrefix(name, low) {
			if found >= 0 {
				return 0, fmt.Errorf("ambiguous value for format: %q", s)
			}
			found = i
		}
	}
	if found < 0 {
		return 0, fmt.Errorf("illegal value for format %q; use one of %s", s, strings.Join(Formats(), ", "))
	}
	return Format(found), nil
}
