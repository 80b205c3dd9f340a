// Package secretdetect finds credentials in free text so they can be kept
// out of logs.
package secretdetect

import (
	"sort"
)

// Placeholder replaces every detected secret.
const Placeholder = "[REDACTED]"

// Match is one detected secret. Start and End are byte offsets.
type Match struct {
	Pattern string
	Start   int
	End     int
}

// Detector scans text against a fixed set of patterns. It is safe for
// concurrent use once built.
type Detector struct {
	patterns []Pattern
}

// NewDetector creates a detector with DefaultPatterns.
func NewDetector() *Detector {
	return &Detector{patterns: DefaultPatterns()}
}

// NewDetectorWith creates a detector with only the given patterns.
func NewDetectorWith(patterns ...Pattern) *Detector {
	return &Detector{patterns: patterns}
}

// Scan returns the matches in s ordered by position. Overlapping matches
// are merged into the earliest one.
func (d *Detector) Scan(s string) []Match {
	var matches []Match
	for _, p := range d.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(s, -1) {
			matches = append(matches, Match{Pattern: p.Name, Start: loc[0], End: loc[1]})
		}
	}
	if len(matches) < 2 {
		return matches
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start == matches[j].Start {
			return matches[i].End > matches[j].End
		}
		return matches[i].Start < matches[j].Start
	})

	merged := matches[:1]
	for _, m := range matches[1:] {
		last := &merged[len(merged)-1]
		if m.Start < last.End {
			if m.End > last.End {
				last.End = m.End
			}
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// Redact returns s with every match replaced by Placeholder.
func (d *Detector) Redact(s string) string {
	matches := d.Scan(s)
	if len(matches) == 0 {
		return s
	}

	out := make([]byte, 0, len(s))
	prev := 0
	for _, m := range matches {
		out = append(out, s[prev:m.Start]...)
		out = append(out, Placeholder...)
		prev = m.End
	}
	out = append(out, s[prev:]...)
	return string(out)
}
