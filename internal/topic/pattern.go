package topic

import (
	"fmt"
	"strings"
)

// Separator splits topic levels.
const Separator = "/"

// Wildcard tokens.
const (
	SingleLevel = "+"
	MultiLevel  = "#"
)

// SegmentKind classifies one level of a filter.
type SegmentKind int

// Segment kinds, ordered from most to least specific.
const (
	Literal SegmentKind = iota
	SingleWildcard
	MultiWildcard
)

// segment is one parsed level of a filter.
type segment struct {
	kind  SegmentKind
	value string
}

// Pattern is a parsed topic filter.
//
// Patterns are immutable once parsed and safe for concurrent use.
type Pattern struct {
	raw       string
	segments  []segment
	wildcards int
}

// ParsePattern parses a topic filter such as "electricity/building/+/+".
//
// Returns:
//   - Pattern: The parsed filter
//   - error: ErrEmptyFilter, ErrMultiLevelNotLast or ErrInvalidWildcard
func ParsePattern(filter string) (Pattern, error) {
	if filter == "" {
		return Pattern{}, ErrEmptyFilter
	}

	parts := Split(filter)
	p := Pattern{
		raw:      filter,
		segments: make([]segment, len(parts)),
	}

	for i, part := range parts {
		switch {
		case part == MultiLevel:
			if i != len(parts)-1 {
				return Pattern{}, fmt.Errorf("%w: %q", ErrMultiLevelNotLast, filter)
			}
			p.segments[i] = segment{kind: MultiWildcard}
			p.wildcards++
		case part == SingleLevel:
			p.segments[i] = segment{kind: SingleWildcard}
			p.wildcards++
		case strings.ContainsAny(part, SingleLevel+MultiLevel):
			return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidWildcard, filter)
		default:
			p.segments[i] = segment{kind: Literal, value: part}
		}
	}

	return p, nil
}

// Split breaks a topic into its levels.
func Split(topic string) []string {
	return strings.Split(topic, Separator)
}

// String returns the original filter text.
func (p Pattern) String() string {
	return p.raw
}

// Len returns the number of segments in the filter.
func (p Pattern) Len() int {
	return len(p.segments)
}

// Wildcards returns how many wildcard segments the filter contains.
func (p Pattern) Wildcards() int {
	return p.wildcards
}

// Matches reports whether the concrete topic matches the filter.
func (p Pattern) Matches(topic string) bool {
	return p.match(Split(topic))
}

// match compares already-split topic levels against the filter.
func (p Pattern) match(levels []string) bool {
	if len(p.segments) == 0 {
		return false
	}

	// Wildcards at the first level never match $-prefixed system topics.
	if len(levels) > 0 && strings.HasPrefix(levels[0], "$") && p.segments[0].kind != Literal {
		return false
	}

	for i, seg := range p.segments {
		if seg.kind == MultiWildcard {
			// "#" needs at least one remaining level.
			return len(levels) > i
		}
		if i >= len(levels) {
			return false
		}
		if seg.kind == Literal && seg.value != levels[i] {
			return false
		}
	}

	return len(levels) == len(p.segments)
}

// moreSpecificThan reports whether p should win over other when both match.
//
// Fewer wildcards wins. On a tie the first differing segment decides,
// scanning left to right: literal beats "+", which beats "#". Equal
// patterns are not more specific than each other.
func (p Pattern) moreSpecificThan(other Pattern) bool {
	if p.wildcards != other.wildcards {
		return p.wildcards < other.wildcards
	}

	n := min(len(p.segments), len(other.segments))
	for i := range n {
		a, b := p.segments[i].kind, other.segments[i].kind
		if a != b {
			return a < b
		}
	}

	return false
}
