package utils

import "strings"

// Path is a sequence of identifier segments, used for dotted-path access
// into node outputs (e.g. "analyze.result.score").
type Path []string

func NewPath(s ...string) Path {
	p := Path{}
	p = append(p, s...)
	return p
}

// ParseDotted splits a dotted reference into its segments. Empty input
// yields an empty path.
func ParseDotted(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "."))
}

func (p Path) First() (string, bool) {
	if len(p) == 0 {
		return "", false
	}
	return p[0], true
}

func (p Path) Next() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[1:]
}

func (p Path) String() string {
	return strings.Join(p, ".")
}
