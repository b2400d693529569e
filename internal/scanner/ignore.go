package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is one line of a .cflowignore file, in gitignore syntax.
type IgnorePattern struct {
	raw      string
	negate   bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseIgnorePattern parses a gitignore-style pattern.
func ParseIgnorePattern(line string) IgnorePattern {
	p := IgnorePattern{raw: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") {
		// a slash anywhere but the end anchors the pattern to the root
		p.anchored = true
	}
	p.segments = strings.Split(line, "/")
	return p
}

// String returns the pattern as written.
func (p IgnorePattern) String() string { return p.raw }

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool { return p.negate }

// Match reports whether the slash-separated relative path matches. isDir
// tells whether the path names a directory; a file also matches when one
// of its parent directories does.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")
	// try the path itself and then each ancestor directory
	for n := len(parts); n > 0; n-- {
		if n < len(parts) || isDir || !p.dirOnly {
			if p.matchParts(parts[:n]) {
				return true
			}
		}
	}
	return false
}

func (p IgnorePattern) matchParts(parts []string) bool {
	if p.anchored {
		return matchSegments(p.segments, parts)
	}
	// unanchored patterns match the trailing segments at any depth
	for start := 0; start < len(parts); start++ {
		if matchSegments(p.segments, parts[start:]) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}

// ignored applies patterns in order; the last match wins.
func ignored(rel string, isDir bool, patterns []IgnorePattern) bool {
	result := false
	for _, p := range patterns {
		if p.Match(rel, isDir) {
			result = !p.negate
		}
	}
	return result
}
