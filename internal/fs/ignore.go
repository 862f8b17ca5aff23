package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
)

// IgnoreFileName is the per-project exclude file read from the deploy root.
const IgnoreFileName = ".cdnsyncignore"

// defaultIgnorePatterns are always applied regardless of config or ignore file.
var defaultIgnorePatterns = []string{IgnoreFileName}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against each path segment
}

// IgnoreMatcher decides which files of the build output are excluded from
// deployment. Patterns without '/' match any single path segment, so
// "*.map" excludes maps anywhere and "drafts" excludes a whole directory.
// Patterns with '/' match the full relative path, or a directory prefix of it.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings plus the
// defaults. Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range slices.Concat(defaultIgnorePatterns, rawPatterns) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.Trim(raw, "/")
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the file at name should be excluded. name is
// relative to the deploy root with forward slashes.
func (m *IgnoreMatcher) Match(name string) bool {
	if name == "" {
		return false
	}
	segments := strings.Split(name, "/")

	for _, p := range m.patterns {
		if p.matchPath {
			if matchPrefix(p.pattern, segments) {
				return true
			}
			continue
		}
		for _, seg := range segments {
			// Bad patterns never match.
			if ok, _ := path.Match(p.pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// matchPrefix matches pattern against the leading segments of the path,
// taking as many segments as the pattern has.
func matchPrefix(pattern string, segments []string) bool {
	depth := strings.Count(pattern, "/") + 1
	if depth > len(segments) {
		return false
	}
	ok, _ := path.Match(pattern, strings.Join(segments[:depth], "/"))
	return ok
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
