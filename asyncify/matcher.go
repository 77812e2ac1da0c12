package asyncify

import (
	"sort"
	"strings"
)

// ImportMatcher decides whether a host import suspends.
type ImportMatcher interface {
	Match(module, name string) bool
}

// FunctionMatcher decides whether calls to a function name suspend.
type FunctionMatcher interface {
	MatchFunction(name string) bool
}

// PatternMatcher matches imports against suspend patterns:
//   - "module.name" or "module#name" - one import
//   - "name" - that name from any module
//   - "module.*" - every import of module
//   - "*" - every import
type PatternMatcher struct {
	exact   map[string]bool
	names   map[string]bool
	modules map[string]bool
	all     bool
}

// NewPatternMatcher compiles patterns. Blank patterns are ignored.
func NewPatternMatcher(patterns []string) *PatternMatcher {
	m := &PatternMatcher{
		exact:   make(map[string]bool),
		names:   make(map[string]bool),
		modules: make(map[string]bool),
	}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "*":
			m.all = true
		case strings.HasSuffix(p, ".*"):
			m.modules[strings.TrimSuffix(p, ".*")] = true
		case strings.Contains(p, "#"):
			module, name, _ := strings.Cut(p, "#")
			m.exact[module+"."+name] = true
		case strings.Contains(p, "."):
			m.exact[p] = true
		default:
			m.names[p] = true
		}
	}
	return m
}

// Match reports whether module.name is covered by a pattern.
func (m *PatternMatcher) Match(module, name string) bool {
	return m.all || m.modules[module] || m.exact[module+"."+name] || m.names[name]
}

// Empty reports whether no pattern was given.
func (m *PatternMatcher) Empty() bool {
	return !m.all && len(m.exact) == 0 && len(m.names) == 0 && len(m.modules) == 0
}

// FunctionNameMatcher matches functions by exact name.
type FunctionNameMatcher struct {
	names map[string]bool
}

// NewFunctionNameMatcher creates a matcher from a list of function names.
func NewFunctionNameMatcher(names []string) *FunctionNameMatcher {
	m := &FunctionNameMatcher{names: make(map[string]bool, len(names))}
	for _, n := range names {
		m.names[n] = true
	}
	return m
}

// MatchFunction returns true if the function name matches.
func (m *FunctionNameMatcher) MatchFunction(name string) bool {
	return m.names[name]
}

// Names returns the matched names, sorted.
func (m *FunctionNameMatcher) Names() []string {
	out := make([]string, 0, len(m.names))
	for n := range m.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
