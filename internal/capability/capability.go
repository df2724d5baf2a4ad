// Package capability implements the permission data model: a closed set of
// capability kinds (HTTP, file, environment variable) and the matcher that
// decides whether a granted capability covers a required one.
package capability

import (
	"regexp"
	"strings"
)

// Kind identifies which shape a Capability carries.
type Kind string

const (
	KindHTTP Kind = "http"
	KindFile Kind = "file"
	KindEnv  Kind = "env"
)

// Capability is an immutable record describing a class of permitted actions.
// Exactly one of the three shapes is populated, selected by Kind.
type Capability struct {
	Kind        Kind     `json:"type"`
	Description string   `json:"description"`

	// HTTP fields.
	Host        string   `json:"host,omitempty"`
	PathPattern string   `json:"pathPattern,omitempty"`
	Methods     []string `json:"methods,omitempty"`

	// FILE fields.
	Path       string   `json:"path,omitempty"`
	Operations []string `json:"operations,omitempty"`

	// ENV fields.
	Variables []string `json:"variables,omitempty"`
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// NormalizeMethod coerces an arbitrary method string to one of the five known
// verbs, defaulting to GET when it is not recognized.
func NormalizeMethod(method string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if validMethods[m] {
		return m
	}
	return "GET"
}

// Equal reports structural equality as required for revocation: same kind,
// all scalar fields equal, and the multiset of methods/operations/variables
// equal (order-independent).
func (c Capability) Equal(other Capability) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case KindHTTP:
		return c.Host == other.Host &&
			c.PathPattern == other.PathPattern &&
			sameSet(c.Methods, other.Methods)
	case KindFile:
		return c.Path == other.Path && sameSet(c.Operations, other.Operations)
	case KindEnv:
		return sameSet(c.Variables, other.Variables)
	default:
		return false
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// MatchPath compiles pattern into an anchored regex where "*" matches any run
// of characters excluding "/", then reports whether path matches it.
func MatchPath(pattern, path string) bool {
	return matchGlob(pattern, path, false)
}

// MatchEnvVar is like MatchPath except "*" matches any character, and an
// "_*" pair also matches nothing at all, so "SECRET_*" covers both
// "SECRET_API_KEY" and "SECRET".
func MatchEnvVar(pattern, value string) bool {
	return matchGlob(pattern, value, true)
}

func matchGlob(pattern, value string, dotAll bool) bool {
	var b strings.Builder
	b.WriteByte('^')
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if dotAll && r == '_' && i+1 < len(runes) && runes[i+1] == '*' {
			b.WriteString("(?:_.*)?")
			i++
			continue
		}
		if r == '*' {
			if dotAll {
				b.WriteString(".*")
			} else {
				b.WriteString("[^/]*")
			}
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

// Match reports whether granted covers required:
//   - HTTP: hosts equal; if both pathPatterns are set and neither is equal nor
//     "*", granted.pathPattern must be at least as general as required's
//     (MatchPath(granted.pathPattern, required.pathPattern)); if required has
//     methods, every one must appear in granted's (empty granted ⇒ all).
//   - FILE: MatchPath(granted.path, required.path) and every required
//     operation present in granted's.
//   - ENV: every required variable literal matched by some granted pattern.
func Match(required, granted Capability) bool {
	if required.Kind != granted.Kind {
		return false
	}
	switch required.Kind {
	case KindHTTP:
		return matchHTTP(required, granted)
	case KindFile:
		return matchFile(required, granted)
	case KindEnv:
		return matchEnv(required, granted)
	default:
		return false
	}
}

func matchHTTP(required, granted Capability) bool {
	if required.Host != granted.Host {
		return false
	}
	if required.PathPattern != "" && granted.PathPattern != "" &&
		granted.PathPattern != required.PathPattern && granted.PathPattern != "*" {
		if !MatchPath(granted.PathPattern, required.PathPattern) {
			return false
		}
	}
	if len(required.Methods) > 0 && len(granted.Methods) > 0 {
		grantedSet := make(map[string]bool, len(granted.Methods))
		for _, m := range granted.Methods {
			grantedSet[m] = true
		}
		for _, m := range required.Methods {
			if !grantedSet[m] {
				return false
			}
		}
	}
	return true
}

func matchFile(required, granted Capability) bool {
	if !MatchPath(granted.Path, required.Path) {
		return false
	}
	grantedOps := make(map[string]bool, len(granted.Operations))
	for _, op := range granted.Operations {
		grantedOps[op] = true
	}
	for _, op := range required.Operations {
		if !grantedOps[op] {
			return false
		}
	}
	return true
}

func matchEnv(required, granted Capability) bool {
	for _, v := range required.Variables {
		matched := false
		for _, pattern := range granted.Variables {
			if MatchEnvVar(pattern, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
