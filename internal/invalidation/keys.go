// Package invalidation builds domain-scoped cache keys and removes them in
// groups, optionally together with the domains that depend on them.
package invalidation

import (
	"regexp"
	"strings"
)

// Separator joins key parts.
const Separator = ":"

// Key joins domain and parts into a cache key, skipping empty parts:
// Key("clients", "42", "payments") is "clients:42:payments".
func Key(domain string, parts ...string) string {
	var b strings.Builder
	b.WriteString(domain)
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(Separator)
		b.WriteString(p)
	}
	return b.String()
}

// DetailKey is the key of a single record and the prefix of its sub-resources.
func DetailKey(domain, id string) string {
	return Key(domain, id)
}

// PrefixPattern matches key itself and every key nested under it, but not
// keys that merely share leading characters: "cases" matches "cases:1" and
// not "cases-archive".
func PrefixPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(key) + `(?:` + regexp.QuoteMeta(Separator) + `|$)`)
}
