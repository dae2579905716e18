// Package utils holds small name-handling helpers shared by the cache
// key builder and the hook implementations.
package utils

import "strings"

// CanonicalDNSName lowercases a name, trims surrounding whitespace, and
// strips any trailing dots. Cache keys, block rules, and log fields all
// compare names in this form.
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}
