package sequintest

import "strings"

// MatchKey reports whether key matches a filter pattern. Tokens are separated
// by '.', '*' matches exactly one token and a trailing '>' matches one or
// more remaining tokens.
func MatchKey(pattern, key string) bool {
	if pattern == "" || key == "" {
		return false
	}
	pt := strings.Split(pattern, ".")
	kt := strings.Split(key, ".")

	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(kt) > i
		}
		if i >= len(kt) {
			return false
		}
		if p != "*" && p != kt[i] {
			return false
		}
	}
	return len(pt) == len(kt)
}
