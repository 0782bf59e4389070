// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package index

// matchPath reports whether path matches the glob pattern. '*' matches
// any sequence of characters including path separators, '?' matches a
// single character. The empty pattern matches everything.
func matchPath(pattern, path string) bool {
	if pattern == "" {
		return true
	}
	return matchGlob(pattern, path)
}

func matchGlob(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// collapse consecutive stars
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchGlob(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if name == "" {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		default:
			if name == "" || pattern[0] != name[0] {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		}
	}
	return name == ""
}
