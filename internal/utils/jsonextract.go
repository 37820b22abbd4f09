package utils

import "strings"

// FirstJSONArray returns the first balanced [...] in s, or "".
func FirstJSONArray(s string) string {
	return firstBalanced(s, '[', ']')
}

// FirstJSONObject returns the first balanced {...} in s, or "".
func FirstJSONObject(s string) string {
	return firstBalanced(s, '{', '}')
}

// firstBalanced scans from the first open rune and ignores brackets inside JSON strings.
func firstBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	for start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}

		// Unterminated; try the next opening bracket.
		next := strings.IndexByte(s[start+1:], open)
		if next == -1 {
			return ""
		}
		start += next + 1
	}
	return ""
}
