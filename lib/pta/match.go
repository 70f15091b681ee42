// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package pta

import "bytes"

// matchURL reports whether path satisfies the token's url pattern.
//
// Bytes match in lock step from the start. An unescaped '*' is a
// single greedy wildcard: with nothing after it the pattern is a pure
// prefix, otherwise the path must end with the remaining pattern
// bytes, compared raw. A backslash immediately followed by '*' matches
// a literal asterisk; the backslash consumes no path byte. Escaping is
// per occurrence. Without a wildcard, the whole path must be consumed
// exactly at pattern end.
func matchURL(pattern, path []byte) bool {
	i := 0
	for w := 0; w < len(pattern); w++ {
		if pattern[w] == '\\' && w+1 < len(pattern) && pattern[w+1] == '*' {
			w++
		} else if pattern[w] == '*' {
			remainder := pattern[w+1:]
			if len(remainder) == 0 {
				return true
			}
			if len(path)-i < len(remainder) {
				return false
			}
			return bytes.Equal(path[len(path)-len(remainder):], remainder)
		}
		if i >= len(path) || path[i] != pattern[w] {
			return false
		}
		i++
	}
	return i == len(path)
}
