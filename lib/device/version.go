// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"strconv"
	"strings"
)

// Version is a dotted numeric version such as a driver release
// (560.35.03) or a compute capability (8.9).
type Version []int

// ParseVersion reads the leading numeric components of a dotted
// version string. Each component keeps only its digits ("03" is 3,
// "8a" is 8); parsing stops at the first component with no digits.
// An empty or unparseable string yields an empty Version.
func ParseVersion(value string) Version {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var parts Version
	for _, token := range strings.Split(value, ".") {
		var digits strings.Builder
		for _, character := range token {
			if character >= '0' && character <= '9' {
				digits.WriteRune(character)
			}
		}
		if digits.Len() == 0 {
			break
		}
		number, err := strconv.Atoi(digits.String())
		if err != nil {
			break
		}
		parts = append(parts, number)
	}
	return parts
}

// Compare returns -1, 0, or +1. The shorter version is zero-padded,
// so 7 equals 7.0 and 560.28 is less than 560.28.1.
func (v Version) Compare(other Version) int {
	length := max(len(v), len(other))
	for i := range length {
		var left, right int
		if i < len(v) {
			left = v[i]
		}
		if i < len(other) {
			right = other[i]
		}
		switch {
		case left < right:
			return -1
		case left > right:
			return 1
		}
	}
	return 0
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// IsZero reports whether no component was parsed.
func (v Version) IsZero() bool { return len(v) == 0 }

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, number := range v {
		parts[i] = strconv.Itoa(number)
	}
	return strings.Join(parts, ".")
}
