package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is a value object holding a parsed dotted version string such as "1.18.2".
//
// Parsing never fails. A component that is not a non-negative integer marks the
// key as non-numeric, and a non-numeric key compares as newer than anything.
type Key struct {
	raw        string
	components []int
	numeric    bool
}

// Parse parses a dot-separated version string
func Parse(raw string) Key {
	raw = strings.TrimSpace(raw)
	key := Key{raw: raw, numeric: raw != ""}

	if raw == "" {
		return key
	}

	parts := strings.Split(raw, ".")
	components := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || strings.HasPrefix(part, "+") {
			key.numeric = false
			break
		}
		components = append(components, n)
	}

	if key.numeric {
		key.components = components
	}
	return key
}

// String returns the version as given
func (k Key) String() string {
	return k.raw
}

// IsZero reports whether the key was parsed from an empty string
func (k Key) IsZero() bool {
	return k.raw == ""
}

// IsNumeric reports whether every component parsed as an integer
func (k Key) IsNumeric() bool {
	return k.numeric
}

// Components returns a copy of the integer components, nil for non-numeric keys
func (k Key) Components() []int {
	if !k.numeric {
		return nil
	}
	return append([]int(nil), k.components...)
}

// IsAtLeast reports whether k is at or above the given components.
//
// Only the shared prefix of both sequences is compared, so "1.16" is at least
// 1.16.5. A non-numeric key is always at least anything.
func (k Key) IsAtLeast(other ...int) bool {
	if !k.numeric {
		return true
	}

	n := min(len(k.components), len(other))
	for i := 0; i < n; i++ {
		switch {
		case k.components[i] < other[i]:
			return false
		case k.components[i] > other[i]:
			return true
		}
	}
	return true
}

// Compare orders two keys for display purposes. Numeric keys compare on their
// shared prefix and fall back to component count and then the raw string, so the
// order is total. Non-numeric keys sort after numeric ones.
func (k Key) Compare(other Key) int {
	switch {
	case k.numeric && !other.numeric:
		return -1
	case !k.numeric && other.numeric:
		return 1
	case !k.numeric && !other.numeric:
		return strings.Compare(k.raw, other.raw)
	}

	n := min(len(k.components), len(other.components))
	for i := 0; i < n; i++ {
		if k.components[i] != other.components[i] {
			if k.components[i] < other.components[i] {
				return -1
			}
			return 1
		}
	}
	if len(k.components) != len(other.components) {
		if len(k.components) < len(other.components) {
			return -1
		}
		return 1
	}
	return strings.Compare(k.raw, other.raw)
}

// ValidateName checks that a version string is usable as a cache directory name.
// Only ASCII letters, digits, '.', '_', '+' and '-' are allowed.
func ValidateName(raw string) error {
	if raw == "" {
		return fmt.Errorf("version cannot be empty")
	}
	if raw == "." || raw == ".." {
		return fmt.Errorf("invalid version %q", raw)
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '+', r == '-':
		default:
			return fmt.Errorf("invalid character %q in version %q", r, raw)
		}
	}
	return nil
}
