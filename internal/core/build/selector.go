package build

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the two selector variants
type Kind int

const (
	KindLatest Kind = iota
	KindSpecific
)

// Selector picks a build of a version: either the latest one the API knows
// about or an explicit build number. The zero value selects the latest build.
type Selector struct {
	kind   Kind
	number int
}

// Latest returns a selector for the newest known build
func Latest() Selector {
	return Selector{kind: KindLatest}
}

// Specific returns a selector for an explicit build number
func Specific(number int) (Selector, error) {
	if number <= 0 {
		return Selector{}, fmt.Errorf("build number must be positive, got %d", number)
	}
	return Selector{kind: KindSpecific, number: number}, nil
}

// ParseSelector parses "latest" (or an empty string) and positive integers
func ParseSelector(value string) (Selector, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "latest") {
		return Latest(), nil
	}

	number, err := strconv.Atoi(value)
	if err != nil {
		return Selector{}, fmt.Errorf("invalid build %q: expected \"latest\" or a build number", value)
	}
	return Specific(number)
}

// Kind returns the selector variant
func (s Selector) Kind() Kind {
	return s.kind
}

// IsLatest reports whether the selector asks for the newest build
func (s Selector) IsLatest() bool {
	return s.kind == KindLatest
}

// Number returns the explicit build number and whether the selector has one
func (s Selector) Number() (int, bool) {
	if s.kind != KindSpecific {
		return 0, false
	}
	return s.number, true
}

// String returns "latest" or the build number
func (s Selector) String() string {
	switch s.kind {
	case KindSpecific:
		return strconv.Itoa(s.number)
	default:
		return "latest"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
