package authority

import (
	"fmt"
	"strings"
)

// Level is an access level. Lower values carry more authority.
type Level int

// Access levels, from most to least authoritative.
const (
	Self Level = iota
	ClubOwner
	Owner
	Lover
	Mistress
	Whitelist
	Friend
	Public
)

// MostPermissive and LeastPermissive bound the ordering.
const (
	MostPermissive  = Self
	LeastPermissive = Public
)

var levelNames = [...]string{
	Self:      "self",
	ClubOwner: "clubowner",
	Owner:     "owner",
	Lover:     "lover",
	Mistress:  "mistress",
	Whitelist: "whitelist",
	Friend:    "friend",
	Public:    "public",
}

// String returns the level name.
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is a defined level.
func (l Level) Valid() bool {
	return l >= Self && l <= Public
}

// AtLeast reports whether l carries at least the authority of min.
func (l Level) AtLeast(min Level) bool {
	return l <= min
}

// ParseLevel parses a level name. Matching is case-insensitive.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return Public, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
