package conditions

import (
	"fmt"
	"time"
)

// Limit restricts how a policy may be changed and whether it can apply.
type Limit string

const (
	// LimitNormal places no restriction.
	LimitNormal Limit = "normal"

	// LimitLimited restricts edits to holders of the limited capability.
	LimitLimited Limit = "limited"

	// LimitBlocked keeps the policy out of effect.
	LimitBlocked Limit = "blocked"
)

// ParseLimit parses a limit name. Empty parses as LimitNormal.
func ParseLimit(s string) (Limit, error) {
	switch Limit(s) {
	case "", LimitNormal:
		return LimitNormal, nil
	case LimitLimited, LimitBlocked:
		return Limit(s), nil
	default:
		return LimitNormal, fmt.Errorf("unknown limit %q", s)
	}
}

// Valid reports whether l is a defined limit.
func (l Limit) Valid() bool {
	_, err := ParseLimit(string(l))
	return err == nil
}

// Blocked reports whether l keeps a policy out of effect.
func (l Limit) Blocked() bool {
	return l == LimitBlocked
}

// TimerExpired reports whether an optional expiry has passed at now.
func TimerExpired(expires *time.Time, now time.Time) bool {
	return expires != nil && !now.Before(*expires)
}
