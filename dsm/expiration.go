package dsm

import (
	"fmt"
	"strconv"
	"strings"
)

// Multipliers for the supported expiration time modifiers, in minutes.
const (
	minutesPerHour  = 60
	minutesPerDay   = 24 * minutesPerHour
	minutesPerWeek  = 7 * minutesPerDay
	minutesPerMonth = 30 * minutesPerDay
	minutesPerYear  = 365 * minutesPerDay
)

// DefaultExpiration is the snapshot expiration used when none is given.
const DefaultExpiration = "7d"

// ParseExpiration converts a time expression of the form <int> or
// <int><modifier> into minutes. The accepted modifiers are h (hours),
// d (days), w (weeks), m (months) and y (years); a plain integer is taken
// as minutes and 0 means the snapshot never expires. Negative values and
// unknown modifiers are rejected.
func ParseExpiration(expression string) (int, error) {
	if expression == "" {
		return 0, fmt.Errorf("Empty expiration time expression")
	}

	last := expression[len(expression)-1]
	if last >= '0' && last <= '9' {
		value, err := strconv.Atoi(expression)
		if err != nil {
			return 0, fmt.Errorf("Invalid expiration time expression %q", expression)
		}

		if value < 0 {
			return 0, fmt.Errorf("Expiration time cannot be negative: %q", expression)
		}

		return value, nil
	}

	value, err := strconv.Atoi(expression[:len(expression)-1])
	if err != nil {
		return 0, fmt.Errorf("Invalid expiration time expression %q", expression)
	}

	if value < 0 {
		return 0, fmt.Errorf("Expiration time cannot be negative: %q", expression)
	}

	var multiplier int
	switch strings.ToLower(string(last)) {
	case "h":
		multiplier = minutesPerHour
	case "d":
		multiplier = minutesPerDay
	case "w":
		multiplier = minutesPerWeek
	case "m":
		multiplier = minutesPerMonth
	case "y":
		multiplier = minutesPerYear
	default:
		return 0, fmt.Errorf("Invalid expiration time modifier %q", string(last))
	}

	return value * multiplier, nil
}
