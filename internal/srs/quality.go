package srs

import (
	"fmt"
	"strconv"
)

// Quality is the user's rating of how well a card was recalled.
type Quality int

const (
	Again Quality = 1
	Hard  Quality = 2
	Good  Quality = 3
	Easy  Quality = 4
)

// Qualities lists the valid ratings in ascending order.
var Qualities = []Quality{Again, Hard, Good, Easy}

var qualityNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// IsValid reports whether q is one of Again, Hard, Good or Easy.
func (q Quality) IsValid() bool {
	return q >= Again && q <= Easy
}

// Failed reports whether q counts as a failed recall.
func (q Quality) Failed() bool {
	return q < Good
}

func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// ParseQuality accepts either the numeric rating ("1".."4") or its name.
func ParseQuality(s string) (Quality, error) {
	if n, err := strconv.Atoi(s); err == nil {
		q := Quality(n)
		if !q.IsValid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidQuality, n)
		}
		return q, nil
	}
	for _, q := range Qualities {
		if qualityNames[q] == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
}
