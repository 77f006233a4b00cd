// Package recency scores memories by age with exponential half-life decay.
//
// Timestamps without zone information are interpreted as Singapore time
// (UTC+8), matching where the recorded conversations happen. Memories older
// than the TTL score zero; fresher ones decay with a 6-day half-life.
package recency

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// HalfLife is the age at which a memory's recency score halves.
	HalfLife = 6 * 24 * time.Hour
	// TTL is the age beyond which a memory scores zero.
	TTL = 14 * 24 * time.Hour
)

// ErrBadTimestamp marks timestamps that cannot be parsed.
var ErrBadTimestamp = errors.New("recency: bad timestamp")

// sgt is the zone applied to naive timestamps.
var sgt = time.FixedZone("SGT", 8*60*60)

// layouts accepted by Parse, tried in order. The zone-less layouts get SGT.
var layouts = []struct {
	format string
	naive  bool
}{
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05.999999", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02", true},
}

// Parse converts a timestamp string into a time.Time, applying SGT to
// naive values. Returns ErrBadTimestamp for unparseable input.
func Parse(s string) (time.Time, error) {
	for _, l := range layouts {
		var t time.Time
		var err error
		if l.naive {
			t, err = time.ParseInLocation(l.format, s, sgt)
		} else {
			t, err = time.Parse(l.format, s)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// ScoreTime returns the decay score of a memory created at ts, as of now.
// The result is in [0,1], rounded to 4 decimal places. Ages beyond TTL
// score zero; future timestamps clamp to age zero and score 1.
func ScoreTime(ts, now time.Time) float64 {
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	if age > TTL {
		return 0
	}
	days := age.Hours() / 24
	halfLifeDays := HalfLife.Hours() / 24
	score := math.Exp(-math.Ln2 * days / halfLifeDays)
	return round4(score)
}

// Score parses s and scores it against now. Unparseable timestamps
// return ErrBadTimestamp; callers decide whether that is fatal.
func Score(s string, now time.Time) (float64, error) {
	ts, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return ScoreTime(ts, now), nil
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
