// Package virality turns raw platform engagement counters into a bounded,
// comparable score in [0, 5].
package virality

import (
	"math"
	"time"
)

// Weights applied to the log-compressed hourly rates. They sum to 1.0 and are
// part of the public contract: changing them changes every persisted score.
const (
	WeightViews    = 0.35
	WeightLikes    = 0.25
	WeightComments = 0.20
	WeightShares   = 0.20
)

const (
	// MaxScore is the upper clamp for a score.
	MaxScore = 5.0

	// DefaultAgeHours is used when a video's publish time is unknown.
	DefaultAgeHours = 24.0

	// ShortFormMaxSeconds is the longest duration that escapes the penalty.
	ShortFormMaxSeconds = 75

	// LongFormPenalty multiplies the raw sum for videos longer than ShortFormMaxSeconds.
	LongFormPenalty = 0.9

	minAgeHours = 1.0
)

// Metrics are the scorer inputs. Counters are non-negative; a metric the
// platform did not report is zero. AgeHours and DurationSec are nil when unknown.
type Metrics struct {
	Views       int64
	Likes       int64
	Comments    int64
	Shares      int64
	AgeHours    *float64
	DurationSec *int
}

// WeightSet records the weights used for a score.
type WeightSet struct {
	Views    float64 `json:"views"`
	Likes    float64 `json:"likes"`
	Comments float64 `json:"comments"`
	Shares   float64 `json:"shares"`
}

// Breakdown explains how a score was produced.
type Breakdown struct {
	Weights     WeightSet `json:"weights"`
	AgeHours    float64   `json:"ageHours"`
	DurationSec *int      `json:"durationSec"`
	Penalty     *float64  `json:"penalty,omitempty"`
	Score       float64   `json:"score"`
}

// Result is a score plus its breakdown.
type Result struct {
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// DefaultWeights returns the fixed weight set.
func DefaultWeights() WeightSet {
	return WeightSet{
		Views:    WeightViews,
		Likes:    WeightLikes,
		Comments: WeightComments,
		Shares:   WeightShares,
	}
}

// Compute scores a set of metrics. The result is a pure function of the input.
func Compute(m Metrics) Result {
	age := DefaultAgeHours
	if m.AgeHours != nil {
		age = *m.AgeHours
	}
	age = math.Max(age, minAgeHours)

	w := DefaultWeights()
	raw := w.Views*compress(HourlyRate(m.Views, age)) +
		w.Likes*compress(HourlyRate(m.Likes, age)) +
		w.Comments*compress(HourlyRate(m.Comments, age)) +
		w.Shares*compress(HourlyRate(m.Shares, age))

	var penalty *float64
	if m.DurationSec != nil && *m.DurationSec > ShortFormMaxSeconds {
		p := LongFormPenalty
		penalty = &p
		raw *= p
	}

	score := round4(math.Min(raw, MaxScore))

	return Result{
		Score: score,
		Breakdown: Breakdown{
			Weights:     w,
			AgeHours:    age,
			DurationSec: m.DurationSec,
			Penalty:     penalty,
			Score:       score,
		},
	}
}

// HourlyRate divides a counter by the age in hours, flooring the age at one hour.
// Negative counters are treated as zero.
func HourlyRate(count int64, ageHours float64) float64 {
	if count < 0 {
		count = 0
	}
	return float64(count) / math.Max(ageHours, minAgeHours)
}

// AgeHours returns the age of content published at publishedAt, floored at one
// hour. It returns nil when publishedAt is unknown so the scorer's default applies.
func AgeHours(publishedAt *time.Time, now time.Time) *float64 {
	if publishedAt == nil || publishedAt.IsZero() {
		return nil
	}
	hours := math.Max(minAgeHours, float64(now.Sub(*publishedAt).Milliseconds())/3_600_000)
	return &hours
}

func compress(rate float64) float64 {
	return math.Log10(1 + rate)
}

func round4(v float64) float64 {
	return math.Round(v*10_000) / 10_000
}
