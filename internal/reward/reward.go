package reward

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type MetricType string

const (
	MetricStreak   MetricType = "streak"
	MetricCO2      MetricType = "co2"
	MetricReferral MetricType = "referral"
)

// MetricTypes lists every threshold kind in display order.
var MetricTypes = []MetricType{MetricStreak, MetricCO2, MetricReferral}

func ParseMetricType(s string) (MetricType, error) {
	switch t := MetricType(s); t {
	case MetricStreak, MetricCO2, MetricReferral:
		return t, nil
	}
	return "", fmt.Errorf("unknown metric type %q", s)
}

// Metrics are the cumulative per-user values thresholds are compared against.
type Metrics struct {
	CurrentStreak int     `json:"current_streak"`
	LongestStreak int     `json:"longest_streak"`
	TotalCO2Saved float64 `json:"total_co2_saved"`
	ReferralCount int     `json:"referral_count"`
}

// Value reads the metric of kind t from m.
func (t MetricType) Value(m Metrics) float64 {
	switch t {
	case MetricStreak:
		return float64(m.CurrentStreak)
	case MetricCO2:
		return m.TotalCO2Saved
	case MetricReferral:
		return float64(m.ReferralCount)
	}
	return 0
}

type Threshold struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Type         MetricType `json:"type" db:"type"`
	Threshold    float64    `json:"threshold" db:"threshold"`
	CosmeticID   uuid.UUID  `json:"cosmetic_id" db:"cosmetic_id"`
	CosmeticName string     `json:"cosmetic_name"`
	IsActive     bool       `json:"is_active" db:"is_active"`
}

// Unlock is one row of the unlocked-cosmetics ledger.
type Unlock struct {
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	CosmeticID   uuid.UUID  `json:"cosmetic_id" db:"cosmetic_id"`
	CosmeticName string     `json:"cosmetic_name,omitempty"`
	Source       MetricType `json:"source" db:"source"`
	UnlockedAt   time.Time  `json:"unlocked_at" db:"unlocked_at"`
}

// CO2 totals are sums of decimals; a reached threshold must not be missed by rounding.
const epsilon = 1e-9

func reached(threshold, value float64) bool {
	return threshold <= value+epsilon
}

// SortThresholds orders thresholds ascending by value.
func SortThresholds(ths []Threshold) {
	sort.SliceStable(ths, func(i, j int) bool { return ths[i].Threshold < ths[j].Threshold })
}

// Eligible returns every active threshold at or below value, not only the nearest one.
func Eligible(ths []Threshold, value float64) []Threshold {
	var out []Threshold
	for _, th := range ths {
		if th.IsActive && reached(th.Threshold, value) {
			out = append(out, th)
		}
	}
	return out
}

// NextTarget returns the first active threshold strictly above value. ths must be sorted.
func NextTarget(ths []Threshold, value float64) (Threshold, bool) {
	for _, th := range ths {
		if th.IsActive && !reached(th.Threshold, value) {
			return th, true
		}
	}
	return Threshold{}, false
}

type Progress struct {
	Type       MetricType `json:"type"`
	Current    float64    `json:"current"`
	Configured bool       `json:"configured"`
	Completed  bool       `json:"completed"`
	Target     *float64   `json:"target,omitempty"`
	NextReward *Threshold `json:"next_reward,omitempty"`
	Unlocked   int        `json:"unlocked"`
	Total      int        `json:"total"`
}

// BuildProgress is the read-only progress lookup for one metric type. An empty
// threshold list yields Configured=false rather than an error.
func BuildProgress(t MetricType, ths []Threshold, value float64) Progress {
	sorted := make([]Threshold, 0, len(ths))
	for _, th := range ths {
		if th.IsActive && th.Type == t {
			sorted = append(sorted, th)
		}
	}
	SortThresholds(sorted)

	p := Progress{
		Type:       t,
		Current:    value,
		Configured: len(sorted) > 0,
		Total:      len(sorted),
		Unlocked:   len(Eligible(sorted, value)),
	}
	if !p.Configured {
		return p
	}

	next, ok := NextTarget(sorted, value)
	if !ok {
		p.Completed = true
		return p
	}
	target := next.Threshold
	p.Target = &target
	p.NextReward = &next
	return p
}

// Overview is the rewards page: the user's metrics and progress for every metric type.
type Overview struct {
	Metrics  Metrics    `json:"metrics"`
	Progress []Progress `json:"progress"`
}
