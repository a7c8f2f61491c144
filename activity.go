package ensemble

import (
	"time"
)

// ──────────────────────────────────────────────
// ActivityProfile — rolling 7-day channel activity statistics
// ──────────────────────────────────────────────

const activityDays = 7

// ActivityProfile keeps hourly message counts for the last seven days.
// The ambient trigger uses it to adapt cadence: busy channels get fewer
// unprompted messages, quiet channels more.
type ActivityProfile struct {
	// Buckets[day][hour] = message count. day = weekday index.
	Buckets [activityDays][24]int `json:"buckets"`
	// StampedDay remembers which calendar day each weekday slot holds,
	// so a stale slot is reset when the week wraps.
	StampedDay [activityDays]string `json:"stamped_day"`
	Total      int                  `json:"total"`
}

// NewActivityProfile returns an empty profile.
func NewActivityProfile() *ActivityProfile {
	return &ActivityProfile{}
}

// Record counts one message at the given time.
func (p *ActivityProfile) Record(at time.Time) {
	day := int(at.Weekday())
	stamp := at.Format("2006-01-02")
	if p.StampedDay[day] != stamp {
		// Weekday slot belongs to a previous week: reset it.
		for h := range p.Buckets[day] {
			p.Total -= p.Buckets[day][h]
			p.Buckets[day][h] = 0
		}
		p.StampedDay[day] = stamp
	}
	p.Buckets[day][at.Hour()]++
	p.Total++
}

// HourlyAverage returns the mean messages per hour across the window.
func (p *ActivityProfile) HourlyAverage() float64 {
	return float64(p.Total) / float64(activityDays*24)
}

// PeakHour returns the hour of day (0-23) with the most traffic.
func (p *ActivityProfile) PeakHour() int {
	var byHour [24]int
	for d := 0; d < activityDays; d++ {
		for h := 0; h < 24; h++ {
			byHour[h] += p.Buckets[d][h]
		}
	}
	peak, best := 0, -1
	for h, n := range byHour {
		if n > best {
			peak, best = h, n
		}
	}
	return peak
}

// AmbientScale returns a multiplier for the ambient trigger probability.
// Busier channels scale down toward 0.5; quiet channels scale up toward
// 1.5. The hard minimum-interval floor is enforced by the ticker, not here.
func (p *ActivityProfile) AmbientScale() float64 {
	avg := p.HourlyAverage()
	switch {
	case avg >= 10:
		return 0.5
	case avg >= 3:
		return 0.75
	case avg >= 0.5:
		return 1.0
	default:
		return 1.5
	}
}
