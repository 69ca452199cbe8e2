package care

import (
	"fmt"
	"time"
)

// NowLabel is what the app shows when a care action is due.
const NowLabel = "Agora!"

// Remaining is the time left until a due-time, in whole units.
// Overdue is the "now" sentinel: it is set whenever due <= now, and then
// Days and Hours are zero.
type Remaining struct {
	Overdue bool `json:"overdue"`
	Days    int  `json:"days"`
	Hours   int  `json:"hours"` // 0..23 when Days > 0
}

// TimeRemaining splits due-now into whole days and leftover whole hours.
// Partial hours are truncated, so a plant due in 59 minutes reads "0h".
func TimeRemaining(due, now time.Time) Remaining {
	diff := due.Sub(now)
	if diff <= 0 {
		return Remaining{Overdue: true}
	}
	totalHours := int(diff / time.Hour)
	return Remaining{
		Days:  totalHours / 24,
		Hours: totalHours % 24,
	}
}

// Duration converts r back to a duration. The overdue sentinel is zero.
func (r Remaining) Duration() time.Duration {
	if r.Overdue {
		return 0
	}
	return time.Duration(r.Days)*Day + time.Duration(r.Hours)*Hour
}

// String renders "Agora!", "3d 4h" or "5h". The days component is omitted
// when it is zero.
func (r Remaining) String() string {
	switch {
	case r.Overdue:
		return NowLabel
	case r.Days > 0:
		return fmt.Sprintf("%dd %dh", r.Days, r.Hours)
	default:
		return fmt.Sprintf("%dh", r.Hours)
	}
}
