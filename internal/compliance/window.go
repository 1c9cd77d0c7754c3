// Package compliance decides whether dialing is currently permitted.
package compliance

import (
	"time"

	"github.com/emirpiksel/dialara/internal/domain"
)

const clockLayout = "15:04"

// WithinWindow reports whether now falls inside the campaign's calling
// window, evaluated in the campaign time zone. Weekends are excluded when
// configured. Boundaries are inclusive on both ends.
//
// Malformed settings (bad zone or clock strings) are treated as outside the
// window: a misconfigured campaign must never dial.
func WithinWindow(now time.Time, settings domain.CampaignSettings) bool {
	loc, err := time.LoadLocation(settings.TimeZone)
	if err != nil {
		return false
	}
	local := now.In(loc)

	if settings.ExcludeWeekends {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}

	start, err := time.Parse(clockLayout, settings.CallingHoursStart)
	if err != nil {
		return false
	}
	end, err := time.Parse(clockLayout, settings.CallingHoursEnd)
	if err != nil {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	return minute >= startMin && minute <= endMin
}

// ValidateWindow checks the window configuration itself: both bounds must
// parse and start must be wall-clock before end. Overnight windows are
// deliberately rejected.
func ValidateWindow(settings domain.CampaignSettings) []string {
	var violations []string

	start, startErr := time.Parse(clockLayout, settings.CallingHoursStart)
	if startErr != nil {
		violations = append(violations, "calling_hours_start must be HH:MM")
	}
	end, endErr := time.Parse(clockLayout, settings.CallingHoursEnd)
	if endErr != nil {
		violations = append(violations, "calling_hours_end must be HH:MM")
	}
	if startErr == nil && endErr == nil && !start.Before(end) {
		violations = append(violations, "calling_hours_start must be before calling_hours_end")
	}

	if _, err := time.LoadLocation(settings.TimeZone); err != nil {
		violations = append(violations, "time_zone is not a valid IANA zone")
	}

	return violations
}
