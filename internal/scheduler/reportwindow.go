package scheduler

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// ReportWindow decides when the daily report becomes due. It fires at most
// once per calendar day, on matching weekdays, once local time has passed the
// configured HH:MM.
type ReportWindow struct {
	hour     int
	minute   int
	days     map[time.Weekday]bool
	location *time.Location
	lastSent string
}

// NewReportWindow parses the report time ("HH:MM"), the comma separated
// weekday list ("mon,tue,...") and an IANA timezone name.
func NewReportWindow(at, days, timezone string) (*ReportWindow, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(at))
	if err != nil {
		return nil, fmt.Errorf("parse report time %q: %w", at, err)
	}

	selected := make(map[time.Weekday]bool)
	for _, part := range strings.Split(days, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		day, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		selected[day] = true
	}
	if len(selected) == 0 {
		for _, day := range weekdayNames {
			selected[day] = true
		}
	}

	location := time.UTC
	if timezone != "" {
		location, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
	}

	return &ReportWindow{
		hour:     parsed.Hour(),
		minute:   parsed.Minute(),
		days:     selected,
		location: location,
	}, nil
}

// Due reports whether the daily report should be sent at now.
func (w *ReportWindow) Due(now time.Time) bool {
	local := now.In(w.location)
	if !w.days[local.Weekday()] {
		return false
	}
	if local.Hour() < w.hour || (local.Hour() == w.hour && local.Minute() < w.minute) {
		return false
	}
	return local.Format("2006-01-02") != w.lastSent
}

// MarkSent records that the report for now's calendar day went out.
func (w *ReportWindow) MarkSent(now time.Time) {
	w.lastSent = now.In(w.location).Format("2006-01-02")
}
