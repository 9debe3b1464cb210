package fillwork

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shopfloor/bizerror"
	"shopfloor/common"
)

// ParseClock parses a wall time "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("invalid wall time %q, expect HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Window places start and end on the work date. An end earlier than the start falls on the next day.
func Window(workDate time.Time, start, end string, loc *time.Location) (time.Time, time.Time, error) {
	startMinutes, err := ParseClock(start)
	if err != nil {
		return time.Time{}, time.Time{}, bizerror.NewValidationError(bizerror.InvalidTime, "start_time", "%v", err)
	}
	endMinutes, err := ParseClock(end)
	if err != nil {
		return time.Time{}, time.Time{}, bizerror.NewValidationError(bizerror.InvalidTime, "end_time", "%v", err)
	}
	y, m, d := workDate.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	startAt := midnight.Add(time.Duration(startMinutes) * time.Minute)
	endAt := midnight.Add(time.Duration(endMinutes) * time.Minute)
	if endMinutes < startMinutes {
		endAt = endAt.AddDate(0, 0, 1)
	}
	return startAt, endAt, nil
}

// WorkDuration is the length of the reported window, wrapping over midnight when needed.
func WorkDuration(workDate time.Time, start, end string) (time.Duration, error) {
	startAt, endAt, err := Window(workDate, start, end, time.UTC)
	if err != nil {
		return 0, err
	}
	return endAt.Sub(startAt), nil
}

// BreakDuration places the break inside the window [startAt, endAt] and returns its length.
func BreakDuration(startAt, endAt time.Time, breakStart, breakEnd string) (time.Duration, error) {
	bs, err := ParseClock(breakStart)
	if err != nil {
		return 0, bizerror.NewValidationError(bizerror.InvalidTime, "break_start", "%v", err)
	}
	be, err := ParseClock(breakEnd)
	if err != nil {
		return 0, bizerror.NewValidationError(bizerror.InvalidTime, "break_end", "%v", err)
	}
	crossesMidnight := endAt.YearDay() != startAt.YearDay() || endAt.Year() != startAt.Year()
	if bs == be || (be < bs && !crossesMidnight) {
		return 0, bizerror.NewValidationError(bizerror.InvalidTime, "break_end", "break end %s must be after break start %s",
			breakEnd, breakStart)
	}

	y, m, d := startAt.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, startAt.Location())
	breakStartAt := midnight.Add(time.Duration(bs) * time.Minute)
	if breakStartAt.Before(startAt) {
		breakStartAt = breakStartAt.AddDate(0, 0, 1)
	}
	breakEndAt := breakStartAt.Add(time.Duration((be-bs+24*60)%(24*60)) * time.Minute)

	if breakStartAt.After(endAt) || breakEndAt.After(endAt) {
		return 0, bizerror.NewValidationError(bizerror.BreakOutsideWindow, "break_start",
			"break %s-%s is outside of the reported window %s-%s", breakStart, breakEnd,
			startAt.Format("15:04"), endAt.Format("15:04"))
	}
	return breakEndAt.Sub(breakStartAt), nil
}

// DerivedHours splits the net working time into normal and overtime hours, rounded to 2 decimals.
func DerivedHours(duration, breakDuration time.Duration, normalHoursCap float64) (work, overtime, breakHours float64) {
	net := (duration - breakDuration).Hours()
	if net < 0 {
		net = 0
	}
	work = net
	if work > normalHoursCap {
		work = normalHoursCap
	}
	overtime = net - normalHoursCap
	if overtime < 0 {
		overtime = 0
	}
	return common.RoundTo2(work), common.RoundTo2(overtime), common.RoundTo2(breakDuration.Hours())
}
