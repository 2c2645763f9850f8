package autoreply

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Setting keys read from the settings table.
const (
	KeyGreetingEnabled      = "greeting_enabled"
	KeyGreetingMessage      = "greeting_message"
	KeyGoodbyeEnabled       = "goodbye_enabled"
	KeyGoodbyeMessage       = "goodbye_message"
	KeyBusinessHoursEnabled = "business_hours_enabled"
	KeyBusinessHoursStart   = "business_hours_start"
	KeyBusinessHoursEnd     = "business_hours_end"
	KeyBusinessDays         = "business_days"
	KeyAfterHoursMessage    = "after_hours_message"
	KeyTimezone             = "timezone"
)

// Settings is the parsed auto-reply configuration.
type Settings struct {
	GreetingEnabled bool
	GreetingText    string
	GoodbyeEnabled  bool
	GoodbyeText     string

	BusinessHours  bool
	Open           time.Duration // offset from midnight
	Close          time.Duration
	Days           map[time.Weekday]bool
	AfterHoursText string
	Location       *time.Location
}

// defaults returns the settings used for missing keys.
func (s *Service) defaults() Settings {
	return Settings{
		GreetingEnabled: true,
		GreetingText:    s.cfg.GreetingText,
		GoodbyeEnabled:  true,
		GoodbyeText:     s.cfg.GoodbyeText,
		BusinessHours:   true,
		Open:            8 * time.Hour,
		Close:           18 * time.Hour,
		Days: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
		AfterHoursText: s.cfg.AfterHoursText,
		Location:       time.Local,
	}
}

// parseSettings overlays raw key/values on base. Malformed values keep the
// base value and are reported together.
func parseSettings(base Settings, raw map[string]string) (Settings, error) {
	s := base
	var bad []string

	boolean := func(key string, dst *bool) {
		if v, ok := raw[key]; ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				bad = append(bad, key)
				return
			}
			*dst = b
		}
	}
	text := func(key string, dst *string) {
		if v := strings.TrimSpace(raw[key]); v != "" {
			*dst = v
		}
	}
	clock := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(raw[key]); v != "" {
			d, err := parseClock(v)
			if err != nil {
				bad = append(bad, key)
				return
			}
			*dst = d
		}
	}

	boolean(KeyGreetingEnabled, &s.GreetingEnabled)
	text(KeyGreetingMessage, &s.GreetingText)
	boolean(KeyGoodbyeEnabled, &s.GoodbyeEnabled)
	text(KeyGoodbyeMessage, &s.GoodbyeText)
	boolean(KeyBusinessHoursEnabled, &s.BusinessHours)
	clock(KeyBusinessHoursStart, &s.Open)
	clock(KeyBusinessHoursEnd, &s.Close)
	text(KeyAfterHoursMessage, &s.AfterHoursText)

	if v := strings.TrimSpace(raw[KeyBusinessDays]); v != "" {
		days, err := parseDays(v)
		if err != nil {
			bad = append(bad, KeyBusinessDays)
		} else {
			s.Days = days
		}
	}
	if v := strings.TrimSpace(raw[KeyTimezone]); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			bad = append(bad, KeyTimezone)
		} else {
			s.Location = loc
		}
	}

	if len(bad) > 0 {
		return s, fmt.Errorf("invalid settings: %s", strings.Join(bad, ", "))
	}
	return s, nil
}

// parseClock reads "HH:MM" as an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// parseDays reads a comma-separated list of weekday numbers, 0 = Sunday.
func parseDays(v string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("bad weekday %q", part)
		}
		days[time.Weekday(n)] = true
	}
	return days, nil
}

// IsOpen reports whether t falls inside business hours.
func (s Settings) IsOpen(t time.Time) bool {
	if !s.BusinessHours {
		return true
	}
	t = t.In(s.Location)
	if !s.Days[t.Weekday()] {
		return false
	}
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	return offset >= s.Open && offset < s.Close
}
