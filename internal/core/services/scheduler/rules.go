package scheduler

import (
	"log/slog"
	"strings"
	"time"

	"github.com/piwardrive/piwardrive/internal/config"
)

// RulesProvider supplies the current scan rules; the settings manager
// implements this through a snapshot adapter.
type RulesProvider func() map[string]config.ScanRule

// Rules evaluates the configured scan gating rules against the wall clock.
// A scan type with no rule entry is always allowed.
type Rules struct {
	provider RulesProvider
	now      func() time.Time
}

// NewRules builds an evaluator over the given provider.
func NewRules(provider RulesProvider) *Rules {
	return &Rules{provider: provider, now: time.Now}
}

// Allow reports whether the given scan type may run right now. Every
// configured condition must pass.
func (r *Rules) Allow(scanType string) bool {
	rules := r.provider()
	rule, ok := rules[scanType]
	if !ok {
		return true
	}

	if rule.Enabled != nil && !*rule.Enabled {
		return false
	}

	now := r.now()

	if len(rule.Days) > 0 && !dayAllowed(rule.Days, now.Weekday()) {
		return false
	}
	if len(rule.Times) > 0 && !timeAllowed(rule.Times, now) {
		return false
	}
	return true
}

func dayAllowed(days []string, weekday time.Weekday) bool {
	name := strings.ToLower(weekday.String())
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == name || (len(d) >= 3 && strings.HasPrefix(name, d)) {
			return true
		}
	}
	return false
}

// timeAllowed checks "HH:MM-HH:MM" windows. A window wrapping midnight
// (e.g. 22:00-06:00) matches the two segments either side of it.
func timeAllowed(windows []string, now time.Time) bool {
	minutes := now.Hour()*60 + now.Minute()
	for _, w := range windows {
		start, end, ok := parseWindow(w)
		if !ok {
			slog.Warn("ignoring malformed scan rule window", "window", w)
			continue
		}
		if start <= end {
			if minutes >= start && minutes < end {
				return true
			}
		} else if minutes >= start || minutes < end {
			return true
		}
	}
	return false
}

func parseWindow(w string) (start, end int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(w), "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok = parseHHMM(parts[0])
	if !ok {
		return 0, 0, false
	}
	end, ok = parseHHMM(parts[1])
	return start, end, ok
}

func parseHHMM(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
