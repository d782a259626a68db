package services

import (
	"fmt"
	"time"

	"practicehub/models"
)

// DateLayout calendar date format used for activities
const DateLayout = "2006-01-02"

// DefaultMaxSeriesOccurrences upper bound on dates produced by one series
const DefaultMaxSeriesOccurrences = 200

// ParseDate parses a calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// addUnits moves start by n cadence units. Monthly steps clamp to the last day
// of the target month, so Jan 31 + 1 month lands on the last day of February.
func addUnits(start time.Time, typ models.RecurrenceType, n int) time.Time {
	switch typ {
	case models.RecurrenceWeekly:
		return start.AddDate(0, 0, 7*n)
	default:
		y, m, d := start.Date()
		first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1).Day()
		if d > last {
			d = last
		}
		return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
	}
}

func validateRule(typ models.RecurrenceType, interval int) error {
	if typ != models.RecurrenceWeekly && typ != models.RecurrenceMonthly {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRecurrence, typ)
	}
	if interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidRecurrence, interval)
	}
	return nil
}

// ResolveEndDate returns the inclusive end date of a series. Count-based
// configurations end at start + (count-1)*interval units; counts above
// DefaultMaxSeriesOccurrences are rejected.
func ResolveEndDate(start string, cfg models.RecurrenceConfig) (string, error) {
	return resolveEndDate(start, cfg, DefaultMaxSeriesOccurrences)
}

func resolveEndDate(start string, cfg models.RecurrenceConfig, limit int) (string, error) {
	if err := validateRule(cfg.Type, cfg.Interval); err != nil {
		return "", err
	}
	startDate, err := ParseDate(start)
	if err != nil {
		return "", fmt.Errorf("%w: start date %q", ErrInvalidRecurrence, start)
	}

	hasEnd := cfg.EndDate != ""
	hasCount := cfg.Occurrences != 0
	switch {
	case hasEnd && hasCount:
		return "", fmt.Errorf("%w: set either end_date or occurrences, not both", ErrInvalidRecurrence)
	case hasEnd:
		if _, err := ParseDate(cfg.EndDate); err != nil {
			return "", fmt.Errorf("%w: end date %q", ErrInvalidRecurrence, cfg.EndDate)
		}
		return cfg.EndDate, nil
	case hasCount:
		if cfg.Occurrences < 1 {
			return "", fmt.Errorf("%w: occurrences must be at least 1, got %d", ErrInvalidRecurrence, cfg.Occurrences)
		}
		if cfg.Occurrences > limit {
			return "", fmt.Errorf("%w: series exceeds %d occurrences", ErrInvalidRecurrence, limit)
		}
		end := addUnits(startDate, cfg.Type, (cfg.Occurrences-1)*cfg.Interval)
		return end.Format(DateLayout), nil
	}
	return "", fmt.Errorf("%w: end_date or occurrences is required", ErrInvalidRecurrence)
}

// ExpandRecurrence returns the ascending dates from start to rule.EndDate,
// both inclusive, stepping by rule.Interval units. Each date is computed from
// start rather than from the previous date, so month-end clamping never drifts.
// At most limit dates are produced; longer series are rejected.
func ExpandRecurrence(start string, rule models.RecurrenceRule, limit int) ([]string, error) {
	if err := validateRule(rule.Type, rule.Interval); err != nil {
		return nil, err
	}
	startDate, err := ParseDate(start)
	if err != nil {
		return nil, fmt.Errorf("%w: start date %q", ErrInvalidRecurrence, start)
	}
	endDate, err := ParseDate(rule.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: end date %q", ErrInvalidRecurrence, rule.EndDate)
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("%w: end date %s is before start %s", ErrInvalidRecurrence, rule.EndDate, start)
	}
	if limit <= 0 {
		limit = DefaultMaxSeriesOccurrences
	}

	var dates []string
	for k := 0; ; k++ {
		d := addUnits(startDate, rule.Type, k*rule.Interval)
		if d.After(endDate) {
			break
		}
		if len(dates) == limit {
			return nil, fmt.Errorf("%w: series exceeds %d occurrences", ErrInvalidRecurrence, limit)
		}
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

// ExpandConfig resolves the end date of cfg and expands the series.
func ExpandConfig(start string, cfg models.RecurrenceConfig, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultMaxSeriesOccurrences
	}
	end, err := resolveEndDate(start, cfg, limit)
	if err != nil {
		return nil, err
	}
	return ExpandRecurrence(start, models.RecurrenceRule{Type: cfg.Type, Interval: cfg.Interval, EndDate: end}, limit)
}
