package models

// RecurrenceType cadence of a recurring series
type RecurrenceType string

const (
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// RecurrenceConfig how one authored activity expands into a series.
// Exactly one of EndDate and Occurrences terminates the series.
type RecurrenceConfig struct {
	Type        RecurrenceType `json:"type"`
	Interval    int            `json:"interval"`
	EndDate     string         `json:"end_date,omitempty"`
	Occurrences int            `json:"occurrences,omitempty"`
}

// RecurrenceRule input of the date expansion: cadence, step and inclusive end.
type RecurrenceRule struct {
	Type     RecurrenceType
	Interval int
	EndDate  string
}
